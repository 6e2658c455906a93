package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"ioam-bench/internal/logging"
)

// Local runs commands on this host with os/exec. No shell is involved.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Run(ctx context.Context, cmd Command) (*Result, error) {
	argv := cmd.argv()
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	logger := logging.GetLogger()
	logger.WithField("command", cmd.String()).Debug("Running local command")

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = cmd.Dir
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Command: cmd.String(), ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", cmd.String(), err)
	}
	return result, nil
}

func (l *Local) Close() error {
	return nil
}
