// Package executor runs argv-style commands on the local host or on a
// remote host over SSH and reports their exit status.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Command is a single process invocation.
type Command struct {
	Args []string
	// Sudo prefixes the command with sudo.
	Sudo bool
	// Dir is the working directory; empty means the runner's default.
	Dir   string
	Stdin []byte
}

func NewCommand(args ...string) Command {
	return Command{Args: args}
}

func (c Command) WithSudo(sudo bool) Command {
	c.Sudo = sudo
	return c
}

func (c Command) argv() []string {
	if !c.Sudo {
		return c.Args
	}
	return append([]string{"sudo"}, c.Args...)
}

// String renders the command as a single shell line with every argument
// quoted.
func (c Command) String() string {
	line := shellquote.Join(c.argv()...)
	if c.Dir != "" {
		line = "cd " + shellquote.Join(c.Dir) + " && " + line
	}
	return line
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a command ran but did not exit 0.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Runner executes commands. Run returns a non-nil Result whenever the
// command was started, together with an *ExitError for a non-zero exit.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	Close() error
}
