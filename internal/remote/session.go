// Package remote drives the traffic generator host: it launches the
// profile runner for one sweep point and files the resulting statistics.
package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"ioam-bench/internal/config"
	"ioam-bench/internal/executor"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/trialfile"

	"github.com/sirupsen/logrus"
)

// Session is the generator side of a sweep. It owns its runner.
type Session struct {
	cfg    config.RemoteConfig
	runner executor.Runner
	logger *logrus.Logger
}

func NewSession(cfg config.RemoteConfig, runner executor.Runner) *Session {
	return &Session{cfg: cfg, runner: runner, logger: logging.GetLogger()}
}

// Dial opens an SSH session to the generator host.
func Dial(ctx context.Context, cfg config.RemoteConfig) (*Session, error) {
	runner, err := executor.DialSSH(ctx, executor.SSHConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		User:       cfg.User,
		KeyFile:    cfg.KeyFile,
		KnownHosts: cfg.KnownHosts,
		Retries:    cfg.ConnectRetries,
	})
	if err != nil {
		return nil, err
	}
	return NewSession(cfg, runner), nil
}

func (s *Session) command(args ...string) executor.Command {
	return executor.Command{Args: args, Dir: s.cfg.WorkDir}
}

// Run executes `python3 <runner> -n <iterations> -e <params>` and waits for
// it, bounded by the configured timeout.
func (s *Session) Run(ctx context.Context, iterations int, params ProfileParams) (*executor.Result, error) {
	extra, err := params.Encode()
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := s.command(s.cfg.Python, s.cfg.Runner, "-n", strconv.Itoa(iterations), "-e", extra)
	s.logger.WithFields(logrus.Fields{"iterations": iterations, "params": extra}).Debug("Launching traffic profile")

	res, err := s.runner.Run(ctx, cmd)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("traffic run exceeded %v: %w", s.cfg.Timeout, err)
	}
	return res, err
}

// Exists reports whether name is present in the working directory.
func (s *Session) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.runner.Run(ctx, s.command("test", "-e", name))
	if err == nil {
		return true, nil
	}
	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// Persist moves the raw output into its trial file slot and writes the
// sidecar record next to it.
func (s *Session) Persist(ctx context.Context, name string, sidecar *trialfile.Sidecar) error {
	if path.Base(name) != name {
		return fmt.Errorf("trial file %q must be a bare name", name)
	}
	if _, err := s.runner.Run(ctx, s.command("mv", s.cfg.Output, name)); err != nil {
		return fmt.Errorf("move %s to %s: %w", s.cfg.Output, name, err)
	}

	if sidecar == nil {
		return nil
	}
	if sidecar.CreatedAt.IsZero() {
		sidecar.CreatedAt = time.Now().UTC()
	}
	data, err := sidecar.Marshal()
	if err != nil {
		return err
	}
	cmd := s.command("tee", trialfile.SidecarName(name))
	cmd.Stdin = data
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("write sidecar for %s: %w", name, err)
	}
	return nil
}

func (s *Session) Close() error {
	return s.runner.Close()
}
