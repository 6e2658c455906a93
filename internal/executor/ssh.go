package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ioam-bench/internal/logging"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const DefaultSSHPort = 22

type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyFile string
	// KnownHosts enables host key checking against the given file. When
	// empty any host key is accepted, as the lab scripts did.
	KnownHosts string
	// Retries is the number of extra dial attempts after the first one,
	// spaced by exponential backoff. Commands are never retried.
	Retries int
	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration
}

func (c SSHConfig) address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// expandHome resolves a leading "~/" against the current user's home.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (c SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	keyFile, err := expandHome(c.KeyFile)
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", keyFile, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHosts != "" {
		knownHosts, err := expandHome(c.KnownHosts)
		if err != nil {
			return nil, err
		}
		hostKeyCallback, err = knownhosts.New(knownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	timeout := c.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// SSH runs commands on one remote host over a single client connection.
// Each command gets its own session.
type SSH struct {
	client *ssh.Client
	addr   string
	logger *logrus.Logger
}

// DialSSH connects to the host described by cfg.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	clientConfig, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.GetLogger()
	addr := cfg.address()
	attempt := 0

	dial := func() (*ssh.Client, error) {
		attempt++
		client, err := ssh.Dial("tcp", addr, clientConfig)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) {
				return nil, backoff.Permanent(err)
			}
			logger.WithFields(logrus.Fields{
				"address": addr,
				"attempt": attempt,
			}).WithError(err).Warn("SSH dial failed")
			return nil, err
		}
		return client, nil
	}

	client, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(cfg.Retries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	logger.WithField("address", addr).Debug("SSH connection established")
	return &SSH{client: client, addr: addr, logger: logger}, nil
}

func (s *SSH) Run(ctx context.Context, cmd Command) (*Result, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", s.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	line := cmd.String()
	s.logger.WithFields(logrus.Fields{"host": s.addr, "command": line}).Debug("Running remote command")

	start := time.Now()
	if err := session.Start(line); err != nil {
		return nil, fmt.Errorf("start %s: %w", line, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, &ExitError{Command: line, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		return nil, fmt.Errorf("%s: %w", line, err)
	}
	return result, nil
}

func (s *SSH) Close() error {
	return s.client.Close()
}
