// Package device configures IOAM state on the device under test: the IOAM
// schema and namespace, the benchmark route and the decap tunnel link.
package device

import (
	"context"
	"fmt"
	"strconv"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/executor"
	"ioam-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// Channel issues configuration commands. Only the exit code of a command
// is interpreted.
type Channel struct {
	cfg    config.DeviceConfig
	runner executor.Runner
	links  LinkController
	logger *logrus.Logger
}

func NewChannel(cfg config.DeviceConfig, runner executor.Runner, links LinkController) *Channel {
	return &Channel{
		cfg:    cfg,
		runner: runner,
		links:  links,
		logger: logging.GetLogger(),
	}
}

// Route builds the IOAM route for mode at pair from the configured
// defaults. traceType and extFlags override the defaults when non-empty.
func (c *Channel) Route(mode Mode, pair axis.Pair, traceType, extFlags string) RouteSpec {
	return NewRouteSpec(c.cfg, mode, pair, traceType, extFlags)
}

func (c *Channel) ip(args ...string) executor.Command {
	return executor.NewCommand(append([]string{c.cfg.IPBinary}, args...)...).WithSudo(c.cfg.Sudo)
}

func (c *Channel) run(ctx context.Context, cmd executor.Command) error {
	_, err := c.runner.Run(ctx, cmd)
	return err
}

// best runs cmd and only logs a failure.
func (c *Channel) best(ctx context.Context, cmd executor.Command) {
	if err := c.run(ctx, cmd); err != nil {
		c.logger.WithField("command", cmd.String()).WithError(err).Warn("Device command failed")
	}
}

// Prepare resets the IOAM schema and namespace and installs the plain
// route. Only a failure to install the route is returned.
func (c *Channel) Prepare(ctx context.Context) error {
	ns := strconv.Itoa(c.cfg.Namespace.ID)

	c.best(ctx, c.ip("ioam", "schema", "del", strconv.Itoa(c.cfg.Schema)))
	c.best(ctx, c.ip("ioam", "namespace", "add", ns, "data", c.cfg.Namespace.Data, "wide", c.cfg.Namespace.Wide))
	c.best(ctx, c.ip("-6", "r", "d", c.cfg.Prefix))

	if err := c.run(ctx, c.ip("-6", "r", "a", c.cfg.Prefix, "via", c.cfg.Via, "dev", c.cfg.Dev)); err != nil {
		return fmt.Errorf("install plain route: %w", err)
	}
	c.logger.WithFields(logrus.Fields{"prefix": c.cfg.Prefix, "dev": c.cfg.Dev}).Info("Device prepared")
	return nil
}

// ApplyRoute replaces the benchmark route with spec.
func (c *Channel) ApplyRoute(ctx context.Context, spec RouteSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("route: %w", err)
	}

	c.best(ctx, c.ip("-6", "r", "d", spec.Prefix))
	if err := c.run(ctx, c.ip(spec.AddArgs()...)); err != nil {
		return fmt.Errorf("install %s route at %s: %w", spec.Mode, spec.Pair, err)
	}

	c.logger.WithFields(logrus.Fields{
		"mode":       spec.Mode.String(),
		"freq":       spec.Pair.String(),
		"trace_type": spec.TraceType,
		"ext_flags":  spec.ExtFlags,
	}).Debug("IOAM route installed")
	return nil
}

// EnableTunnel loads the tunnel module and brings the tunnel link up.
// Failures are logged.
func (c *Channel) EnableTunnel(ctx context.Context) {
	t := c.cfg.Tunnel
	if t.Module != "" {
		if err := c.run(ctx, executor.NewCommand("modprobe", t.Module).WithSudo(c.cfg.Sudo)); err != nil {
			c.logger.WithField("module", t.Module).WithError(err).Error("Cannot load tunnel module")
		}
	}
	if err := c.links.SetUp(t.Link); err != nil {
		c.logger.WithField("link", t.Link).WithError(err).Error("Cannot set tunnel interface up")
	}
}

func (c *Channel) DisableTunnel() {
	if err := c.links.SetDown(c.cfg.Tunnel.Link); err != nil {
		c.logger.WithField("link", c.cfg.Tunnel.Link).WithError(err).Error("Cannot shut down tunnel interface")
	}
}

// Cleanup removes the IOAM route, restores the plain route and drops the
// namespace. Failures are logged and the first one is returned.
func (c *Channel) Cleanup(ctx context.Context) error {
	var first error
	for _, cmd := range []executor.Command{
		c.ip("-6", "r", "d", c.cfg.Prefix),
		c.ip("-6", "r", "a", c.cfg.Prefix, "via", c.cfg.Via, "dev", c.cfg.Dev),
		c.ip("ioam", "namespace", "del", strconv.Itoa(c.cfg.Namespace.ID)),
	} {
		if err := c.run(ctx, cmd); err != nil {
			c.logger.WithField("command", cmd.String()).WithError(err).Warn("Device cleanup command failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
