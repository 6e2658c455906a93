// Package sweep drives a benchmark sweep: it walks the plan one point at a
// time, reconfigures the device where the sweep kind requires it, runs the
// traffic generator and files each raw output as a trial file.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"ioam-bench/internal/config"
	"ioam-bench/internal/database"
	"ioam-bench/internal/device"
	"ioam-bench/internal/executor"
	"ioam-bench/internal/host"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/remote"
	"ioam-bench/internal/trialfile"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const releaseTimeout = 30 * time.Second

// Session is the traffic generator side of a sweep.
type Session interface {
	Run(ctx context.Context, iterations int, params remote.ProfileParams) (*executor.Result, error)
	Exists(ctx context.Context, name string) (bool, error)
	Persist(ctx context.Context, name string, sidecar *trialfile.Sidecar) error
	Close() error
}

// Device is the configuration channel to the device under test.
type Device interface {
	Prepare(ctx context.Context) error
	ApplyRoute(ctx context.Context, spec device.RouteSpec) error
	EnableTunnel(ctx context.Context)
	DisableTunnel()
	Cleanup(ctx context.Context) error
}

type Options struct {
	// Dial opens the generator session. Required unless dry running.
	Dial func(ctx context.Context) (Session, error)
	// Device is required unless dry running.
	Device Device

	ConfigContent string
	Host          *host.HostConfig
	// Euid defaults to os.Geteuid.
	Euid func() int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Driver struct {
	cfg         *config.SweepConfig
	plan        *Plan
	opts        Options
	sweepID     string
	metrics     *sweepMetrics
	logger      *logrus.Logger
	sweepLogger *logrus.Logger
}

func NewDriver(cfg *config.SweepConfig, opts Options) (*Driver, error) {
	plan, err := NewPlan(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Euid == nil {
		opts.Euid = os.Geteuid
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Driver{
		cfg:         cfg,
		plan:        plan,
		opts:        opts,
		sweepID:     uuid.NewString(),
		metrics:     newSweepMetrics(cfg.Sweep.Name),
		logger:      logging.GetLogger(),
		sweepLogger: logging.GetSweepLogger(),
	}, nil
}

func (d *Driver) Plan() *Plan {
	return d.plan
}

func (d *Driver) SweepID() string {
	return d.sweepID
}

// lease is the device and session pair held for the lifetime of a sweep.
type lease struct {
	prepared bool
	tunnel   bool
	session  Session
}

func (d *Driver) tunnelWanted() bool {
	return d.cfg.Device.Tunnel.Enabled && d.plan.Kind == config.KindPacket
}

// acquire fills l as resources come up so that release can undo a partial
// acquisition.
func (d *Driver) acquire(ctx context.Context, l *lease) error {
	// Prepare may fail after changing the device, so cleanup runs regardless.
	l.prepared = true
	if err := d.opts.Device.Prepare(ctx); err != nil {
		return &ConfigurationError{Err: err}
	}

	if d.tunnelWanted() {
		d.opts.Device.EnableTunnel(ctx)
		l.tunnel = true
	}

	session, err := d.opts.Dial(ctx)
	if err != nil {
		return &SessionError{Err: fmt.Errorf("connect to %s: %w", d.cfg.Remote.Address(), err)}
	}
	l.session = session
	return nil
}

// release runs on every exit path, interrupted or not.
func (d *Driver) release(ctx context.Context, l *lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if l.prepared {
		if err := d.opts.Device.Cleanup(ctx); err != nil {
			d.logger.WithError(err).Warn("Device cleanup incomplete")
		}
	}
	if l.tunnel {
		d.opts.Device.DisableTunnel()
	}
	if l.session != nil {
		if err := l.session.Close(); err != nil {
			d.logger.WithError(err).Warn("Failed to close generator session")
		}
	}
	d.logger.Debug("Sweep resources released")
}

// Run executes the sweep. It stops at the first failing point. The
// returned manifest is nil for a dry run and otherwise describes every
// point reached, including the failing one.
func (d *Driver) Run(ctx context.Context) (*database.Manifest, error) {
	d.logger.WithFields(logrus.Fields{
		"sweep":    d.cfg.Sweep.Name,
		"sweep_id": d.sweepID,
		"kind":     d.plan.Kind,
		"points":   d.plan.Len(),
		"dry_run":  d.cfg.Sweep.DryRun,
	}).Info("Starting sweep")

	if d.cfg.Sweep.RequireRoot && d.opts.Euid() != 0 {
		return nil, &PreconditionError{Reason: "must be running as root"}
	}

	if d.cfg.Sweep.DryRun {
		d.dryRun()
		return nil, nil
	}
	if d.opts.Device == nil || d.opts.Dial == nil {
		return nil, &PreconditionError{Reason: "sweep needs a device channel and a session dialer"}
	}

	start := d.opts.Now()
	manifest := database.BuildManifest(d.sweepID, d.cfg, d.opts.ConfigContent, d.opts.Host, start)
	d.metrics.planned.Set(float64(d.plan.Len()))

	l := &lease{}
	err := d.acquire(ctx, l)
	if err == nil {
		err = d.runPoints(ctx, l.session, manifest)
	}
	d.release(ctx, l)

	manifest.EndTime = d.opts.Now()
	if err != nil {
		manifest.Error = err.Error()
	} else {
		d.metrics.lastSuccess.Set(float64(manifest.EndTime.Unix()))
	}
	d.finish(manifest)

	if err != nil {
		return manifest, err
	}
	counts := manifest.Counts()
	d.logger.WithFields(logrus.Fields{
		"sweep_id": d.sweepID,
		"done":     counts[database.PointDone],
		"skipped":  counts[database.PointSkipped],
		"duration": manifest.EndTime.Sub(start).Round(time.Second).String(),
	}).Info("Sweep completed")
	return manifest, nil
}

func (d *Driver) dryRun() {
	for _, p := range d.plan.Points {
		d.sweepLogger.WithFields(p.Fields()).Info("Planned point")
	}
}

func (d *Driver) runPoints(ctx context.Context, session Session, manifest *database.Manifest) error {
	for _, p := range d.plan.Points {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweep interrupted before %s: %w", p, err)
		}

		rec := &database.PointRecord{
			Index:     p.Index,
			Variant:   p.Variant,
			Pair:      p.Pair,
			TrialFile: p.TrialFile(),
			Started:   d.opts.Now(),
		}
		rec.Params, _ = p.Params.Encode()
		manifest.Points = append(manifest.Points, rec)

		err := d.runPoint(ctx, session, p, rec)
		rec.Finished = d.opts.Now()
		if err != nil {
			rec.Status = database.PointFailed
			rec.Error = err.Error()
			d.metrics.points.WithLabelValues(database.PointFailed).Inc()
			d.sweepLogger.WithFields(p.Fields()).WithError(err).Error("Point failed")
			return err
		}
		d.metrics.points.WithLabelValues(rec.Status).Inc()
		d.sweepLogger.WithFields(p.Fields()).WithField("status", rec.Status).Info("Point finished")
	}
	return nil
}

func (d *Driver) runPoint(ctx context.Context, session Session, p Point, rec *database.PointRecord) error {
	name := p.TrialFile()

	if d.cfg.Sweep.Resume {
		exists, err := session.Exists(ctx, name)
		if err != nil {
			return &SessionError{Point: p.String(), Err: fmt.Errorf("check %s: %w", name, err)}
		}
		if exists {
			rec.Status = database.PointSkipped
			return nil
		}
	}

	if p.Route != nil {
		if err := d.opts.Device.ApplyRoute(ctx, *p.Route); err != nil {
			return &ConfigurationError{Point: p.String(), Err: err}
		}
	}

	started := d.opts.Now()
	if _, err := session.Run(ctx, d.cfg.Sweep.Iterations, p.Params); err != nil {
		return &SessionError{Point: p.String(), Err: err}
	}
	d.metrics.sessionDuration.Observe(d.opts.Now().Sub(started).Seconds())

	sidecar := &trialfile.Sidecar{
		Version:        trialfile.SidecarVersion,
		SweepID:        d.sweepID,
		SweepName:      d.cfg.Sweep.Name,
		Kind:           d.plan.Kind,
		Variant:        p.Name.Variant,
		Pair:           p.Pair,
		Frequency:      p.Pair.Fraction(),
		FrequencyLabel: p.Pair.Label(),
		Iterations:     d.cfg.Sweep.Iterations,
		Params:         rec.Params,
		TrialFile:      name,
		CreatedAt:      d.opts.Now().UTC(),
	}
	if err := session.Persist(ctx, name, sidecar); err != nil {
		return &PersistenceError{Point: p.String(), File: name, Err: err}
	}
	rec.Status = database.PointDone
	return nil
}

// finish writes the manifest and the metrics textfile. Failures here are
// logged and never change the sweep outcome.
func (d *Driver) finish(manifest *database.Manifest) {
	path, err := database.WriteManifest(d.cfg.Report.Manifest, manifest)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to write sweep manifest")
	} else {
		d.logger.WithField("path", path).Info("Sweep manifest written")
	}

	if d.cfg.Report.Metrics == "" {
		return
	}
	if err := d.metrics.WriteTextfile(d.cfg.Report.Metrics); err != nil {
		d.logger.WithError(err).WithField("path", d.cfg.Report.Metrics).Warn("Failed to write metrics textfile")
	}
}

// IsInterrupted reports whether err stems from a cancelled sweep.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
