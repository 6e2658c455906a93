package main

import (
	"context"
	"time"

	"ioam-bench/internal/config"
	"ioam-bench/internal/database"
	"ioam-bench/internal/device"
	"ioam-bench/internal/executor"
	"ioam-bench/internal/host"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/remote"
	"ioam-bench/internal/sweep"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var configFile string
	var dryRun, resume bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a benchmark sweep",
		Long:  "Walk every (variant, frequency) point of the sweep, reconfigure the device where needed and collect one trial file per point",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, content, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			applyLogLevel(cmd, cfg)
			if dryRun {
				cfg.Sweep.DryRun = true
			}
			if resume {
				cfg.Sweep.Resume = true
			}
			return runSweep(cfg, content)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to sweep configuration file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the planned points without touching the device or the generator")
	cmd.Flags().BoolVar(&resume, "resume", false, "Skip points whose trial file already exists on the generator host")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runSweep(cfg *config.SweepConfig, content string) error {
	logger := logging.GetLogger()

	hostConfig, err := host.GetHostConfig(cfg.Device.Dev)
	if err != nil {
		logger.WithError(err).Warn("Failed to collect host information")
	}

	opts := sweep.Options{
		ConfigContent: content,
		Host:          hostConfig,
		Device:        device.NewChannel(cfg.Device, executor.NewLocal(), device.NetlinkLinks{}),
		Dial: func(ctx context.Context) (sweep.Session, error) {
			session, err := remote.Dial(ctx, cfg.Remote)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
	}

	driver, err := sweep.NewDriver(cfg, opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	manifest, runErr := driver.Run(ctx)
	if manifest != nil && cfg.Data.DB.Enabled() {
		exportSweepMetadata(driver.SweepID(), cfg, content, hostConfig, manifest)
	}
	if sweep.IsInterrupted(runErr) {
		logger.WithField("sweep_id", driver.SweepID()).Warn("Sweep interrupted")
	}
	return runErr
}

// exportSweepMetadata is best effort: the trial files are the record.
func exportSweepMetadata(sweepID string, cfg *config.SweepConfig, content string, hc *host.HostConfig, manifest *database.Manifest) {
	logger := logging.GetLogger()

	dbClient, err := database.NewInfluxDBClient(cfg.Data.DB)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to InfluxDB, sweep metadata not exported")
		return
	}
	defer dbClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	md := database.CollectSweepMetadata(sweepID, cfg, content, hc, len(manifest.Points), manifest.StartTime, manifest.EndTime, Version)
	if err := dbClient.WriteMetadata(ctx, md); err != nil {
		logger.WithError(err).Warn("Failed to export sweep metadata")
		return
	}
	logger.WithFields(logrus.Fields{
		"sweep_id": sweepID,
		"points":   len(manifest.Points),
	}).Info("Sweep metadata exported")
}
