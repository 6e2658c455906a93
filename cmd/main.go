package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ioam-bench/internal/config"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/sweep"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
	} else {
		// Try to load from the application directory
		if execPath, err := os.Executable(); err == nil {
			appDir := filepath.Dir(execPath)
			envFile = filepath.Join(appDir, ".env")
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
				} else {
					logger.WithField("file", envFile).Debug("Loaded environment variables")
				}
			}
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so that a running sweep
// can release the device and the generator session before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.GetLogger().WithField("signal", sig.String()).Warn("Interrupted, releasing resources")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// loadConfig maps any load failure to a precondition error.
func loadConfig(configFile string) (*config.SweepConfig, string, error) {
	cfg, content, err := config.LoadConfigWithContent(configFile)
	if err != nil {
		return nil, "", &sweep.PreconditionError{Reason: fmt.Sprintf("load %s", configFile), Err: err}
	}
	return cfg, content, nil
}

func applyLogLevel(cmd *cobra.Command, cfg *config.SweepConfig) {
	if cmd.Flags().Changed("log-level") || cfg.Sweep.LogLevel == "" {
		return
	}
	if err := logging.SetLogLevel(cfg.Sweep.LogLevel); err != nil {
		logging.GetLogger().WithError(err).Warn("Invalid log level in config, keeping info")
	}
}

func validateConfig(configFile string) error {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	plan, err := sweep.NewPlan(cfg)
	if err != nil {
		return err
	}
	checksum, err := config.PlanChecksum(cfg)
	if err != nil {
		return &sweep.PreconditionError{Reason: "checksum plan", Err: err}
	}
	fmt.Printf("Configuration %s is valid: sweep %q, %d points (%s), plan %s\n",
		configFile, cfg.Sweep.Name, plan.Len(), plan.Kind, checksum)
	return nil
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "ioam-bench",
		Short:         "IPv6 IOAM benchmark harness",
		Long:          "Drives TRex traffic sweeps against an IOAM enabled router and turns the trial files into matrices and plots",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return &sweep.PreconditionError{Reason: "invalid log level", Err: err}
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	var configFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a sweep configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to sweep configuration file")
	validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newDropCmd())
	return rootCmd
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	err := newRootCmd().Execute()
	code := sweep.ExitCode(err)
	if err != nil {
		logger.WithError(err).WithField("exit_code", code).Error("Command failed")
		fmt.Fprintf(os.Stderr, "ioam-bench: %v\n", err)
	}
	os.Exit(code)
}
