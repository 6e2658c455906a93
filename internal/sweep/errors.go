package sweep

import (
	"errors"
	"fmt"

	"ioam-bench/internal/extract"
	"ioam-bench/internal/matrix"
	"ioam-bench/internal/stats"
)

// Process exit codes, one per failure category.
const (
	ExitOK            = 0
	ExitUnknown       = 1
	ExitPrecondition  = -1
	ExitSession       = -2
	ExitPersistence   = -3
	ExitConfiguration = -4
	ExitParse         = -5
	ExitPattern       = -6
)

// PreconditionError reports a sweep that cannot start: missing privilege,
// an invalid configuration or an invalid sweep point.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err == nil {
		return "precondition: " + e.Reason
	}
	return fmt.Sprintf("precondition: %s: %v", e.Reason, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ConfigurationError reports a device command that failed.
type ConfigurationError struct {
	Point string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Point == "" {
		return fmt.Sprintf("device configuration: %v", e.Err)
	}
	return fmt.Sprintf("device configuration for %s: %v", e.Point, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SessionError reports a traffic session that could not be opened or
// whose run failed.
type SessionError struct {
	Point string
	Err   error
}

func (e *SessionError) Error() string {
	if e.Point == "" {
		return fmt.Sprintf("session: %v", e.Err)
	}
	return fmt.Sprintf("session for %s: %v", e.Point, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// PersistenceError reports raw output that could not be filed.
type PersistenceError struct {
	Point string
	File  string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.File, e.Point, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExitCode maps err to the exit code of its category. Extraction errors
// are included so every subcommand shares one table. An interrupted sweep
// exits with ExitUnknown whichever step it was cancelled in.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsInterrupted(err) {
		return ExitUnknown
	}

	var (
		precondition  *PreconditionError
		configuration *ConfigurationError
		session       *SessionError
		persistence   *PersistenceError
		parse         *stats.ParseError
		ioErr         *extract.IOError
		pattern       *extract.PatternError
		placement     *matrix.PlacementError
	)
	switch {
	case errors.As(err, &precondition):
		return ExitPrecondition
	case errors.As(err, &configuration):
		return ExitConfiguration
	case errors.As(err, &session):
		return ExitSession
	case errors.As(err, &persistence):
		return ExitPersistence
	case errors.As(err, &pattern), errors.As(err, &placement):
		return ExitPattern
	case errors.As(err, &parse), errors.As(err, &ioErr):
		return ExitParse
	default:
		return ExitUnknown
	}
}
