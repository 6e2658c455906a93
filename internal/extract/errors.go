package extract

import "fmt"

// PatternError reports a trial file whose name (or sidecar) does not decode
// under the configured rule.
type PatternError struct {
	File   string
	Reason string
	Err    error
}

func (e *PatternError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pattern %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("pattern %s: %s", e.File, e.Reason)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// IOError reports a directory or sidecar that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
