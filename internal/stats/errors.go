package stats

import (
	"errors"
	"fmt"
)

var ErrEmpty = errors.New("no rows")

// ParseError reports a trial file that could not be turned into samples.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("parse line %d: %v", e.Line, e.Err)
	default:
		return fmt.Sprintf("parse: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
