package executor

import (
	"context"
	"strings"
	"sync"
)

// Fake records every command and answers from a table of scripted exit
// codes keyed by a substring of the rendered command. Unmatched commands
// succeed.
type Fake struct {
	mu       sync.Mutex
	commands []Command
	failures map[string]int
	stdout   map[string]string
	closed   bool
}

func NewFake() *Fake {
	return &Fake{failures: map[string]int{}, stdout: map[string]string{}}
}

// FailOn makes every command containing substr exit with code.
func (f *Fake) FailOn(substr string, code int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[substr] = code
	return f
}

// Reply sets the stdout of every command containing substr.
func (f *Fake) Reply(substr, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdout[substr] = stdout
	return f
}

func (f *Fake) Run(ctx context.Context, cmd Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	line := cmd.String()
	result := &Result{}
	for substr, out := range f.stdout {
		if strings.Contains(line, substr) {
			result.Stdout = out
		}
	}
	for substr, code := range f.failures {
		if strings.Contains(line, substr) {
			result.ExitCode = code
			return result, &ExitError{Command: line, ExitCode: code}
		}
	}
	return result, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Lines returns the recorded commands rendered as shell lines.
func (f *Fake) Lines() []string {
	cmds := f.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return lines
}
