package trialfile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ioam-bench/internal/axis"
)

const DefaultSuffix = "_stats.txt"

// Name is the filename identity of a TrialFile:
// <prefix>_<variant>_<baseline>_<instrumented><suffix>.
type Name struct {
	Prefix  string
	Variant string
	Pair    axis.Pair
	Suffix  string
}

func (n Name) String() string {
	suffix := n.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	parts := make([]string, 0, 4)
	if n.Prefix != "" {
		parts = append(parts, n.Prefix)
	}
	if n.Variant != "" {
		parts = append(parts, n.Variant)
	}
	parts = append(parts, strconv.Itoa(n.Pair.Baseline), strconv.Itoa(n.Pair.Instrumented))
	return strings.Join(parts, "_") + suffix
}

// Stem strips the suffix, or returns false if the name does not carry it.
func Stem(filename, suffix string) (string, bool) {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if !strings.HasSuffix(filename, suffix) {
		return "", false
	}
	return strings.TrimSuffix(filename, suffix), true
}

func pairPattern(suffix string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|_)(\d+)_(\d+)` + regexp.QuoteMeta(suffix) + `$`)
}

// ParsePair decodes the <baseline>_<instrumented> pair that immediately
// precedes the suffix.
func ParsePair(filename, suffix string) (axis.Pair, error) {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	m := pairPattern(suffix).FindStringSubmatch(filename)
	if m == nil {
		return axis.Pair{}, fmt.Errorf("no <baseline>_<instrumented> pair before %q", suffix)
	}

	baseline, err := strconv.Atoi(m[1])
	if err != nil {
		return axis.Pair{}, fmt.Errorf("baseline count %q: %w", m[1], err)
	}
	instrumented, err := strconv.Atoi(m[2])
	if err != nil {
		return axis.Pair{}, fmt.Errorf("instrumented count %q: %w", m[2], err)
	}

	p := axis.Pair{Baseline: baseline, Instrumented: instrumented}
	if err := p.Validate(); err != nil {
		return axis.Pair{}, err
	}
	return p, nil
}
