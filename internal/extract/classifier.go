package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ioam-bench/internal/config"

	"github.com/gobwas/glob"
)

// errFiltered marks a label whose variant was recognised but whose file is
// rejected by that variant's markers. Such files are skipped.
var errFiltered = errors.New("filtered by variant markers")

// Classifier maps a trial-file label (the name without the frequency pair
// and suffix, or the variant recorded in a sidecar) to a variant.
type Classifier interface {
	Classify(label, file string) (string, error)
}

// NewClassifier builds the classifier for rule. fallback supplies the
// vocabulary when the rule does not list its own tokens.
func NewClassifier(rule config.VariantRule, fallback []string) (Classifier, error) {
	switch rule.Kind {
	case config.RuleVocabulary, "":
		specs := rule.Variants
		if len(specs) == 0 {
			specs = make([]config.VariantSpec, len(fallback))
			for i, token := range fallback {
				specs[i] = config.VariantSpec{Token: token}
			}
		}
		return newVocabulary(specs)
	case config.RuleHex:
		return hexClassifier{}, nil
	case config.RuleEnum:
		return newEnum(rule.EnumPrefix)
	default:
		return nil, fmt.Errorf("unknown variant rule %q", rule.Kind)
	}
}

type vocabEntry struct {
	token   string
	parts   []string
	include []glob.Glob
	exclude []glob.Glob
}

type vocabulary struct {
	entries []vocabEntry
}

func newVocabulary(specs []config.VariantSpec) (*vocabulary, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("vocabulary rule has no tokens")
	}
	v := &vocabulary{entries: make([]vocabEntry, 0, len(specs))}
	for _, spec := range specs {
		if spec.Token == "" {
			return nil, fmt.Errorf("empty vocabulary token")
		}
		e := vocabEntry{token: spec.Token, parts: strings.Split(spec.Token, "_")}
		var err error
		if e.include, err = compileAll(spec.Include); err != nil {
			return nil, fmt.Errorf("variant %s: %w", spec.Token, err)
		}
		if e.exclude, err = compileAll(spec.Exclude); err != nil {
			return nil, fmt.Errorf("variant %s: %w", spec.Token, err)
		}
		v.entries = append(v.entries, e)
	}
	return v, nil
}

type span struct {
	entry      int
	start, end int
}

func (s span) within(o span) bool {
	return o.start <= s.start && s.end <= o.end && (o.end-o.start) > (s.end-s.start)
}

// Classify matches tokens on '_' boundaries. A match lying inside a longer
// match is dropped, so FLOW_SEQ wins over FLOW; two unrelated matches are
// ambiguous.
func (v *vocabulary) Classify(label, file string) (string, error) {
	words := strings.Split(label, "_")

	var found []span
	for i, e := range v.entries {
		for start := 0; start+len(e.parts) <= len(words); start++ {
			if equalParts(words[start:start+len(e.parts)], e.parts) {
				found = append(found, span{entry: i, start: start, end: start + len(e.parts)})
			}
		}
	}

	var kept []span
	for _, s := range found {
		inner := false
		for _, o := range found {
			if s.within(o) {
				inner = true
				break
			}
		}
		if !inner {
			kept = append(kept, s)
		}
	}

	winner := -1
	for _, s := range kept {
		if winner >= 0 && winner != s.entry {
			return "", fmt.Errorf("ambiguous: matches both %s and %s", v.entries[winner].token, v.entries[s.entry].token)
		}
		winner = s.entry
	}
	if winner < 0 {
		return "", fmt.Errorf("no known variant in %q", label)
	}

	e := v.entries[winner]
	if len(e.include) > 0 && !matchAny(e.include, file) {
		return e.token, errFiltered
	}
	if matchAny(e.exclude, file) {
		return e.token, errFiltered
	}
	return e.token, nil
}

func equalParts(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var hexToken = regexp.MustCompile(`^0[xX][0-9A-Fa-f]+$`)

// hexClassifier takes the single 0x-prefixed token of the label verbatim.
type hexClassifier struct{}

func (hexClassifier) Classify(label, _ string) (string, error) {
	var variant string
	for _, word := range strings.Split(label, "_") {
		if !hexToken.MatchString(word) {
			continue
		}
		if variant != "" {
			return "", fmt.Errorf("ambiguous: hex tokens %s and %s", variant, word)
		}
		variant = word
	}
	if variant == "" {
		return "", fmt.Errorf("no hex token in %q", label)
	}
	return variant, nil
}

// enumClassifier strips the namespace from a <Prefix>.<NAME> token.
type enumClassifier struct {
	prefix  string
	pattern *regexp.Regexp
}

func newEnum(prefix string) (*enumClassifier, error) {
	if prefix == "" {
		return nil, fmt.Errorf("enum rule needs a prefix")
	}
	pattern, err := regexp.Compile(`(?:^|_)` + regexp.QuoteMeta(prefix) + `\.([A-Za-z][A-Za-z0-9_]*)`)
	if err != nil {
		return nil, err
	}
	return &enumClassifier{prefix: prefix, pattern: pattern}, nil
}

func (c *enumClassifier) Classify(label, _ string) (string, error) {
	matches := c.pattern.FindAllStringSubmatch(label, -1)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s.<NAME> token in %q", c.prefix, label)
	case 1:
		return strings.TrimRight(matches[0][1], "_"), nil
	default:
		return "", fmt.Errorf("ambiguous: %d %s tokens in %q", len(matches), c.prefix, label)
	}
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("marker %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
