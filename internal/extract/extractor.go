package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/stats"
	"ioam-bench/internal/trialfile"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Metadata sources.
const (
	SourceFilename = "filename"
	SourceSidecar  = "sidecar"
)

// Entry is one decoded and summarized trial file.
type Entry struct {
	File      string         `json:"file"`
	Variant   string         `json:"variant"`
	Pair      axis.Pair      `json:"pair"`
	Frequency float64        `json:"frequency"`
	Summary   *stats.Summary `json:"summary"`
	Source    string         `json:"source"`
}

// Result maps trial filename to its entry.
type Result map[string]Entry

// Files lists the filenames of r in lexical order.
func (r Result) Files() []string {
	files := make([]string, 0, len(r))
	for f := range r {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

type Extractor struct {
	cfg        config.ExtractConfig
	layout     stats.Layout
	classifier Classifier
	include    []glob.Glob
	exclude    []glob.Glob
	logger     *logrus.Logger
}

// New builds an extractor. vocabulary is used as the token list when the
// rule is a vocabulary without tokens of its own.
func New(cfg config.ExtractConfig, vocabulary []string) (*Extractor, error) {
	classifier, err := NewClassifier(cfg.Rule, vocabulary)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		cfg:        cfg,
		layout:     stats.DefaultLayout(),
		classifier: classifier,
		logger:     logging.GetLogger(),
	}
	e.layout.Delimiter = cfg.DelimiterRune()
	if cfg.Divisor != 0 {
		e.layout.Divisor = cfg.Divisor
	}
	if e.cfg.Suffix == "" {
		e.cfg.Suffix = trialfile.DefaultSuffix
	}
	if e.cfg.Workers <= 0 {
		e.cfg.Workers = 1
	}
	if e.cfg.Confidence == 0 {
		e.cfg.Confidence = stats.DefaultConfidence
	}

	if e.include, err = compileAll(cfg.Include); err != nil {
		return nil, err
	}
	if e.exclude, err = compileAll(cfg.Exclude); err != nil {
		return nil, err
	}
	return e, nil
}

func NewFromConfig(cfg *config.SweepConfig) (*Extractor, error) {
	variants, err := cfg.VariantAxis()
	if err != nil {
		return nil, err
	}
	return New(cfg.Extract, variants.Values())
}

type pending struct {
	file    string
	variant string
	pair    axis.Pair
	source  string
}

// Extract decodes and summarizes every trial file in dir. Any failure
// aborts the pass; no partial result is returned.
func (e *Extractor) Extract(ctx context.Context, dir string) (Result, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Path: dir, Err: err}
	}

	names := make(map[string]bool, len(dirEntries))
	for _, d := range dirEntries {
		names[d.Name()] = true
	}

	var work []pending
	for _, d := range dirEntries {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, e.cfg.Suffix) {
			continue
		}
		if len(e.include) > 0 && !matchAny(e.include, name) {
			continue
		}
		if matchAny(e.exclude, name) {
			continue
		}

		p, err := e.decode(dir, name, names[trialfile.SidecarName(name)])
		if errors.Is(err, errFiltered) {
			e.logger.WithFields(logrus.Fields{"file": name, "variant": p.variant}).Debug("Skipping file rejected by variant markers")
			continue
		}
		if err != nil {
			return nil, err
		}
		work = append(work, p)
	}

	summaries := make([]*stats.Summary, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := stats.Summarize(filepath.Join(dir, work[i].file), e.layout, e.cfg.Confidence)
			if err != nil {
				return err
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(Result, len(work))
	for i, p := range work {
		result[p.file] = Entry{
			File:      p.file,
			Variant:   p.variant,
			Pair:      p.pair,
			Frequency: p.pair.Fraction(),
			Summary:   summaries[i],
			Source:    p.source,
		}
	}

	e.logger.WithFields(logrus.Fields{
		"dir":   dir,
		"files": len(result),
	}).Info("Extraction complete")
	return result, nil
}

func (e *Extractor) decode(dir, name string, hasSidecar bool) (pending, error) {
	stem, _ := trialfile.Stem(name, e.cfg.Suffix)
	pair, pairErr := trialfile.ParsePair(name, e.cfg.Suffix)

	var variant string
	var variantErr error
	if pairErr == nil {
		variant, variantErr = e.classifier.Classify(labelOf(stem), name)
	}

	if !hasSidecar {
		if pairErr != nil {
			return pending{}, &PatternError{File: name, Reason: "no frequency pair", Err: pairErr}
		}
		if variantErr != nil && !errors.Is(variantErr, errFiltered) {
			return pending{}, &PatternError{File: name, Reason: "no variant", Err: variantErr}
		}
		return pending{file: name, variant: variant, pair: pair, source: SourceFilename}, variantErr
	}

	sidecarPath := filepath.Join(dir, trialfile.SidecarName(name))
	sc, err := trialfile.LoadSidecar(sidecarPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pending{}, &IOError{Path: sidecarPath, Err: err}
		}
		return pending{}, &PatternError{File: name, Reason: "bad sidecar", Err: err}
	}

	scVariant, scErr := e.classifier.Classify(sc.Variant, name)
	if scErr != nil && !errors.Is(scErr, errFiltered) {
		return pending{}, &PatternError{File: name, Reason: "sidecar variant", Err: scErr}
	}
	if pairErr == nil && pair != sc.Pair {
		return pending{}, &PatternError{File: name, Reason: fmt.Sprintf("sidecar pair %d_%d disagrees with filename", sc.Pair.Baseline, sc.Pair.Instrumented)}
	}
	if pairErr == nil && variantErr == nil && variant != scVariant {
		return pending{}, &PatternError{File: name, Reason: fmt.Sprintf("sidecar variant %s disagrees with filename variant %s", scVariant, variant)}
	}
	return pending{file: name, variant: scVariant, pair: sc.Pair, source: SourceSidecar}, scErr
}

// labelOf drops the trailing _<baseline>_<instrumented> from a stem.
func labelOf(stem string) string {
	for n := 0; n < 2; n++ {
		i := strings.LastIndexByte(stem, '_')
		if i < 0 {
			return ""
		}
		stem = stem[:i]
	}
	return stem
}
