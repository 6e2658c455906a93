package axis

import (
	"fmt"
	"math"
	"strconv"
)

// Axis is an ordered, closed set of admissible values for one sweep
// dimension. The position of a value is its canonical matrix index.
type Axis[T comparable] struct {
	name   string
	values []T
	index  map[T]int
}

func New[T comparable](name string, values ...T) (*Axis[T], error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("axis %s: no values", name)
	}

	a := &Axis[T]{
		name:   name,
		values: make([]T, 0, len(values)),
		index:  make(map[T]int, len(values)),
	}
	for _, v := range values {
		if _, dup := a.index[v]; dup {
			return nil, fmt.Errorf("axis %s: duplicate value %v", name, v)
		}
		a.index[v] = len(a.values)
		a.values = append(a.values, v)
	}
	return a, nil
}

func (a *Axis[T]) Name() string {
	return a.name
}

func (a *Axis[T]) Len() int {
	return len(a.values)
}

func (a *Axis[T]) Index(v T) (int, bool) {
	i, ok := a.index[v]
	return i, ok
}

func (a *Axis[T]) Values() []T {
	out := make([]T, len(a.values))
	copy(out, a.values)
	return out
}

// Pair is an injection frequency given as packet counts: Instrumented IOAM
// packets for every Baseline plain packets.
type Pair struct {
	Baseline     int `yaml:"baseline" json:"baseline"`
	Instrumented int `yaml:"instrumented" json:"instrumented"`
}

var ErrZeroPair = fmt.Errorf("baseline and instrumented counts cannot both be 0")

func (p Pair) Validate() error {
	if p.Baseline < 0 || p.Instrumented < 0 {
		return fmt.Errorf("pair %d_%d: counts cannot be negative", p.Baseline, p.Instrumented)
	}
	if p.Baseline == 0 && p.Instrumented == 0 {
		return ErrZeroPair
	}
	if p.Baseline > math.MaxInt-p.Instrumented {
		return fmt.Errorf("pair %d_%d: total overflows", p.Baseline, p.Instrumented)
	}
	return nil
}

func (p Pair) Total() int {
	return p.Baseline + p.Instrumented
}

// Fraction returns instrumented / (baseline + instrumented). It is NaN for
// an invalid pair.
func (p Pair) Fraction() float64 {
	if p.Validate() != nil {
		return math.NaN()
	}
	return float64(p.Instrumented) / float64(p.Total())
}

// Percent is computed with a single division so that the canonical scale
// prints as 0.001, 0.01, ... 100 without rounding noise.
func (p Pair) Percent() float64 {
	if p.Validate() != nil {
		return math.NaN()
	}
	return 100 * float64(p.Instrumented) / float64(p.Total())
}

func (p Pair) Label() string {
	return strconv.FormatFloat(p.Percent(), 'f', -1, 64)
}

func (p Pair) String() string {
	return fmt.Sprintf("%d/%d", p.Instrumented, p.Total())
}

// DefaultFrequencies is the 9-point injection scale:
// 0.001%, 0.01%, 0.1%, 1%, 5%, 10%, 25%, 50%, 100%.
func DefaultFrequencies() []Pair {
	return []Pair{
		{Baseline: 99999, Instrumented: 1},
		{Baseline: 9999, Instrumented: 1},
		{Baseline: 999, Instrumented: 1},
		{Baseline: 99, Instrumented: 1},
		{Baseline: 19, Instrumented: 1},
		{Baseline: 9, Instrumented: 1},
		{Baseline: 3, Instrumented: 1},
		{Baseline: 1, Instrumented: 1},
		{Baseline: 0, Instrumented: 1},
	}
}

const fractionTolerance = 1e-9

// FrequencyAxis orders injection frequencies. Lookups go by fraction, so
// 2_2 and 1_1 land on the same row.
type FrequencyAxis struct {
	pairs []Pair
}

func NewFrequencyAxis(pairs ...Pair) (*FrequencyAxis, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("frequency axis: no values")
	}
	f := &FrequencyAxis{pairs: make([]Pair, 0, len(pairs))}
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("frequency axis: %w", err)
		}
		if i, dup := f.Index(p.Fraction()); dup {
			return nil, fmt.Errorf("frequency axis: %s duplicates %s", p, f.pairs[i])
		}
		f.pairs = append(f.pairs, p)
	}
	return f, nil
}

func (f *FrequencyAxis) Len() int {
	return len(f.pairs)
}

func (f *FrequencyAxis) Index(fraction float64) (int, bool) {
	for i, p := range f.pairs {
		if sameFraction(p.Fraction(), fraction) {
			return i, true
		}
	}
	return 0, false
}

func (f *FrequencyAxis) Pairs() []Pair {
	out := make([]Pair, len(f.pairs))
	copy(out, f.pairs)
	return out
}

func (f *FrequencyAxis) Labels() []string {
	labels := make([]string, len(f.pairs))
	for i, p := range f.pairs {
		labels[i] = p.Label()
	}
	return labels
}

func sameFraction(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return math.Abs(a-b) <= fractionTolerance*math.Max(math.Abs(a), math.Abs(b))
}
