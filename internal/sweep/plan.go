package sweep

import (
	"fmt"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/device"
	"ioam-bench/internal/remote"
	"ioam-bench/internal/trialfile"

	"github.com/sirupsen/logrus"
)

// Point is one (variant, frequency) combination of a sweep.
type Point struct {
	Index   int
	Variant string
	Pair    axis.Pair
	Name    trialfile.Name
	Params  remote.ProfileParams
	// Route is nil for sweeps that leave the device route alone.
	Route *device.RouteSpec
}

func (p Point) TrialFile() string {
	return p.Name.String()
}

func (p Point) String() string {
	return fmt.Sprintf("%s at %s", p.Variant, p.Pair)
}

func (p Point) Fields() logrus.Fields {
	f := logrus.Fields{
		"step":      p.Index + 1,
		"variant":   p.Variant,
		"pair":      fmt.Sprintf("%d_%d", p.Pair.Baseline, p.Pair.Instrumented),
		"frequency": p.Pair.Label(),
		"file":      p.TrialFile(),
	}
	if p.Route != nil {
		f["mode"] = p.Route.Mode.String()
	}
	return f
}

// Plan is the ordered list of points a sweep visits.
type Plan struct {
	Kind   string
	Points []Point
}

func (p *Plan) Len() int {
	return len(p.Points)
}

// VariesDevice reports whether points reconfigure the device route.
func (p *Plan) VariesDevice() bool {
	return p.Kind != config.KindPacket
}

// NewPlan enumerates the sweep in the configured order and validates every
// point before anything runs.
func NewPlan(cfg *config.SweepConfig) (*Plan, error) {
	variants := cfg.Sweep.Variants
	pairs := cfg.FrequencyPairs()
	if len(variants) == 0 {
		return nil, &PreconditionError{Reason: "no variants to sweep"}
	}
	if len(pairs) == 0 {
		return nil, &PreconditionError{Reason: "no frequencies to sweep"}
	}

	plan := &Plan{Kind: cfg.Sweep.Kind, Points: make([]Point, 0, len(variants)*len(pairs))}
	add := func(variant string, pair axis.Pair) error {
		point, err := newPoint(cfg, len(plan.Points), variant, pair)
		if err != nil {
			return &PreconditionError{Reason: fmt.Sprintf("point %s at %s", variant, pair), Err: err}
		}
		plan.Points = append(plan.Points, point)
		return nil
	}

	switch cfg.Sweep.Order {
	case config.OrderFrequencyMajor:
		for _, pair := range pairs {
			for _, v := range variants {
				if err := add(v, pair); err != nil {
					return nil, err
				}
			}
		}
	default:
		for _, v := range variants {
			for _, pair := range pairs {
				if err := add(v, pair); err != nil {
					return nil, err
				}
			}
		}
	}
	return plan, nil
}

func newPoint(cfg *config.SweepConfig, index int, variant string, pair axis.Pair) (Point, error) {
	if err := pair.Validate(); err != nil {
		return Point{}, err
	}

	p := Point{
		Index:   index,
		Variant: variant,
		Pair:    pair,
		Name: trialfile.Name{
			Prefix:  cfg.Sweep.Prefix,
			Variant: variant,
			Pair:    pair,
			Suffix:  cfg.Extract.Suffix,
		},
		Params: remote.ProfileParams{
			NbMTU:  pair.Baseline,
			NbIOAM: pair.Instrumented,
		},
	}

	var route device.RouteSpec
	switch cfg.Sweep.Kind {
	case config.KindPacket:
		p.Params.PacketName = variant
		p.Params.InsertionDEX = cfg.Sweep.InsertionDEX
		p.Params.EncapMode = cfg.Sweep.EncapMode
		return p, p.Params.Validate()

	case config.KindMode:
		mode, err := device.ParseMode(variant)
		if err != nil {
			return Point{}, err
		}
		p.Name.Variant = enumSegment(cfg.Extract.Rule.EnumPrefix, variant)
		route = device.NewRouteSpec(cfg.Device, mode, pair, "", "")

	case config.KindExtFlag:
		route = device.NewRouteSpec(cfg.Device, device.ModeInline, pair, "", variant)

	case config.KindTraceType:
		route = device.NewRouteSpec(cfg.Device, device.ModeInline, pair, variant, "")

	default:
		return Point{}, fmt.Errorf("unknown sweep kind %q", cfg.Sweep.Kind)
	}

	// The generator only emits IOAM packets; the route decides which of
	// them carry the option.
	p.Params.InsertionDEX = true
	p.Params.EncapMode = route.Mode.Encapsulating()
	if err := p.Params.Validate(); err != nil {
		return Point{}, err
	}
	if err := route.Validate(); err != nil {
		return Point{}, err
	}
	p.Route = &route
	return p, nil
}

// enumSegment renders a mode variant the way the filename carries it, for
// example Mode.ENCAP_TUNSRC.
func enumSegment(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
