package device

import (
	"fmt"
	"strconv"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
)

// Mode is the IOAM insertion mode of a route.
type Mode int

const (
	ModeInline Mode = iota + 1
	ModeEncap
	ModeEncapTunSrc
)

var modeNames = map[Mode]string{
	ModeInline:      "INLINE",
	ModeEncap:       "ENCAP",
	ModeEncapTunSrc: "ENCAP_TUNSRC",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// Encapsulating reports whether packets get an outer IPv6 header.
func (m Mode) Encapsulating() bool {
	return m == ModeEncap || m == ModeEncapTunSrc
}

func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// RouteSpec is an IOAM6 DEX route for the benchmark prefix.
type RouteSpec struct {
	Prefix    string
	Via       string
	Dev       string
	Mode      Mode
	Pair      axis.Pair
	Namespace int
	TraceType string
	ExtFlags  string
	TunSrc    string
	TunDst    string
}

// NewRouteSpec fills a route from the device defaults. traceType and
// extFlags override the defaults when non-empty.
func NewRouteSpec(cfg config.DeviceConfig, mode Mode, pair axis.Pair, traceType, extFlags string) RouteSpec {
	spec := RouteSpec{
		Prefix:    cfg.Prefix,
		Via:       cfg.Via,
		Dev:       cfg.Dev,
		Mode:      mode,
		Pair:      pair,
		Namespace: cfg.Namespace.ID,
		TraceType: cfg.TraceType,
		ExtFlags:  cfg.ExtFlags,
		TunSrc:    cfg.TunSrc,
		TunDst:    cfg.TunDst,
	}
	if traceType != "" {
		spec.TraceType = traceType
	}
	if extFlags != "" {
		spec.ExtFlags = extFlags
	}
	return spec
}

func (r RouteSpec) Validate() error {
	if r.Prefix == "" || r.Via == "" || r.Dev == "" {
		return fmt.Errorf("route needs prefix, via and dev")
	}
	if err := r.Pair.Validate(); err != nil {
		return err
	}
	switch r.Mode {
	case ModeInline:
	case ModeEncap:
		if r.TunDst == "" {
			return fmt.Errorf("encap mode needs tundst")
		}
	case ModeEncapTunSrc:
		if r.TunSrc == "" || r.TunDst == "" {
			return fmt.Errorf("encap tunsrc mode needs tunsrc and tundst")
		}
	default:
		return fmt.Errorf("unknown mode %d", r.Mode)
	}
	return nil
}

// AddArgs renders `ip -6 r a` for the route. The frequency is k/n with k
// the instrumented count and n the total.
func (r RouteSpec) AddArgs() []string {
	args := []string{"-6", "r", "a", r.Prefix, "encap", "ioam6",
		"freq", strconv.Itoa(r.Pair.Instrumented) + "/" + strconv.Itoa(r.Pair.Total())}

	switch r.Mode {
	case ModeInline:
		args = append(args, "mode", "inline")
	case ModeEncap:
		args = append(args, "mode", "encap", "tundst", r.TunDst)
	case ModeEncapTunSrc:
		args = append(args, "mode", "encap", "tunsrc", r.TunSrc, "tundst", r.TunDst)
	}

	return append(args,
		"dex", "ns", strconv.Itoa(r.Namespace),
		"trace-type", r.TraceType,
		"ext-flags", r.ExtFlags,
		"via", r.Via,
		"dev", r.Dev,
	)
}
