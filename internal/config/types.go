package config

import (
	"fmt"
	"time"

	"ioam-bench/internal/axis"

	"gopkg.in/yaml.v3"
)

type SweepConfig struct {
	Sweep   SweepInfo     `yaml:"sweep"`
	Remote  RemoteConfig  `yaml:"remote"`
	Device  DeviceConfig  `yaml:"device"`
	Extract ExtractConfig `yaml:"extract"`
	Report  ReportConfig  `yaml:"report"`
	Data    DataConfig    `yaml:"data"`
}

// Sweep kinds.
const (
	KindPacket    = "packet"
	KindMode      = "mode"
	KindExtFlag   = "extflag"
	KindTraceType = "tracetype"
)

// Enumeration orders.
const (
	OrderVariantMajor   = "variant-major"
	OrderFrequencyMajor = "frequency-major"
)

type SweepInfo struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Kind        string      `yaml:"kind"`
	Prefix      string      `yaml:"prefix"`
	Order       string      `yaml:"order"`
	Iterations  int         `yaml:"iterations"`
	Variants    []string    `yaml:"variants"`
	Frequencies []axis.Pair `yaml:"frequencies"`
	// InsertionDEX and EncapMode are forwarded to the profile runner. Sweeps
	// that vary device state derive EncapMode from the variant instead.
	InsertionDEX bool   `yaml:"insertion_dex"`
	EncapMode    bool   `yaml:"encap_mode"`
	DryRun       bool   `yaml:"dry_run"`
	Resume       bool   `yaml:"resume"`
	RequireRoot  bool   `yaml:"require_root"`
	LogLevel     string `yaml:"log_level"`
}

type RemoteConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	KeyFile        string        `yaml:"key_file"`
	KnownHosts     string        `yaml:"known_hosts"`
	Python         string        `yaml:"python"`
	Runner         string        `yaml:"runner"`
	WorkDir        string        `yaml:"workdir"`
	Output         string        `yaml:"output"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectRetries int           `yaml:"connect_retries"`
}

func (r RemoteConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type DeviceConfig struct {
	IPBinary  string          `yaml:"ip_binary"`
	Sudo      bool            `yaml:"sudo"`
	Prefix    string          `yaml:"prefix"`
	Via       string          `yaml:"via"`
	Dev       string          `yaml:"dev"`
	Schema    int             `yaml:"schema"`
	Namespace NamespaceConfig `yaml:"namespace"`
	TraceType string          `yaml:"trace_type"`
	ExtFlags  string          `yaml:"ext_flags"`
	TunSrc    string          `yaml:"tunsrc"`
	TunDst    string          `yaml:"tundst"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
}

type NamespaceConfig struct {
	ID   int    `yaml:"id"`
	Data string `yaml:"data"`
	Wide string `yaml:"wide"`
}

type TunnelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Link    string `yaml:"link"`
	Module  string `yaml:"module"`
}

// Variant decoding rules.
const (
	RuleVocabulary = "vocabulary"
	RuleHex        = "hex"
	RuleEnum       = "enum"
)

type ExtractConfig struct {
	Dir        string      `yaml:"dir"`
	Suffix     string      `yaml:"suffix"`
	Delimiter  string      `yaml:"delimiter"`
	Include    []string    `yaml:"include"`
	Exclude    []string    `yaml:"exclude"`
	Workers    int         `yaml:"workers"`
	Confidence float64     `yaml:"confidence"`
	Divisor    float64     `yaml:"divisor"`
	Rule       VariantRule `yaml:"rule"`
}

func (e ExtractConfig) DelimiterRune() rune {
	for _, r := range e.Delimiter {
		return r
	}
	return ';'
}

type VariantRule struct {
	Kind string `yaml:"kind"`
	// EnumPrefix is the namespace stripped from enum tokens, e.g. "Mode".
	EnumPrefix string        `yaml:"enum_prefix"`
	Variants   []VariantSpec `yaml:"variants"`
}

// VariantSpec is a vocabulary entry. In YAML it is either a bare token or
// a single-key map carrying glob markers:
//
//	- NO_EXT
//	- FLOW: {exclude: ["*SEQ*"]}
type VariantSpec struct {
	Token   string   `yaml:"-"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

func (v *VariantSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Token = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: variant entry must have exactly one token", node.Line)
		}
		v.Token = node.Content[0].Value
		var markers struct {
			Include []string `yaml:"include"`
			Exclude []string `yaml:"exclude"`
		}
		if err := node.Content[1].Decode(&markers); err != nil {
			return fmt.Errorf("variant %s: %w", v.Token, err)
		}
		v.Include = markers.Include
		v.Exclude = markers.Exclude
		return nil
	default:
		return fmt.Errorf("line %d: unexpected variant entry", node.Line)
	}
}

type ReportConfig struct {
	CSV       string            `yaml:"csv"`
	WidthsCSV string            `yaml:"widths_csv"`
	Plot      string            `yaml:"plot"`
	TikZ      string            `yaml:"tikz"`
	Title     string            `yaml:"title"`
	XLabel    string            `yaml:"xlabel"`
	YLabel    string            `yaml:"ylabel"`
	YMin      float64           `yaml:"y_min"`
	YMax      float64           `yaml:"y_max"`
	Baseline  float64           `yaml:"baseline"`
	Labels    map[string]string `yaml:"labels"`
	Metrics   string            `yaml:"metrics"`
	Manifest  string            `yaml:"manifest"`
}

type DataConfig struct {
	DB DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// FrequencyPairs returns the configured pairs or the canonical 9-point scale.
func (c *SweepConfig) FrequencyPairs() []axis.Pair {
	if len(c.Sweep.Frequencies) == 0 {
		return axis.DefaultFrequencies()
	}
	out := make([]axis.Pair, len(c.Sweep.Frequencies))
	copy(out, c.Sweep.Frequencies)
	return out
}

func (c *SweepConfig) FrequencyAxis() (*axis.FrequencyAxis, error) {
	return axis.NewFrequencyAxis(c.FrequencyPairs()...)
}

// VariantAxis lists the variant labels in configured order: the decoding
// rule's vocabulary when there is one, the sweep variants otherwise.
func (c *SweepConfig) VariantAxis() (*axis.Axis[string], error) {
	labels := c.Sweep.Variants
	if rule := c.Extract.Rule; len(rule.Variants) > 0 {
		labels = make([]string, len(rule.Variants))
		for i, v := range rule.Variants {
			labels[i] = v.Token
		}
	}
	return axis.New("variant", labels...)
}
