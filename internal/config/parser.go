package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ioam-bench/internal/logging"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultConfig mirrors the lab setup the DUT scripts were written for.
// Loaded files override individual fields.
func DefaultConfig() SweepConfig {
	return SweepConfig{
		Sweep: SweepInfo{
			Kind:        KindPacket,
			Order:       OrderVariantMajor,
			Iterations:  10,
			RequireRoot: true,
			LogLevel:    "info",
		},
		Remote: RemoteConfig{
			Port:    22,
			Python:  "python3",
			Output:  "stats.txt",
			Timeout: 30 * time.Minute,
		},
		Device: DeviceConfig{
			IPBinary: "/usr/bin/ip",
			Sudo:     true,
			Prefix:   "cd00::/64",
			Via:      "db02::1",
			Dev:      "ens6f1",
			Schema:   21,
			Namespace: NamespaceConfig{
				ID:   123,
				Data: "0x1234",
				Wide: "0x12345678",
			},
			TraceType: "0x800000",
			ExtFlags:  "0x00",
			TunSrc:    "db02::2",
			TunDst:    "db02::1",
			Tunnel: TunnelConfig{
				Link:   "ip6tnl0",
				Module: "ip6_tunnel",
			},
		},
		Extract: ExtractConfig{
			Suffix:     "_stats.txt",
			Delimiter:  ";",
			Workers:    4,
			Confidence: 0.95,
			Divisor:    1e5,
			Rule: VariantRule{
				EnumPrefix: "Mode",
			},
		},
		Report: ReportConfig{
			XLabel: `Injection rate (in \%)`,
			YLabel: `pps received ($10^5$)`,
			YMax:   14,
		},
	}
}

func LoadConfig(filepath string) (*SweepConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*SweepConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	config, err := ParseConfig([]byte(expandEnvVars(originalContent)))
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	return config, originalContent, nil
}

// ParseConfig decodes an already expanded document on top of DefaultConfig
// and validates the result.
func ParseConfig(data []byte) (*SweepConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if config.Sweep.Prefix == "" {
		config.Sweep.Prefix = config.Sweep.Name
	}
	if config.Extract.Rule.Kind == "" {
		config.Extract.Rule.Kind = ruleForKind(config.Sweep.Kind)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func ruleForKind(kind string) string {
	switch kind {
	case KindMode:
		return RuleEnum
	case KindExtFlag, KindTraceType:
		return RuleHex
	default:
		return RuleVocabulary
	}
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

// ParseHexByte accepts "0x00".."0xFF".
func ParseHexByte(s string) (uint8, error) {
	v, err := parseHex(s, 8)
	return uint8(v), err
}

// ParseTraceType accepts a 24-bit trace-type mask such as "0x800000".
func ParseTraceType(s string) (uint32, error) {
	v, err := parseHex(s, 24)
	return uint32(v), err
}

func parseHex(s string, bits int) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("%q: expected 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return v, nil
}

var modes = map[string]bool{"INLINE": true, "ENCAP": true, "ENCAP_TUNSRC": true}

func validateConfig(config *SweepConfig) error {
	sweep := config.Sweep
	if sweep.Name == "" {
		return fmt.Errorf("sweep name is required")
	}
	if sweep.Iterations <= 0 {
		return fmt.Errorf("iterations must be greater than 0")
	}
	if sweep.Order != OrderVariantMajor && sweep.Order != OrderFrequencyMajor {
		return fmt.Errorf("unknown order %q", sweep.Order)
	}
	if _, err := config.FrequencyAxis(); err != nil {
		return err
	}

	switch sweep.Kind {
	case KindPacket, KindMode, KindExtFlag, KindTraceType:
	default:
		return fmt.Errorf("unknown sweep kind %q", sweep.Kind)
	}
	if len(sweep.Variants) == 0 && len(config.Extract.Rule.Variants) == 0 {
		return fmt.Errorf("at least one variant must be defined")
	}

	seen := make(map[string]bool, len(sweep.Variants))
	for _, v := range sweep.Variants {
		if seen[v] {
			return fmt.Errorf("variant %s is listed twice", v)
		}
		seen[v] = true

		switch sweep.Kind {
		case KindPacket:
			if v == "" && !sweep.InsertionDEX {
				return fmt.Errorf("packet name cannot be empty")
			}
		case KindMode:
			if !modes[v] {
				return fmt.Errorf("unknown mode %q", v)
			}
		case KindExtFlag:
			if _, err := ParseHexByte(v); err != nil {
				return fmt.Errorf("ext flags: %w", err)
			}
		case KindTraceType:
			if _, err := ParseTraceType(v); err != nil {
				return fmt.Errorf("trace type: %w", err)
			}
		}
	}

	if _, err := ParseTraceType(config.Device.TraceType); err != nil {
		return fmt.Errorf("device trace type: %w", err)
	}
	if _, err := ParseHexByte(config.Device.ExtFlags); err != nil {
		return fmt.Errorf("device ext flags: %w", err)
	}

	if config.Remote.ConnectRetries < 0 {
		return fmt.Errorf("connect_retries cannot be negative")
	}
	if config.Remote.Timeout < 0 {
		return fmt.Errorf("remote timeout cannot be negative")
	}

	if err := validateExtract(config.Extract); err != nil {
		return err
	}

	db := config.Data.DB
	if db.Enabled() && (db.Name == "" || db.Password == "" || db.Org == "") {
		return fmt.Errorf("incomplete database configuration")
	}

	return nil
}

func validateExtract(e ExtractConfig) error {
	if e.Suffix == "" {
		return fmt.Errorf("extract suffix is required")
	}
	if len([]rune(e.Delimiter)) != 1 {
		return fmt.Errorf("extract delimiter must be a single character")
	}
	if e.Workers <= 0 {
		return fmt.Errorf("extract workers must be greater than 0")
	}
	if e.Confidence <= 0 || e.Confidence >= 1 {
		return fmt.Errorf("confidence must be in (0, 1)")
	}
	if e.Divisor == 0 {
		return fmt.Errorf("divisor cannot be 0")
	}

	switch e.Rule.Kind {
	case RuleVocabulary, RuleHex:
	case RuleEnum:
		if e.Rule.EnumPrefix == "" {
			return fmt.Errorf("enum rule needs enum_prefix")
		}
	default:
		return fmt.Errorf("unknown variant rule %q", e.Rule.Kind)
	}

	patterns := append(append([]string{}, e.Include...), e.Exclude...)
	tokens := make(map[string]bool, len(e.Rule.Variants))
	for _, v := range e.Rule.Variants {
		if v.Token == "" {
			return fmt.Errorf("empty variant token")
		}
		if tokens[v.Token] {
			return fmt.Errorf("variant token %s is listed twice", v.Token)
		}
		tokens[v.Token] = true
		patterns = append(patterns, v.Include...)
		patterns = append(patterns, v.Exclude...)
	}
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("marker %q: %w", p, err)
		}
	}
	return nil
}
