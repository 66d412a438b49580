package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SequenceVariant selects which step script a sequence run executes.
type SequenceVariant string

const (
	// VariantClassic is the historical script: fixed 3-second waits with a
	// servo sub-command raising the dispenser arm.
	VariantClassic SequenceVariant = "classic"

	// VariantTimed is the current script: operator-configured durations,
	// no servo step.
	VariantTimed SequenceVariant = "timed"
)

// SerialConfig holds transport settings. Rate and framing are fixed by the
// device (115200 8N1); only the port path is configurable.
type SerialConfig struct {
	Port string `yaml:"port"`
}

// TimingConfig holds the pacing constants of the write path.
type TimingConfig struct {
	// SettleDelay is the mandatory pause after every transmission attempt.
	SettleDelay time.Duration `yaml:"-"`

	SettleDelayMs int `yaml:"settleDelayMs"`
}

// SequenceConfig parameterizes a reward sequence run. It is read once at
// run start.
type SequenceConfig struct {
	Variant SequenceVariant `yaml:"variant"`

	// Skill codes sent at the start and end of the sequence.
	CelebrateSkill string `yaml:"celebrateSkill"`
	RestSkill      string `yaml:"restSkill"`

	// Durations for the timed variant. The classic variant ignores these
	// and uses fixed 3-second waits.
	PreDispense   time.Duration `yaml:"-"`
	Dispense      time.Duration `yaml:"-"`
	PreDispenseMs int           `yaml:"preDispenseMs"`
	DispenseMs    int           `yaml:"dispenseMs"`
}

// APIConfig holds the northbound HTTP surface settings.
type APIConfig struct {
	Addr string `yaml:"addr"`

	// JWTSecret enables bearer-token auth on mutating routes when set.
	JWTSecret string `yaml:"jwtSecret"`
}

// Config is the root configuration document.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Timing   TimingConfig   `yaml:"timing"`
	Sequence SequenceConfig `yaml:"sequence"`
	API      APIConfig      `yaml:"api"`

	// AuditDir is where the append-only action log lives.
	AuditDir string `yaml:"auditDir"`

	// RecentLogSize bounds the hub's retained entry window.
	RecentLogSize int `yaml:"recentLogSize"`

	mu sync.Mutex
}

// Baseline returns the baked-in default configuration.
func Baseline() *Config {
	return &Config{
		Serial: SerialConfig{Port: "/dev/ttyUSB0"},
		Timing: TimingConfig{
			SettleDelay:   50 * time.Millisecond,
			SettleDelayMs: 50,
		},
		Sequence: SequenceConfig{
			Variant:        VariantTimed,
			CelebrateSkill: "khi",
			RestSkill:      "ksit",
			PreDispense:    3 * time.Second,
			Dispense:       4 * time.Second,
			PreDispenseMs:  3000,
			DispenseMs:     4000,
		},
		API:           APIConfig{Addr: ":8000"},
		AuditDir:      "logs",
		RecentLogSize: 200,
	}
}

// Load returns the baseline overlaid with the YAML file at path. An empty
// path yields the baseline unchanged.
func Load(path string) (*Config, error) {
	cfg := Baseline()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// normalize converts the millisecond fields parsed from YAML into durations.
func (c *Config) normalize() {
	c.Timing.SettleDelay = time.Duration(c.Timing.SettleDelayMs) * time.Millisecond
	c.Sequence.PreDispense = time.Duration(c.Sequence.PreDispenseMs) * time.Millisecond
	c.Sequence.Dispense = time.Duration(c.Sequence.DispenseMs) * time.Millisecond
}

// Validate rejects configurations the controller cannot run with.
func (c *Config) Validate() error {
	if c.Timing.SettleDelay <= 0 {
		return fmt.Errorf("timing: settle delay must be positive, got %v", c.Timing.SettleDelay)
	}
	switch c.Sequence.Variant {
	case VariantClassic, VariantTimed:
	default:
		return fmt.Errorf("sequence: unknown variant %q", c.Sequence.Variant)
	}
	if c.Sequence.CelebrateSkill == "" || c.Sequence.RestSkill == "" {
		return fmt.Errorf("sequence: skill codes must not be empty")
	}
	if c.Sequence.Variant == VariantTimed {
		if c.Sequence.PreDispense <= 0 || c.Sequence.Dispense <= 0 {
			return fmt.Errorf("sequence: timed variant requires positive durations")
		}
	}
	if c.RecentLogSize < 0 {
		return fmt.Errorf("recentLogSize must not be negative, got %d", c.RecentLogSize)
	}
	return nil
}

// SequenceSettings returns a copy of the sequence parameters. The sequence
// controller calls this at run start.
func (c *Config) SequenceSettings() SequenceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Sequence
}

// SetSequenceSettings replaces the sequence parameters, taking effect on the
// next run.
func (c *Config) SetSequenceSettings(s SequenceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sequence = s
}
