package pollsched

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tjamet/go-pollsched/internal/constants"
)

// Config holds the scheduler's tunable knobs, loadable from a single YAML
// file (spec.md §4.5-§4.7). Grounded on the snmp_collector config loader's
// lenient, unknown-field-tolerant decode, simplified to one file since this
// module has a single tuning surface rather than several related document
// trees.
type Config struct {
	// Slop is spec.md §4.5's SLOP grace window: a timer due within Slop of
	// now is fired this pass rather than waited for separately.
	Slop time.Duration `yaml:"slop"`

	// DefaultTimeout records the per-pass blocking ceiling (spec.md §6,
	// original_source's MAX_SLEEP_TIME). LoopDefault does not read it: it
	// always uses the fixed 1-second ceiling.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// LogLevel selects the default logger's verbosity ("debug", "info",
	// "warn", "error").
	LogLevel string `yaml:"log_level"`

	// SlaveWaitLimit is L from spec.md §4.7: the number of real objects a
	// slave thunk can attend. The Windows poller does not read it; it uses
	// constants.DefaultSlaveWaitLimit.
	SlaveWaitLimit int `yaml:"slave_wait_limit"`

	// SlaveSlots is S from spec.md §4.7: the number of slave slots reserved
	// at the tail of the main wait array. The Windows poller does not read
	// it; it uses constants.DefaultSlaveSlots.
	SlaveSlots int `yaml:"slave_slots"`

	// Backend names a factory in internal/backend's registry ("poll" is the
	// only one registered). InitDefault does not consult it: it always
	// builds a PollBackend.
	Backend string `yaml:"backend"`
}

// DefaultConfig returns the scheduler's built-in defaults, matching
// internal/constants.
func DefaultConfig() Config {
	return Config{
		Slop:           time.Duration(constants.DefaultSlopMicros) * time.Microsecond,
		DefaultTimeout: time.Duration(constants.DefaultLoopTimeoutMicros) * time.Microsecond,
		LogLevel:       "info",
		SlaveWaitLimit: constants.DefaultSlaveWaitLimit,
		SlaveSlots:     constants.DefaultSlaveSlots,
		Backend:        "poll",
	}
}

// LoadConfig reads path as YAML into a Config seeded with DefaultConfig's
// values, so a file that sets only one field leaves the rest at their
// defaults. Unknown fields are tolerated (KnownFields(false)), the same
// leniency the snmp_collector loader uses, so older config files keep
// working as new knobs are added.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("pollsched: opening config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("pollsched: decoding config %q: %w", path, err)
	}
	return cfg, nil
}

// rawConfig mirrors Config's YAML shape with duration fields as strings
// ("5ms", "1s"), since yaml.v3 has no built-in time.Duration support.
type rawConfig struct {
	Slop           string `yaml:"slop"`
	DefaultTimeout string `yaml:"default_timeout"`
	LogLevel       string `yaml:"log_level"`
	SlaveWaitLimit int    `yaml:"slave_wait_limit"`
	SlaveSlots     int    `yaml:"slave_slots"`
	Backend        string `yaml:"backend"`
}

// UnmarshalYAML decodes through rawConfig, parsing duration strings and
// leaving any field absent from the document at its prior value (the
// default, if Config was seeded via DefaultConfig before decoding).
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Slop != "" {
		d, err := time.ParseDuration(raw.Slop)
		if err != nil {
			return fmt.Errorf("slop: %w", err)
		}
		c.Slop = d
	}
	if raw.DefaultTimeout != "" {
		d, err := time.ParseDuration(raw.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("default_timeout: %w", err)
		}
		c.DefaultTimeout = d
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.SlaveWaitLimit != 0 {
		c.SlaveWaitLimit = raw.SlaveWaitLimit
	}
	if raw.SlaveSlots != 0 {
		c.SlaveSlots = raw.SlaveSlots
	}
	if raw.Backend != "" {
		c.Backend = raw.Backend
	}
	return nil
}
