package lattice

import (
	"os"

	"github.com/BurntSushi/toml"
	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// ConfigFileEnvVar names an optional TOML file loaded underneath the
// environment: defaults < file < env < programmatic options.
const ConfigFileEnvVar = "LATTICE_CONFIG"

// Config carries the tunables of one engine instance.
type Config struct {
	// NumWorkers is the worker pool size. Zero means one worker per logical
	// CPU.
	NumWorkers int `config:"LATTICE_NUM_WORKERS" toml:"num_workers"`

	// EntityCapacity is the entity table size (fixed mode) or initial size
	// hint (dynamic mode).
	EntityCapacity int `config:"LATTICE_ENTITY_CAPACITY" toml:"entity_capacity"`

	// DynamicCapacity selects growable entity storage. Fixed mode avoids
	// growth checks on ID allocation and fails creation with
	// ErrCapacityExhausted when full.
	DynamicCapacity bool `config:"LATTICE_DYNAMIC_CAPACITY" toml:"dynamic_capacity"`

	// DisallowInnerParallelism forces a single subtask for every system
	// regardless of per-system policy.
	DisallowInnerParallelism bool `config:"LATTICE_DISALLOW_INNER_PARALLELISM" toml:"disallow_inner_parallelism"`

	// StatsdAddress enables metric emission when non-empty.
	StatsdAddress string `config:"LATTICE_STATSD_ADDRESS" toml:"statsd_address"`

	// StatsdTags is a comma-separated list of tags attached to every emitted
	// metric.
	StatsdTags string `config:"LATTICE_STATSD_TAGS" toml:"statsd_tags"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      0,
		EntityCapacity:  1024,
		DynamicCapacity: true,
	}
}

// LoadConfig builds a Config from defaults, the optional TOML file named by
// LATTICE_CONFIG, and matching environment variables, in that order.
func LoadConfig() (Config, error) {
	c := DefaultConfig()

	if path, ok := os.LookupEnv(ConfigFileEnvVar); ok && path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return c, eris.Wrapf(err, "failed to load config file %q", path)
		}
	}

	if err := jlconfig.FromEnv().To(&c); err != nil {
		return c, eris.Wrap(err, "failed to load config from environment")
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	if c.NumWorkers < 0 {
		return eris.Wrapf(ErrConfiguration, "NumWorkers must be >= 0, got %d", c.NumWorkers)
	}
	if c.EntityCapacity < 1 {
		return eris.Wrapf(ErrConfiguration, "EntityCapacity must be >= 1, got %d", c.EntityCapacity)
	}
	return nil
}
