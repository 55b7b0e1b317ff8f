package runtime

import (
	"github.com/BurntSushi/toml"
)

// Config holds the tunables spec.md §6 exposes as host lifecycle calls
// (set_memory_limit, set_gc_threshold, set_max_stack_size). It can be
// populated from a TOML file, matching the host-configuration convention
// the rest of the retrieval pack's dependency-rich repo uses for its own
// node configuration.
type Config struct {
	MemoryLimit  int `toml:"memory_limit"`
	GCThreshold  int `toml:"gc_threshold"`
	MaxStackSize int `toml:"max_stack_size"`
}

func (c *Config) applyDefaults() {
	if c.GCThreshold <= 0 {
		c.GCThreshold = 256 * 1024
	}
	if c.MaxStackSize <= 0 {
		c.MaxStackSize = defaultMaxStackSize
	}
	// MemoryLimit == 0 means "unbounded", matching the zero-Config default.
}

// LoadConfig reads runtime tunables from a TOML file. A missing or
// malformed file is surfaced to the caller; it is not fatal to construct
// a Runtime from the zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}
