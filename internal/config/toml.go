// Package config provides configuration helpers and TOML parsing.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/verte-zerg/tripscore/internal/stats"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Eval       EvalConfig                 `toml:"eval"`
	Spatial    SpatialConfig              `toml:"spatial"`
	Partitions map[string]PartitionConfig `toml:"partitions"`
}

// EvalConfig maps evaluation settings.
type EvalConfig struct {
	SetType        *string `toml:"set-type"`
	Evaluator      *string `toml:"evaluator"`
	CommonsenseCmd *string `toml:"commonsense-cmd"`
	HardCmd        *string `toml:"hard-cmd"`
	Workers        *int    `toml:"workers"`
	Format         *string `toml:"format"`
	Save           *bool   `toml:"save"`
}

// SpatialConfig maps the decay curve and record layout.
type SpatialConfig struct {
	D0      *float64 `toml:"d0"`
	Lambda  *float64 `toml:"lambda"`
	PlanKey *string  `toml:"plan-key"`
}

// PartitionConfig overrides the denominators of one set type.
type PartitionConfig struct {
	Delivery         *int `toml:"delivery"`
	CommonsenseMicro *int `toml:"commonsense-micro"`
	CommonsenseMacro *int `toml:"commonsense-macro"`
	HardMicro        *int `toml:"hard-micro"`
	HardMacro        *int `toml:"hard-macro"`
	Final            *int `toml:"final"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return FileConfig{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadEnv loads variables from .env files when present. Variables already
// set in the environment win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyPartitions overlays configured denominators on the defaults. Unknown
// names add a new set type; missing fields keep the default (or zero).
func (c FileConfig) ApplyPartitions(defaults map[string]stats.Partition) map[string]stats.Partition {
	out := make(map[string]stats.Partition, len(defaults)+len(c.Partitions))
	for name, p := range defaults {
		out[name] = p
	}
	for name, pc := range c.Partitions {
		key := strings.ToLower(strings.TrimSpace(name))
		p, ok := out[key]
		if !ok {
			p = stats.Partition{Name: key}
		}
		setInt(&p.Delivery, pc.Delivery)
		setInt(&p.CommonsenseMicro, pc.CommonsenseMicro)
		setInt(&p.CommonsenseMacro, pc.CommonsenseMacro)
		setInt(&p.HardMicro, pc.HardMicro)
		setInt(&p.HardMacro, pc.HardMacro)
		setInt(&p.Final, pc.Final)
		out[key] = p
	}
	return out
}

func setInt(target, value *int) {
	if value != nil {
		*target = *value
	}
}
