package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads the YAML config at path, overlays environment variables
// prefixed CONVOY_ (double underscore separates nesting, e.g.
// CONVOY_SERVER__PORT), applies defaults, and validates the result.
//
// This mirrors the teacher's layered koanf loader (file + env, highest
// priority last) but drops the consul/etcd/zookeeper providers: nothing in
// this service's component design needs a live config watch from a
// coordination service (see SPEC_FULL.md's dropped-dependency ledger).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: "CONVOY_",
		TransformFunc: func(k, v string) (string, any) {
			key := strings.TrimPrefix(k, "CONVOY_")
			key = strings.ToLower(strings.ReplaceAll(key, "__", "."))
			return key, v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
