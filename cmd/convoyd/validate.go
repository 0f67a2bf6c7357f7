package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/convoyhq/orchestrator/pkg/config"
)

// ValidateCmd loads and validates a configuration file without starting
// the server, for use in CI or a pre-deploy check.
type ValidateCmd struct {
	// Verbose prints the fully-expanded configuration (defaults applied,
	// env overlay resolved) as YAML, grounded on the teacher's
	// printExpandedConfig verbose mode (cmd/hector/validate.go).
	Verbose bool `help:"Print the expanded configuration (defaults applied) as YAML."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: %d LLM provider(s), %d tenant(s), database driver %q\n",
		len(cfg.LLM.Providers), len(cfg.Tenants), cfg.Database.Driver)

	if c.Verbose {
		fmt.Printf("\n# Expanded configuration from: %s\n\n", cli.Config)
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encode config as yaml: %w", err)
		}
	}
	return nil
}
