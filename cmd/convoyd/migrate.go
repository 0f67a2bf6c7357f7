package main

import (
	"fmt"

	"github.com/convoyhq/orchestrator/pkg/config"
	"github.com/convoyhq/orchestrator/pkg/persistence"
)

// MigrateCmd opens the configured database and applies the persistence
// schema (conversations, messages, usage_records, mcp_servers,
// custom_tools), idempotently.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := persistence.InitSchema(db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	fmt.Println("schema applied")
	return nil
}
