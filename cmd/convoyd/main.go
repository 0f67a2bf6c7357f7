// Command convoyd is the orchestrator service's entrypoint: it loads
// configuration, wires every collaborator package together, and serves
// the chat endpoint over HTTP.
//
// Usage:
//
//	convoyd serve --config config.yaml
//	convoyd validate --config config.yaml
//	convoyd migrate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP/SSE server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file and exit."`
	Migrate  MigrateCmd  `cmd:"" help:"Apply the SQL persistence schema and exit."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("convoyd"),
		kong.Description("Multi-tenant AI assistant orchestrator."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM, the shutdown
// trigger for ServeCmd's graceful-shutdown sequence.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()
	return ctx, cancel
}
