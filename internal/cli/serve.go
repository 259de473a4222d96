package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/toolserver"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run-tools"},
	Short:   "Start the tool server",
	Long: `Start the JSON-RPC tool server used by generate-metadata. It serves
get_metadata_schema and get_resource_data over WebSocket at /ws, with
/healthz and /metrics alongside. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := startToolServer(env)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tool server listening on ws://%s/ws\n", server.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(tracing.Detach(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func startToolServer(env *environment) (*toolserver.Server, error) {
	info, err := os.Stat(env.cfg.Tools.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory is not a directory: %s", env.cfg.Tools.DataDir)
	}

	reg := toolserver.NewRegistry()
	if err := toolserver.RegisterBuiltinTools(reg, env.cfg.Tools.DataDir); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	server, err := toolserver.NewServer(toolserver.Config{
		Addr:     env.cfg.Tools.ListenAddr,
		Version:  version,
		Registry: reg,
		Logger:   env.log.Component("toolserver"),
	})
	if err != nil {
		return nil, err
	}
	if err := server.Start(); err != nil {
		return nil, err
	}
	return server, nil
}
