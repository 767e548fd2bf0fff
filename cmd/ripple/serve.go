package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/ripple/internal/mcpserver"
	"github.com/jward/ripple/internal/telemetry"
)

func (a *app) serveCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine as MCP tools over stdio",
		Long:  "Runs an MCP server on stdin/stdout exposing lookup_definition, symbol_dependencies, call_chain, plan_change, generate_patches and apply_manifest. With --metrics-addr the engine's metrics are served in Prometheus format.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var metrics *telemetry.Provider
			if metricsAddr != "" {
				var err error
				if metrics, err = telemetry.Setup(); err != nil {
					return err
				}
				defer metrics.Shutdown(context.Background())
			}

			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			srv := mcpserver.New(engine, a.logger)
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer stop()
				return srv.Run(ctx, &mcp.StdioTransport{})
			})
			if metrics != nil {
				a.logger.Info("serving metrics", "addr", metricsAddr)
				g.Go(func() error {
					if err := metrics.Serve(ctx, metricsAddr); err != nil {
						return fmt.Errorf("metrics: %w", err)
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (e.g. :9464)")
	return cmd
}
