package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "0.1.0"

	portFlag int
	hostFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server or the admin API",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			a.bootstrap(ctx)
			a.watch(ctx)

			srv := server.NewMCPServer(
				"memoria",
				version,
				server.WithLogging(),
				server.WithToolCapabilities(true),
			)

			rt := a.runtime()
			rt.Register(srv)

			unsubscribe := a.coordinator.Bus().Subscribe(rt.Refresh)
			defer unsubscribe()

			log.Info("serving mcp over stdio", "project", a.resolver.CurrentProject())

			return server.ServeStdio(srv)
		},
	}

	adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Serve the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			a.bootstrap(ctx)
			a.watch(ctx)

			srv := a.admin()

			go func() {
				<-ctx.Done()

				if err := srv.Shutdown(); err != nil {
					log.Warn("admin shutdown failed", "error", err)
				}
			}()

			return srv.Run(fmt.Sprintf("%s:%d", resolveHost(), resolvePort()))
		},
	}
)

func resolveHost() string {
	if hostFlag != "" {
		return hostFlag
	}

	if host := viper.GetString("admin.host"); host != "" {
		return host
	}

	return "127.0.0.1"
}

func resolvePort() int {
	if portFlag > 0 {
		return portFlag
	}

	if port := viper.GetInt("admin.port"); port > 0 {
		return port
	}

	return 3211
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(mcpCmd)
	serveCmd.AddCommand(adminCmd)

	adminCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Port to serve on (default admin.port)")
	adminCmd.Flags().StringVarP(&hostFlag, "host", "H", "", "Host address to bind to (default admin.host)")
}

var longServe = `
Serve the memory tools to an MCP client, or the admin API for the web admin.

Examples:
  # Register with an MCP client as a stdio server
  memoria serve mcp

  # Serve the admin API on port 8080
  memoria serve admin --port 8080
`

// commandContext is the context for one-shot commands.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
