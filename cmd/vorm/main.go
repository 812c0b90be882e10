// Command vorm is the admin CLI: it applies declared collection schemas to a
// Qdrant instance and serves engine metrics. Schema diffing and versioned
// migrations are left to external tooling; this command only performs the
// DDL verbs the store boundary exposes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vormlabs/vorm/pkg/metrics"
	"github.com/vormlabs/vorm/store/qdrant"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath string
		addr       string
	)

	root := &cobra.Command{
		Use:           "vorm",
		Short:         "Manage vorm collections in Qdrant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "vorm.yaml", "collection schema file")
	root.PersistentFlags().StringVar(&addr, "qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")

	root.AddCommand(
		newEnsureCmd(&configPath, &addr, logger),
		newStatusCmd(&configPath, &addr),
		newDropCmd(&addr, logger),
		newMetricsCmd(logger),
	)
	return root
}

func withDriver(addr string, f func(ctx context.Context, d *qdrant.Driver) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := qdrant.New(addr)
	if err != nil {
		return err
	}
	defer d.Close()
	return f(ctx, d)
}

func newEnsureCmd(configPath, addr *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create every declared collection that does not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return withDriver(*addr, func(ctx context.Context, d *qdrant.Driver) error {
				for _, schema := range cfg.Schemas {
					if err := d.CreateCollection(ctx, schema); err != nil {
						return fmt.Errorf("ensure %s: %w", schema.Collection, err)
					}
					logger.Info("collection ensured", "collection", schema.Collection)
				}
				return nil
			})
		},
	}
}

func newStatusCmd(configPath, addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which declared collections exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return withDriver(*addr, func(ctx context.Context, d *qdrant.Driver) error {
				for _, schema := range cfg.Schemas {
					ok, err := d.HasCollection(ctx, schema.Collection)
					if err != nil {
						return err
					}
					state := "missing"
					if ok {
						state = "present"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", schema.Collection, state)
				}
				return nil
			})
		},
	}
}

func newDropCmd(addr *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <collection>...",
		Short: "Drop the named collections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDriver(*addr, func(ctx context.Context, d *qdrant.Driver) error {
				for _, name := range args {
					if err := d.DropCollection(ctx, name); err != nil {
						return fmt.Errorf("drop %s: %w", name, err)
					}
					logger.Info("collection dropped", "collection", name)
				}
				return nil
			})
		},
	}
}

func newMetricsCmd(logger *slog.Logger) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve the process metrics registry on /metrics",
		RunE: func(*cobra.Command, []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("GET /metrics", metrics.Default.Handler())

			srv := &http.Server{
				Addr:         listen,
				Handler:      otelhttp.NewHandler(mux, "metrics"),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("serving metrics", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9100", "listen address")
	return cmd
}
