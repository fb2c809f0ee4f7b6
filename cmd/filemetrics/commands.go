package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/filemetrics"
	"github.com/loykin/filemetrics/internal/metrics"
)

var version = "dev"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "filemetrics",
		Short: "History service for file-processing size metrics",
		Long:  "filemetrics records the source and destination file sizes of processing tasks and serves the history panel.",
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to TOML config file")
	root.AddCommand(buildServeCmd(gf))
	root.AddCommand(buildVersionCmd())
	return root
}

func buildServeCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the history panel HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := filemetrics.LoadConfig(gf.ConfigPath)
			if err != nil {
				return err
			}

			svc, err := filemetrics.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if cfg.Server.Metrics {
				if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
					return fmt.Errorf("register metrics: %w", err)
				}
			}

			srv := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()
			svc.Logger().Info("serving history panel", "listen", cfg.Server.Listen, "store", cfg.Store.Type)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				svc.Logger().Info("shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
