package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/gopherd/internal/logger"
	"github.com/marmos91/gopherd/pkg/config"
	"github.com/marmos91/gopherd/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gopher server",
	Long: `Start the Gopher server.

Settings come from the config file, GOPHERD_* environment variables and
the flags below, in increasing order of precedence.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("root", "", "directory to serve")
	flags.String("host", "", "hostname advertised in menus")
	flags.String("listen", "", "address to bind (default all interfaces)")
	flags.Int("port", 0, "TCP port to listen on (default 70)")
	flags.String("map-filename", "", "per-directory menu override file (default gophermap)")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFlags(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, metricsResult.GopherMetrics)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	metricsDone := make(chan struct{})
	if metricsResult.Server != nil {
		go func() {
			defer close(metricsDone)
			// A metrics failure is logged but does not stop the Gopher server.
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	logger.Info("gopherd %s serving %s as %s:%d", version, cfg.Gopher.Root, cfg.Gopher.Hostname, cfg.Gopher.Port)

	serveErr := srv.Serve(ctx)

	// Serve may have returned on an adapter failure with ctx still live
	stop()
	<-metricsDone

	if serveErr != nil {
		logger.Error("Server error: %v", serveErr)
		return serveErr
	}

	logger.Info("Server stopped gracefully")
	return nil
}
