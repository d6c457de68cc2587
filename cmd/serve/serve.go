package serve

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/automarker/internal/api"
	"github.com/tphakala/automarker/internal/appwatch"
	"github.com/tphakala/automarker/internal/buildinfo"
	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/engine"
	"github.com/tphakala/automarker/internal/logger"
	"github.com/tphakala/automarker/internal/observability"
)

// Command creates a new command that runs the engine behind the control API.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the HTTP control API",
		Long:  "Start the audio engine, watch for a connected editing application and serve the control API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var lc net.ListenConfig
			l, err := lc.Listen(ctx, "tcp", settings.Server.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", settings.Server.Listen, err)
			}
			return Run(ctx, settings, info, l)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Listen, "listen", settings.Server.Listen, "Listen address and port of the control API")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", settings.Metrics.Enabled, "Expose Prometheus metrics")
	cmd.Flags().BoolVar(&settings.AppWatch.Enabled, "appwatch", settings.AppWatch.Enabled, "Watch for a running editing application")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

// Run serves the control API on l until ctx is done. The engine, the
// application watcher and the server share one lifetime.
func Run(ctx context.Context, settings *conf.Settings, info *buildinfo.Context, l net.Listener) error {
	log := logger.Global().Module("serve")
	log.Info("starting automarker",
		logger.String("version", info.Version()),
		logger.String("build_date", info.BuildDate()),
		logger.String("settings", settings.Describe()))

	m, err := observability.NewMetrics()
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	eng := engine.New(append(engine.SettingsOptions(settings), engine.WithMetrics(m.Engine))...)
	defer eng.Destroy()

	serverOpts := []api.ServerOption{api.WithMetrics(m)}

	g, ctx := errgroup.WithContext(ctx)

	if settings.AppWatch.Enabled {
		watcher := appwatch.New(
			appwatch.WithInterval(settings.AppWatch.Interval),
			appwatch.OnChange(func(prev, next appwatch.App) {
				m.Engine.SetConnectedApp(next.String())
				log.Info("connected application changed",
					logger.String("from", prev.DisplayName()),
					logger.String("to", next.DisplayName()))
			}),
		)
		watcher.Start(ctx)
		defer watcher.Stop()
		serverOpts = append(serverOpts, api.WithAppSource(watcher))
	}

	server, err := api.New(api.ConfigFromSettings(settings), eng, serverOpts...)
	if err != nil {
		_ = l.Close()
		return err
	}

	g.Go(func() error {
		return server.Serve(ctx, l)
	})
	g.Go(func() error {
		<-ctx.Done()
		eng.RequestStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("automarker stopped")
	return nil
}
