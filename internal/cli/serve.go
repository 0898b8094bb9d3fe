package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/wayfarer/internal/gateway"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/plugin"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway: WebSocket RPC and HTTP event streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			srvLog, closer, err := logging.NewWithOptions(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, srvLog)
			if err != nil {
				return err
			}
			// Plugins close after the runtime so late itinerary events still count.
			plugins := plugin.NewRegistry(rt.hooks, srvLog)
			defer plugins.CloseAll()
			defer rt.Close()

			stats := plugin.NewStats()
			if err := plugins.Register(stats); err != nil {
				return err
			}
			if err := plugins.InitAll(ctx); err != nil {
				return err
			}

			rt.hooks.On(hooks.EventItineraryUpdated, "log", func(ctx context.Context, p hooks.Payload) error {
				srvLog.Debug().Interface("data", p.Data).Msg("itinerary updated")
				return nil
			})

			srv := gateway.New(cfg, srvLog,
				gateway.WithChat(rt.turns),
				gateway.WithSessions(rt.sessions),
				gateway.WithHooks(rt.hooks),
				gateway.WithStats(stats),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
