package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kittclouds/kittpages/internal/cache"
	"github.com/kittclouds/kittpages/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and published pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Remote != "" {
				return errors.New("serve needs a local database; unset --remote")
			}
			db, err := a.openSQL()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := []server.Option{server.WithLogger(a.log)}
			if db.VectorsEnabled() {
				opts = append(opts, server.WithVectorIndex(db))
			} else {
				a.log.Info().Str("driver", db.Driver()).Msg("vector index unavailable, related pages disabled")
			}
			if url := a.cfg.Redis.URL; url != "" {
				client, err := cache.Connect(url)
				if err != nil {
					return fmt.Errorf("failed to connect to redis: %w", err)
				}
				defer client.Close()
				opts = append(opts, server.WithPreviewCache(cache.New(client, a.cfg.Redis.TTL())))
			}

			srv := server.New(db, opts...)
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}
