package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagAddr     string
	flagPluginID string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "supportd",
	Short: "In-memory development backend for the chatkit widget",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(flagLogLevel)
		if err != nil {
			return errors.Wrap(err, "parse log level")
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              flagAddr,
			Handler:           NewServer(flagPluginID).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			log.Info().Str("addr", flagAddr).Str("plugin_id", flagPluginID).Msg("supportd listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return eg.Wait()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8800", "HTTP listen address")
	rootCmd.Flags().StringVar(&flagPluginID, "plugin-id", "demo-plugin", "plugin id to serve")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "zerolog level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("supportd failed")
	}
}
