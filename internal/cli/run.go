package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bingx-trading-bot/internal/api"
	"bingx-trading-bot/internal/engine"
	"bingx-trading-bot/pkg/config"
	"bingx-trading-bot/pkg/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading bot and its control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		log := logging.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := engine.Build(ctx, cfg, log, Version)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := eng.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("shutdown")
			}
		}()

		if cfg.JWTSecret == "" {
			log.Warn().Msg("JWT_SECRET not set; operator endpoints are disabled")
		}
		srv := api.NewServer(eng.Service, eng.Bus, eng.Metrics.Handler(), cfg.JWTSecret, log)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		apiErr := make(chan error, 1)
		go func() {
			apiErr <- srv.Start(ctx, ":"+cfg.Port)
		}()

		runErr := eng.Run(ctx)
		cancel()
		if err := <-apiErr; err != nil {
			log.Error().Err(err).Msg("api server")
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error().Err(runErr).Msg("engine stopped")
			return runErr
		}
		log.Info().Msg("bot stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
