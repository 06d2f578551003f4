package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/strangerchat-server/internal/app"
	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/config"
	"github.com/vovakirdan/strangerchat-server/internal/core"
	applog "github.com/vovakirdan/strangerchat-server/internal/log"
)

type rootFlags struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "strangerchat-server",
		Short:        "Anonymous one-to-one chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting strangerchat server")
			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address")

	root.AddCommand(newTokenCmd(flags), newHashPasswordCmd(), newReapCmd(flags))
	return root
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		username string
		staff    bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an identity token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			token, err := app.NewAuthService(&cfg).IssueToken(username, staff)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "token subject")
	cmd.Flags().BoolVar(&staff, "staff", false, "grant staff access")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for an operator entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newReapCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Close abandoned waiting rooms once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := app.OpenStore(ctx, &cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			bus, err := app.OpenBus(ctx, &cfg, logger)
			if err != nil {
				return err
			}
			defer bus.Close()

			registry, err := core.NewRegistry(ctx, bus, logger, nil)
			if err != nil {
				return err
			}
			n, err := core.NewReaper(st, registry, cfg.WaitingTTL, logger, nil).Sweep(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("reaped", n).Msg("sweep finished")
			return nil
		},
	}
}

// loadConfig resolves configuration and builds the logger it asks for.
func loadConfig(flags *rootFlags) (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")

	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	cfg.UpdateFrom(config.Config{Addr: flags.addr, LogLevel: flags.logLevel})

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}
