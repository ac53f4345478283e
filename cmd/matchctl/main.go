package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/internal/database"
	"github.com/mroshb/campus_match/internal/notify"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/internal/security"
	"github.com/mroshb/campus_match/internal/services"
	"github.com/mroshb/campus_match/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operator tools for the campus match engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			logger.Init()
		},
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSweepCommand())
	cmd.AddCommand(newQueueCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openStore() (*config.Config, *repositories.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repositories.NewStore(db), nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(store.DB()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue sessions, pair waiting users and time out stale queue entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, store, err := openStore()
			if err != nil {
				return err
			}

			broker, err := realtime.FromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer broker.Close()

			notifier, stop, err := notify.FromConfig(cfg, store.Users)
			if err != nil {
				return err
			}
			defer stop()

			settings := services.SettingsFromConfig(cfg)
			emitter := services.NewEmitter(broker, notifier)
			sessions := services.NewSessionService(store, emitter, services.SystemClock)
			pairing := services.NewPairingService(store, store.Users, sessions, emitter, settings, services.SystemClock)

			expired, timedOut := services.NewSweeper(sessions, pairing, cfg.GetSweepInterval(), settings.SweepBatchSize).SweepOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions, timed out %d queue entries\n", expired, timedOut)
			return nil
		},
	}
}

func newQueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show how many users wait for a blind date per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore()
			if err != nil {
				return err
			}

			sessions := services.NewSessionService(store, nil, services.SystemClock)
			pairing := services.NewPairingService(store, store.Users, sessions, nil, services.SettingsFromConfig(cfg), services.SystemClock)
			depth, err := pairing.QueueDepth(commandContext(cmd))
			if err != nil {
				return err
			}
			for category, n := range depth {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", category, n)
			}
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var (
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write recent matches and sessions to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			_, store, err := openStore()
			if err != nil {
				return err
			}

			matches, err := store.Matches.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			sessions, err := store.Sessions.ListRecent(ctx, limit)
			if err != nil {
				return err
			}

			f, err := buildReport(matches, sessions)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := f.SaveAs(output); err != nil {
				return fmt.Errorf("failed to save workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d matches and %d sessions to %s\n", len(matches), len(sessions), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "campus_report.xlsx", "Destination workbook")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Maximum rows per sheet")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		userID     uint
		telegramID int64
		ttl        time.Duration
		secret     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.LoadConfig()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			tok, err := security.GenerateJWT(userID, telegramID, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "User ID the token is issued for")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram ID carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", security.DefaultTokenTTL, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to JWT_SECRET_KEY)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
