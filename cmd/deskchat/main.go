// DeskChat - customer support chat client
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deskhaus/deskchat/internal/client"
	"github.com/deskhaus/deskchat/internal/config"
	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/history"
	"github.com/deskhaus/deskchat/internal/stub"
	"github.com/deskhaus/deskchat/internal/transport"
	"github.com/deskhaus/deskchat/internal/tui"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "deskchat",
	Short:         "Customer support chat client",
	Long:          "DeskChat connects to the support backend over a persistent channel when it can, and falls back to discrete calls when it cannot.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Logs go to stderr so the chat view owns stdout.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))
		slog.SetDefault(logger)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive support chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				logger.Error("Failed to close client", "error", closeErr)
			}
		}()

		c.Start(cmd.Context())
		return tui.Run(c)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [query...]",
	Short: "Send one query and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				logger.Error("Failed to close client", "error", closeErr)
			}
		}()

		ctx := cmd.Context()
		c.Start(ctx)
		if err := c.Send(ctx, strings.Join(args, " ")); err != nil {
			return err
		}

		deadline := time.After(cfg.ReplyTimeout + cfg.RequestTimeout)
		for {
			select {
			case ev, ok := <-c.Events():
				if !ok {
					return errors.New("conversation ended before a reply arrived")
				}
				appended, isTurn := ev.(transport.TurnAppended)
				if !isTurn {
					continue
				}
				switch turn := appended.Turn.(type) {
				case domain.AgentTurn:
					fmt.Println(turn.Content)
					return nil
				case domain.SystemTurn:
					if turn.Failure {
						return errors.New(turn.Content)
					}
				}
			case <-deadline:
				return errors.New("timed out waiting for a reply")
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print the backend's current analytics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := transport.NewBackend(cfg.BackendURL, cfg.RequestTimeout, logger)
		snap, err := backend.Analytics(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Total queries:     %d\n", snap.TotalQueries)
		fmt.Printf("Avg response time: %.2fs\n", snap.AvgResponseTimeSeconds)
		fmt.Printf("Satisfaction:      %.1f\n", snap.SatisfactionScore)
		if len(snap.AgentDistribution) > 0 {
			fmt.Println("Agent distribution:")
			agents := make([]string, 0, len(snap.AgentDistribution))
			for agent := range snap.AgentDistribution {
				agents = append(agents, agent)
			}
			sort.Strings(agents)
			for _, agent := range agents {
				fmt.Printf("  %-12s %d\n", agent, snap.AgentDistribution[agent])
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List recorded conversations, or print one transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.History.Enabled {
			return errors.New("history is disabled (HISTORY_DISABLED=true)")
		}
		store, err := history.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("Failed to close history store", "error", closeErr)
			}
		}()

		ctx := cmd.Context()
		if len(args) == 1 {
			return printTranscript(ctx, store, args[0])
		}

		sessions, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No recorded conversations.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %d turns  last active %s\n",
				s.SessionID, s.CustomerID, s.TurnCount,
				s.LastActivity.Format(time.RFC3339))
		}
		return nil
	},
}

func printTranscript(ctx context.Context, store history.Repository, sessionID string) error {
	turns, err := store.Turns(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("no turns recorded for session %s", sessionID)
	}
	for _, turn := range turns {
		label := "support"
		if turn.Kind() == domain.TurnUser {
			label = "you"
		}
		fmt.Printf("[%s] %-7s %s\n", turn.At().Format("15:04:05"), label, turn.Text())
	}
	return nil
}

var stubAddr string

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stub support backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := &http.Server{
			Addr:        stubAddr,
			Handler:     stub.NewServer(logger).Routes(),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Stub backend listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("Shutting down stub backend...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	stubCmd.Flags().StringVar(&stubAddr, "addr", ":8000", "listen address for the stub backend")
	rootCmd.AddCommand(chatCmd, askCmd, analyticsCmd, historyCmd, stubCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
