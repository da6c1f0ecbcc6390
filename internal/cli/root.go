// Package cli provides the command-line interface for budgetchat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/raphaelgruber/budgetchat/internal/config"
	"github.com/raphaelgruber/budgetchat/internal/metrics"
	"github.com/raphaelgruber/budgetchat/internal/models"
	"github.com/raphaelgruber/budgetchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	timeout time.Duration

	// Global config and logger
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "budgetchat",
	Short: "Private messaging for budget app users",
	Long: `budgetchat is a terminal client for one-to-one chat between users of the
budget app. It shows who is online, loads conversation history, merges live
messages in, and supports threaded replies and typing indicators.

Identity and bearer token come from the profile file; create it with
'budgetchat profile set'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		// The chat widget owns the terminal, so it only logs to the file.
		var console io.Writer
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
			if cmd.Name() != "chat" {
				console = os.Stderr
			}
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level, console)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "how long one-shot commands wait for the server")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(whoCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "budgetchat", Version)
	},
}

// loadProfile reads and validates the signed-in identity.
func loadProfile() (config.Profile, error) {
	p, err := config.LoadProfile(cfg.ProfilePath)
	if errors.Is(err, config.ErrNoProfile) {
		return p, fmt.Errorf("%w (run 'budgetchat profile set' first)", err)
	}
	if err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// newSession wires a chat session for the profile from the global config.
func newSession(p config.Profile) *service.Session {
	dialer := client.NewDialer(cfg.SocketURL, cfg.HandshakeTimeout)
	api := client.New(cfg.APIURL, cfg.HistoryTimeout)

	return service.NewSession(service.SessionConfig{
		Username: p.Username,
		Token:    p.Token,
		Connection: service.ConnectionOptions{
			MaxAttempts: cfg.ConnectAttempts,
			RetryDelay:  cfg.RetryDelay,
		},
		HistoryPageSize: cfg.HistoryPageSize,
		HistoryTimeout:  cfg.HistoryTimeout,
		TypingInterval:  cfg.TypingInterval,
	}, service.SocketDialer(dialer), api, logger, metrics.NewCollector())
}

// startJoined starts a session and waits until the local user is in the
// roster or the connection gives up.
func startJoined(ctx context.Context, s *service.Session) (service.View, error) {
	s.Start(ctx)

	v, err := s.WaitUntil(ctx, func(v service.View) bool {
		return v.Joined || v.State == models.StateFailed
	})
	if err != nil {
		return v, fmt.Errorf("wait for roster: %w", err)
	}
	if v.State == models.StateFailed {
		return v, fmt.Errorf("could not connect to %s", cfg.SocketURL)
	}
	return v, nil
}
