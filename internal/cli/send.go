package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/budgetchat/internal/service"
	"github.com/spf13/cobra"
)

var sendReply string

var sendCmd = &cobra.Command{
	Use:   "send <name> <text...>",
	Short: "Send one private message",
	Long: `Connect, send a private message to an online user and wait for the
server to deliver it.

Examples:
  budgetchat send bob "lunch at noon?"
  budgetchat send bob sounds good --reply 6650f1c2a9`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendReply, "reply", "", "id of a recent message to reply to")
}

func runSend(cmd *cobra.Command, args []string) error {
	name, text := args[0], strings.Join(args[1:], " ")

	p, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s := newSession(p)
	defer s.Close()

	if _, err := startJoined(ctx, s); err != nil {
		return err
	}

	if err := s.SelectByName(name); err != nil {
		return fmt.Errorf("%s is not online", name)
	}
	v, err := s.WaitUntil(ctx, func(v service.View) bool { return !v.Loading })
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	if sendReply != "" {
		s.Drag(sendReply, s.DragThreshold())
		if _, ok := s.Release(); !ok {
			return fmt.Errorf("message %s is not in the recent conversation", sendReply)
		}
	}

	before := len(v.Messages)
	s.SetDraft(text)
	if err := s.Send(); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	v, err = s.WaitUntil(ctx, func(v service.View) bool { return len(v.Messages) > before })
	if err != nil {
		return fmt.Errorf("wait for delivery: %w", err)
	}

	sent := v.Messages[len(v.Messages)-1]
	fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s (id %s)\n", name, sent.ID)
	return nil
}
