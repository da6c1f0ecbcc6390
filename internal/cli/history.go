package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/budgetchat/internal/client"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyBefore string
)

var historyCmd = &cobra.Command{
	Use:   "history <counterpartId>",
	Short: "Print a conversation",
	Long: `Fetch the persisted conversation with another user by id, oldest first.
Works while the other user is offline.

Examples:
  budgetchat history 6650e9
  budgetchat history 6650e9 --limit 20
  budgetchat history 6650e9 --before 6650f1c2a9`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "max messages (server default when 0)")
	historyCmd.Flags().StringVar(&historyBefore, "before", "", "only messages older than this message id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("profile: userId is empty")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	api := client.New(cfg.APIURL, cfg.HistoryTimeout)
	page, err := api.GetConversation(ctx, p.Token, p.UserID, args[0], client.PageOptions{
		Limit:  historyLimit,
		Before: historyBefore,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(page.Data) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}

	for _, msg := range page.Data {
		fmt.Fprintf(out, "%s  %s  %s: %s\n", msg.ID, formatTime(msg.CreatedAt), senderLabel(msg.From.Name, p.Username), msg.Message)
		if quote := quoteLine(msg, p.Username); quote != "" {
			fmt.Fprintf(out, "    %s\n", quote)
		}
	}
	if page.HasMore {
		fmt.Fprintf(out, "(older messages available: --before %s)\n", page.Data[0].ID)
	}
	return nil
}
