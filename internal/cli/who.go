package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var whoCmd = &cobra.Command{
	Use:   "who",
	Short: "List users who are online",
	Long: `Connect, print one roster snapshot and disconnect.

Examples:
  budgetchat who
  budgetchat who --timeout 3s`,
	Args: cobra.NoArgs,
	RunE: runWho,
}

func runWho(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s := newSession(p)
	defer s.Close()

	v, err := startJoined(ctx, s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(v.Roster) == 0 {
		fmt.Fprintln(out, "Nobody else is online.")
		return nil
	}

	fmt.Fprintf(out, "Online (%d):\n", len(v.Roster))
	for _, u := range v.Roster {
		fmt.Fprintf(out, "  %-20s %s\n", u.Name, u.ID)
	}
	return nil
}
