package cli

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/budgetchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	profileUsername string
	profileUserID   string
	profileEmail    string
	profileToken    string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update the signed-in identity",
	Long: `The profile holds the username, user id and bearer token every other
command uses. It lives at $BUDGETCHAT_PROFILE.

Subcommands:
  show  Print the profile (token masked)
  set   Update profile fields

Examples:
  budgetchat profile show
  budgetchat profile set --username alice --user-id 6650e9 --token "$TOKEN"`,
	RunE: runProfileShow,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileShow,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields",
	Args:  cobra.NoArgs,
	RunE:  runProfileSet,
}

func init() {
	profileSetCmd.Flags().StringVar(&profileUsername, "username", "", "display name")
	profileSetCmd.Flags().StringVar(&profileUserID, "user-id", "", "user id")
	profileSetCmd.Flags().StringVar(&profileEmail, "email", "", "email address")
	profileSetCmd.Flags().StringVar(&profileToken, "token", "", "bearer token")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	p, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile:  %s\n", cfg.ProfilePath)
	fmt.Fprintf(out, "Username: %s\n", p.Username)
	fmt.Fprintf(out, "User ID:  %s\n", p.UserID)
	if p.Email != "" {
		fmt.Fprintf(out, "Email:    %s\n", p.Email)
	}
	fmt.Fprintf(out, "Token:    %s\n", maskToken(p.Token))
	return nil
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	p, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil && !errors.Is(err, config.ErrNoProfile) {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("username") {
		p.Username = profileUsername
	}
	if flags.Changed("user-id") {
		p.UserID = profileUserID
	}
	if flags.Changed("email") {
		p.Email = profileEmail
	}
	if flags.Changed("token") {
		p.Token = profileToken
	}

	if err := p.Validate(); err != nil {
		return err
	}
	if err := config.SaveProfile(cfg.ProfilePath, p); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved profile for %s to %s\n", p.Username, cfg.ProfilePath)
	return nil
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return "********"
	default:
		return token[:4] + "…" + token[len(token)-4:]
	}
}
