package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
	Long: `Open the chat window: online users on the left, the selected
conversation on the right.

Keys:
  tab        cycle focus: users, messages, composer
  ↑/↓        move in the focused list
  enter      open conversation / commit reply / send
  ←/→        drag the highlighted message to reply to it
  esc        cancel drag or dismiss the pending reply
  ctrl+c     quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat needs an interactive terminal; use 'who', 'send' or 'history' instead")
	}

	p, err := loadProfile()
	if err != nil {
		return err
	}

	s := newSession(p)
	defer s.Close()
	s.Start(cmd.Context())

	return RunChat(s)
}
