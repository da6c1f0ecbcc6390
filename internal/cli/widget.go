package cli

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/budgetchat/internal/models"
	"github.com/raphaelgruber/budgetchat/internal/service"
)

const (
	noticeTTL    = 4 * time.Second
	tickInterval = time.Second
	rosterWidth  = 24
	timeLayout   = "3:04 PM"
)

// Theme holds the color scheme for the chat window.
type Theme struct {
	Accent  lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Border  lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Accent:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Border:  lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) paneStyle(focused bool) lipgloss.Style {
	border := t.Border
	if focused {
		border = t.Accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

func (t Theme) noticeStyle(level models.NoticeLevel) lipgloss.Style {
	color := t.Accent
	switch level {
	case models.NoticeSuccess:
		color = t.Success
	case models.NoticeWarn:
		color = t.Warn
	case models.NoticeError:
		color = t.Error
	}
	return lipgloss.NewStyle().Foreground(color)
}

func (t Theme) stateStyle(state models.ConnectionState) lipgloss.Style {
	switch state {
	case models.StateConnected:
		return lipgloss.NewStyle().Foreground(t.Success)
	case models.StateFailed:
		return lipgloss.NewStyle().Foreground(t.Error)
	default:
		return lipgloss.NewStyle().Foreground(t.Warn)
	}
}

type focusArea int

const (
	focusRoster focusArea = iota
	focusMessages
	focusInput
)

// sessionUpdateMsg reports that the session state changed.
type sessionUpdateMsg struct{}

// tickMsg expires old notices.
type tickMsg time.Time

// chatModel is the bubbletea model of the chat window. All chat state lives
// in the session; the model only keeps cursor positions and the text input.
type chatModel struct {
	session   *service.Session
	view      service.View
	input     textinput.Model
	focus     focusArea
	rosterIdx int
	msgIdx    int
	dragX     int
	notices   []models.Notice
	width     int
	height    int
	theme     Theme
	now       func() time.Time
}

func newChatModel(s *service.Session) chatModel {
	input := textinput.New()
	input.Placeholder = "Select a user, then type a message"
	input.Prompt = "> "
	input.CharLimit = 2000

	return chatModel{
		session: s,
		view:    s.View(),
		input:   input,
		focus:   focusRoster,
		width:   80,
		height:  24,
		theme:   defaultTheme,
		now:     time.Now,
	}
}

// Init starts listening for session changes.
func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.session),
		tickCmd(),
	)
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(10, m.width-rosterWidth-10))
		return m, nil

	case sessionUpdateMsg:
		m.refresh()
		return m, waitForUpdate(m.session)

	case tickMsg:
		m.expireNotices()
		return m, tickCmd()

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}

	if m.focus == focusInput {
		return m.updateInput(msg)
	}
	return m, nil
}

func (m chatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		return m.cycleFocus(1)
	case "shift+tab":
		return m.cycleFocus(-1)
	}

	switch m.focus {
	case focusRoster:
		return m.handleRosterKey(msg)
	case focusMessages:
		return m.handleMessageKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m chatModel) cycleFocus(step int) (tea.Model, tea.Cmd) {
	if m.focus == focusInput {
		m.input.Blur()
		m.session.Blur()
	}
	if m.focus == focusMessages {
		m.cancelDrag()
	}

	m.focus = focusArea((int(m.focus) + step + 3) % 3)

	switch m.focus {
	case focusInput:
		return m, m.input.Focus()
	case focusMessages:
		m.msgIdx = max(0, len(m.view.Messages)-1)
	}
	return m, nil
}

func (m chatModel) handleRosterKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.rosterIdx = max(0, m.rosterIdx-1)
	case "down", "j":
		m.rosterIdx = min(len(m.view.Roster)-1, m.rosterIdx+1)
		m.rosterIdx = max(0, m.rosterIdx)
	case "enter":
		if m.rosterIdx < len(m.view.Roster) {
			m.session.Select(m.view.Roster[m.rosterIdx])
			m.view = m.session.View()
			m.focus = focusInput
			return m, m.input.Focus()
		}
	}
	return m, nil
}

func (m chatModel) handleMessageKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if len(m.view.Messages) == 0 {
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.cancelDrag()
		m.msgIdx = max(0, m.msgIdx-1)
	case "down", "j":
		m.cancelDrag()
		m.msgIdx = min(len(m.view.Messages)-1, m.msgIdx+1)
	case "left", "h":
		m.drag(-1)
	case "right", "l":
		m.drag(1)
	case "esc":
		m.cancelDrag()
	case "enter":
		m.dragX = 0
		if _, ok := m.session.Release(); ok {
			m.view = m.session.View()
			m.focus = focusInput
			return m, m.input.Focus()
		}
	}
	m.view = m.session.View()
	return m, nil
}

// drag moves the highlighted message one threshold step in dir.
func (m *chatModel) drag(dir int) {
	if m.msgIdx >= len(m.view.Messages) {
		return
	}
	m.dragX += dir * m.session.DragThreshold()
	m.session.Drag(m.view.Messages[m.msgIdx].ID, m.dragX)
}

func (m *chatModel) cancelDrag() {
	if m.dragX != 0 {
		m.dragX = 0
		m.session.CancelDrag()
	}
}

func (m chatModel) handleInputKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if err := m.session.Send(); err == nil {
			m.input.SetValue("")
		}
		m.refresh()
		return m, nil
	case "esc":
		m.session.DismissReply()
		m.refresh()
		return m, nil
	}
	return m.updateInput(msg)
}

func (m chatModel) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.session.SetDraft(value)
	}
	return m, cmd
}

// refresh pulls a new snapshot and queued notices from the session.
func (m *chatModel) refresh() {
	m.view = m.session.View()
	m.notices = append(m.notices, m.session.DrainNotices()...)

	m.rosterIdx = clamp(m.rosterIdx, len(m.view.Roster))
	m.msgIdx = clamp(m.msgIdx, len(m.view.Messages))
}

func (m *chatModel) expireNotices() {
	cutoff := m.now().Add(-noticeTTL)
	kept := m.notices[:0]
	for _, n := range m.notices {
		if n.At.After(cutoff) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

// View renders the chat window.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	bodyHeight := max(5, m.height-6)

	roster := m.theme.paneStyle(m.focus == focusRoster).
		Width(rosterWidth).
		Height(bodyHeight).
		Render(m.renderRoster())

	chatWidth := max(20, m.width-rosterWidth-6)
	chat := m.theme.paneStyle(m.focus != focusRoster).
		Width(chatWidth).
		Height(bodyHeight).
		Render(m.renderConversation(bodyHeight - 4))

	body := lipgloss.JoinHorizontal(lipgloss.Top, roster, chat)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderStatus(), body, m.renderNotices())
}

func (m chatModel) renderStatus() string {
	state := m.theme.stateStyle(m.view.State).Render("● " + m.view.State.String())
	who := m.theme.accentStyle().Render(m.view.Self)
	hint := m.theme.hintStyle().Render("tab focus · enter select/send · ←/→ reply · ctrl+c quit")
	return fmt.Sprintf("%s  %s  %s", who, state, hint)
}

func (m chatModel) renderRoster() string {
	var b strings.Builder
	b.WriteString(m.theme.accentStyle().Render("Online"))
	b.WriteString("\n")

	if len(m.view.Roster) == 0 {
		b.WriteString(m.theme.hintStyle().Render("nobody else yet"))
		return b.String()
	}

	for i, u := range m.view.Roster {
		marker := "  "
		if m.focus == focusRoster && i == m.rosterIdx {
			marker = "› "
		}
		line := marker + u.Name
		if m.view.Selected != nil && m.view.Selected.ID == u.ID {
			line = m.theme.accentStyle().Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m chatModel) renderConversation(lines int) string {
	if m.view.Selected == nil {
		return m.theme.hintStyle().Render("Select a user to start chatting")
	}

	var b strings.Builder
	b.WriteString(m.theme.accentStyle().Render(m.view.Selected.Name))
	b.WriteString("\n")

	switch {
	case m.view.Loading:
		b.WriteString(m.theme.hintStyle().Render("Loading conversation…") + "\n")
	case m.view.HistoryErr != nil:
		b.WriteString(m.theme.noticeStyle(models.NoticeError).Render("Could not load conversation") + "\n")
	case len(m.view.Messages) == 0:
		b.WriteString(m.theme.hintStyle().Render("No messages yet") + "\n")
	}

	msgs := m.view.Messages
	start := 0
	if len(msgs) > lines {
		start = len(msgs) - lines
		if m.focus == focusMessages && m.msgIdx < start {
			start = m.msgIdx
		}
	}
	for i := start; i < len(msgs) && i < start+lines; i++ {
		b.WriteString(m.renderMessage(i, msgs[i]))
		b.WriteString("\n")
	}

	if m.view.PeerTyping {
		b.WriteString(m.theme.hintStyle().Render(m.view.Selected.Name+" is typing…") + "\n")
	}
	if p := m.view.Pending; p != nil {
		quote := fmt.Sprintf("Replying to %s: %s", senderLabel(p.Name, m.view.Self), truncateText(p.Msg, 60))
		b.WriteString(m.theme.noticeStyle(models.NoticeInfo).Render(quote))
		b.WriteString(m.theme.hintStyle().Render("  (esc to cancel)") + "\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m chatModel) renderMessage(i int, msg models.Message) string {
	cursor := "  "
	if m.focus == focusMessages && i == m.msgIdx {
		cursor = "› "
		if msg.ID == m.view.DragID {
			switch m.view.DragPhase {
			case service.DragArmedLeft:
				cursor = "↩ "
			case service.DragArmedRight:
				cursor = "↪ "
			}
		}
	}

	name := senderLabel(msg.From.Name, m.view.Self)
	if msg.From.Name == m.view.Self {
		name = m.theme.accentStyle().Render(name)
	}
	line := fmt.Sprintf("%s%s %s: %s", cursor, m.theme.hintStyle().Render(formatTime(msg.CreatedAt)), name, msg.Message)
	if quote := quoteLine(msg, m.view.Self); quote != "" {
		line = cursor + m.theme.hintStyle().Render(quote) + "\n" + line
	}
	return line
}

func (m chatModel) renderNotices() string {
	var b strings.Builder
	for _, n := range m.notices {
		b.WriteString(m.theme.noticeStyle(n.Level).Render(n.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// senderLabel shows "You" for the local user.
func senderLabel(name, self string) string {
	if name == self {
		return "You"
	}
	return name
}

// quoteLine renders the quoted message of a reply, or "" when the reply does
// not belong to the message's conversation.
func quoteLine(msg models.Message, self string) string {
	if !msg.QuotesConversation() {
		return ""
	}
	who := msg.ReplyFrom
	if who == "" {
		who = "message"
	}
	return fmt.Sprintf("┌ %s: %s", senderLabel(who, self), truncateText(msg.ReplyMessage.Message, 60))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format(timeLayout)
}

func truncateText(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

func clamp(i, n int) int {
	if n == 0 {
		return 0
	}
	return max(0, min(i, n-1))
}

// waitForUpdate blocks on the session's change signal.
// Runs in a separate goroutine (command) to avoid blocking Update().
func waitForUpdate(s *service.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Updates()
		return sessionUpdateMsg{}
	}
}

// tickCmd returns a command that sends a tick after the tick interval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunChat runs the interactive chat window on s until the user quits.
func RunChat(s *service.Session) error {
	p := tea.NewProgram(newChatModel(s))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
