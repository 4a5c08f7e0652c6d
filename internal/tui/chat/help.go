package chat

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/courier-chat/courier/internal/tui"
)

type helpModel struct {
	visible bool
}

func newHelp() helpModel {
	return helpModel{}
}

func (h *helpModel) toggle() {
	h.visible = !h.visible
}

func (h helpModel) bar() string {
	return tui.Help.Render("  Tab switch  j/k navigate  Enter open chat  r refresh  q quit  ? help")
}

func (h helpModel) View() string {
	title := tui.Title.Render("Keyboard Shortcuts") + "\n\n"

	binds := []struct {
		key  string
		desc string
	}{
		{"Tab", "Switch between contacts and message input"},
		{"j / Down", "Next contact"},
		{"k / Up", "Previous contact"},
		{"Enter", "Open chat with selected contact / send message"},
		{"PgUp / PgDn", "Scroll conversation history"},
		{"r", "Refresh contacts and unread counts"},
		{"q / Ctrl+C", "Quit"},
		{"?", "Toggle this help"},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(tui.ColorAccent).
		Bold(true).
		Width(14)

	descStyle := lipgloss.NewStyle().
		Foreground(tui.ColorText)

	s := title
	for _, b := range binds {
		s += "  " + keyStyle.Render(b.key) + descStyle.Render(b.desc) + "\n"
	}
	s += "\n" + tui.Help.Render("  Press ? to close")

	return lipgloss.NewStyle().Padding(1, 2).Render(s)
}
