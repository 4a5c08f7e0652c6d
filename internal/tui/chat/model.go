// Package chat implements the interactive chat TUI.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/courier-chat/courier/internal/client"
	"github.com/courier-chat/courier/internal/store"
	"github.com/courier-chat/courier/internal/tui"
	"github.com/courier-chat/courier/pkg/protocol"
)

// Panel identifies which chat panel is focused.
type Panel int

const (
	PanelPeers Panel = iota
	PanelInput
)

const conversationLimit = 200

// Model is the root chat TUI model.
type Model struct {
	api *client.API
	ws  *client.WS

	meID       string
	meUsername string

	peers peersModel
	conv  conversationModel
	input textinput.Model
	help  helpModel

	activePanel    Panel
	width          int
	height         int
	wsConnected    bool
	wsReconnecting bool
	typingSent     bool
	status         string
	quitting       bool
}

// NewModel creates the chat model for the authenticated user.
func NewModel(api *client.API, ws *client.WS, meID, meUsername string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 1000
	input.Prompt = "> "

	return Model{
		api:        api,
		ws:         ws,
		meID:       meID,
		meUsername: meUsername,
		peers:      newPeers(),
		conv:       newConversation(meID),
		input:      input,
		help:       newHelp(),
	}
}

// FrameMsg wraps a raw frame received over the WebSocket.
type FrameMsg struct {
	Head protocol.FrameHead
	Data []byte
}

// UsersMsg carries a fresh user directory.
type UsersMsg struct {
	Users []client.User
}

// UnreadMsg carries fresh unread counts.
type UnreadMsg struct {
	Counts []store.UnreadCount
}

// ConversationMsg carries loaded message history for a peer.
type ConversationMsg struct {
	PeerID   string
	Messages []store.Message
}

// ConnStatusMsg carries the WebSocket connection state.
type ConnStatusMsg struct {
	Connected    bool
	Reconnecting bool
}

type typingExpiredMsg struct {
	peerID string
}

type errMsg struct {
	err error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(loadUsers(m.api), loadUnread(m.api))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.conv.setSize(m.convWidth(), m.convHeight())
		m.input.Width = m.convWidth() - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case FrameMsg:
		return m.handleFrame(msg)

	case UsersMsg:
		m.peers.setUsers(msg.Users, m.meID)
		return m, nil

	case UnreadMsg:
		m.peers.setUnread(msg.Counts)
		return m, nil

	case ConversationMsg:
		if p := m.peers.selected(); p != nil && p.ID == msg.PeerID {
			m.conv.setMessages(msg.Messages, p.Username)
		}
		return m, nil

	case ConnStatusMsg:
		m.wsConnected = msg.Connected
		m.wsReconnecting = msg.Reconnecting
		return m, nil

	case typingExpiredMsg:
		m.peers.clearTyping(msg.peerID)
		return m, nil

	case errMsg:
		m.status = msg.err.Error()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global bindings.
	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
		if m.activePanel == PanelPeers {
			m.activePanel = PanelInput
			m.input.Focus()
		} else {
			m.activePanel = PanelPeers
			m.input.Blur()
		}
		return m, nil
	case key.Matches(msg, key.NewBinding(key.WithKeys("pgup", "pgdown"))):
		var cmd tea.Cmd
		m.conv, cmd = m.conv.Update(msg)
		return m, cmd
	}

	if m.activePanel == PanelPeers {
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "?":
			m.help.toggle()
			return m, nil
		case "j", "down":
			m.peers.moveCursor(1)
			return m, nil
		case "k", "up":
			m.peers.moveCursor(-1)
			return m, nil
		case "r":
			return m, tea.Batch(loadUsers(m.api), loadUnread(m.api))
		case "enter":
			return m.openSelectedPeer()
		}
		return m, nil
	}

	// Input panel.
	if msg.String() == "enter" {
		return m.sendCurrentInput()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	// Signal typing on the first keystroke of a message.
	if !m.typingSent && m.input.Value() != "" {
		if p := m.peers.selected(); p != nil {
			_ = m.ws.SendTyping(p.ID, true)
			m.typingSent = true
		}
	}
	return m, tea.Batch(cmds...)
}

// openSelectedPeer loads the conversation with the highlighted peer and marks
// their messages read.
func (m Model) openSelectedPeer() (tea.Model, tea.Cmd) {
	p := m.peers.selected()
	if p == nil {
		return m, nil
	}

	m.peers.clearUnread(p.ID)
	m.conv.setMessages(nil, p.Username)
	m.activePanel = PanelInput
	m.input.Focus()

	_ = m.ws.SendRead(p.ID)
	return m, loadConversation(m.api, p.ID)
}

func (m Model) sendCurrentInput() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	p := m.peers.selected()
	if content == "" || p == nil {
		return m, nil
	}

	if err := m.ws.SendMessage(p.ID, content); err != nil {
		m.status = "send failed: " + err.Error()
		return m, nil
	}

	m.input.Reset()
	if m.typingSent {
		_ = m.ws.SendTyping(p.ID, false)
		m.typingSent = false
	}
	m.status = ""
	return m, nil
}

func (m Model) handleFrame(msg FrameMsg) (tea.Model, tea.Cmd) {
	switch msg.Head.Type {
	case protocol.TypeNewMessage:
		var frame protocol.NewMessage
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return m, nil
		}
		return m.handleNewMessage(frame.Message)

	case protocol.TypeMessagesRead:
		var frame protocol.MessagesRead
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return m, nil
		}
		// The reader is the peer; when the open conversation is with them,
		// flip our outgoing messages to read.
		if p := m.peers.selected(); p != nil && frame.ReceiverID == p.ID && frame.SenderID == m.meID {
			m.conv.markOutgoingRead()
		}
		return m, nil

	case protocol.TypeUserTyping:
		var frame protocol.UserTyping
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return m, nil
		}
		if !frame.IsTyping {
			m.peers.clearTyping(frame.SenderID)
			return m, nil
		}
		m.peers.setTyping(frame.SenderID)
		peerID := frame.SenderID
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return typingExpiredMsg{peerID: peerID}
		})

	case "":
		// Error frames carry no type field.
		var frame protocol.ErrorFrame
		if err := json.Unmarshal(msg.Data, &frame); err == nil && frame.Error != "" {
			m.status = frame.Error
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleNewMessage(wm protocol.WireMessage) (tea.Model, tea.Cmd) {
	peerID := wm.SenderID
	if wm.SenderID == m.meID {
		peerID = wm.ReceiverID
	}

	if p := m.peers.selected(); p != nil && p.ID == peerID {
		m.conv.append(wm)
		if wm.SenderID != m.meID {
			// Conversation is open, so the message is read immediately.
			_ = m.ws.SendRead(peerID)
		}
		return m, nil
	}

	if wm.SenderID != m.meID {
		m.peers.incrementUnread(wm.SenderID)
	}
	return m, nil
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	header := m.headerView()

	peersStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(peersWidth).
		Height(m.convHeight() + 3)

	convStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.convWidth())

	if m.activePanel == PanelPeers {
		peersStyle = peersStyle.BorderForeground(tui.ColorPrimary)
	} else {
		convStyle = convStyle.BorderForeground(tui.ColorPrimary)
	}

	peersView := peersStyle.Render(
		tui.Subtitle.Render(" Contacts") + "\n" + m.peers.View(),
	)

	convBody := m.conv.View() + "\n" + m.input.View()
	convView := convStyle.Render(
		tui.Subtitle.Render(" "+m.conv.title()) + "\n" + convBody,
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, peersView, convView)

	statusLine := ""
	if m.status != "" {
		statusLine = tui.ErrorStyle.Render("  " + m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		statusLine,
		m.help.bar(),
	)
}

func (m Model) headerView() string {
	left := tui.Title.Render("Courier")
	dot := tui.StatusDot(m.wsConnected, m.wsReconnecting)
	label := tui.StatusText(m.wsConnected, m.wsReconnecting)
	right := m.meUsername + "  " + dot + " " + label

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 6
	if gap < 1 {
		gap = 1
	}

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(m.width - 2).
		Padding(0, 1)

	return headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(gap).Render(""),
		right,
	))
}

const peersWidth = 28

func (m Model) convWidth() int {
	w := m.width - peersWidth - 6
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) convHeight() int {
	// Reserve space for header, input, help bar, borders.
	h := m.height - 10
	if h < 5 {
		h = 5
	}
	return h
}

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func loadUsers(api *client.API) tea.Cmd {
	return func() tea.Msg {
		users, err := api.ListUsers(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return UsersMsg{Users: users}
	}
}

func loadUnread(api *client.API) tea.Cmd {
	return func() tea.Msg {
		counts, err := api.UnreadCounts(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return UnreadMsg{Counts: counts}
	}
}

func loadConversation(api *client.API, peerID string) tea.Cmd {
	return func() tea.Msg {
		msgs, err := api.Conversation(context.Background(), peerID, conversationLimit)
		if err != nil {
			return errMsg{err}
		}
		return ConversationMsg{PeerID: peerID, Messages: msgs}
	}
}
