package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/courier-chat/courier/internal/store"
	"github.com/courier-chat/courier/internal/tui"
	"github.com/courier-chat/courier/pkg/protocol"
)

type conversationModel struct {
	viewport viewport.Model
	msgs     []store.Message
	meID     string
	peerName string
}

func newConversation(meID string) conversationModel {
	vp := viewport.New(60, 15)
	return conversationModel{
		viewport: vp,
		meID:     meID,
	}
}

func (c *conversationModel) setSize(width, height int) {
	c.viewport.Width = width
	c.viewport.Height = height
	c.refresh()
}

func (c *conversationModel) setMessages(msgs []store.Message, peerName string) {
	c.msgs = msgs
	c.peerName = peerName
	c.refresh()
	c.viewport.GotoBottom()
}

func (c *conversationModel) append(wm protocol.WireMessage) {
	c.msgs = append(c.msgs, store.Message{
		ID:             wm.ID,
		SenderID:       wm.SenderID,
		SenderUsername: wm.SenderUsername,
		ReceiverID:     wm.ReceiverID,
		Content:        wm.Content,
		IsRead:         wm.IsRead,
		CreatedAt:      wm.CreatedAt,
	})
	c.refresh()
	c.viewport.GotoBottom()
}

// markOutgoingRead flips every outgoing message to read after the peer
// acknowledges the conversation.
func (c *conversationModel) markOutgoingRead() {
	for i := range c.msgs {
		if c.msgs[i].SenderID == c.meID {
			c.msgs[i].IsRead = true
		}
	}
	c.refresh()
}

func (c *conversationModel) refresh() {
	c.viewport.SetContent(c.render())
}

func (c conversationModel) render() string {
	if c.peerName == "" {
		return tui.Dimmed.Render("  Select a contact and press Enter to start chatting")
	}
	if len(c.msgs) == 0 {
		return tui.Dimmed.Render("  No messages yet")
	}

	var sb strings.Builder
	for _, msg := range c.msgs {
		ts := msg.CreatedAt.Local().Format("15:04")
		name := msg.SenderUsername
		mine := msg.SenderID == c.meID
		if mine {
			name = "you"
		}
		if name == "" {
			name = c.peerName
		}

		nameStyle := tui.Subtitle
		if mine {
			nameStyle = tui.Selected
		}

		line := fmt.Sprintf("  %s %s  %s",
			tui.Dimmed.Render(ts),
			nameStyle.Render(name+":"),
			msg.Content,
		)
		if mine && msg.IsRead {
			line += tui.Dimmed.Render(" ✓")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (c conversationModel) title() string {
	if c.peerName == "" {
		return "Conversation"
	}
	return "Chat with " + c.peerName
}

func (c conversationModel) Update(msg tea.Msg) (conversationModel, tea.Cmd) {
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c conversationModel) View() string {
	return c.viewport.View()
}
