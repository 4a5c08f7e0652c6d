package chat

import (
	"fmt"
	"sort"

	"github.com/courier-chat/courier/internal/client"
	"github.com/courier-chat/courier/internal/store"
	"github.com/courier-chat/courier/internal/tui"
)

type peersModel struct {
	users  []client.User
	unread map[string]int64
	typing map[string]bool
	cursor int
}

func newPeers() peersModel {
	return peersModel{
		unread: make(map[string]int64),
		typing: make(map[string]bool),
	}
}

// setUsers replaces the directory, dropping the authenticated user and keeping
// online peers first.
func (p *peersModel) setUsers(users []client.User, meID string) {
	selectedID := ""
	if s := p.selected(); s != nil {
		selectedID = s.ID
	}

	filtered := users[:0:0]
	for _, u := range users {
		if u.ID != meID {
			filtered = append(filtered, u)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Online != filtered[j].Online {
			return filtered[i].Online
		}
		return filtered[i].Username < filtered[j].Username
	})
	p.users = filtered

	// Keep the cursor on the previously selected peer across refreshes.
	p.cursor = 0
	for i, u := range p.users {
		if u.ID == selectedID {
			p.cursor = i
			break
		}
	}
}

func (p *peersModel) setUnread(counts []store.UnreadCount) {
	p.unread = make(map[string]int64, len(counts))
	for _, c := range counts {
		p.unread[c.SenderID] = c.Count
	}
}

func (p *peersModel) incrementUnread(userID string) {
	p.unread[userID]++
}

func (p *peersModel) clearUnread(userID string) {
	delete(p.unread, userID)
}

func (p *peersModel) setTyping(userID string) {
	p.typing[userID] = true
}

func (p *peersModel) clearTyping(userID string) {
	delete(p.typing, userID)
}

func (p *peersModel) moveCursor(delta int) {
	next := p.cursor + delta
	if next >= 0 && next < len(p.users) {
		p.cursor = next
	}
}

func (p *peersModel) selected() *client.User {
	if p.cursor < 0 || p.cursor >= len(p.users) {
		return nil
	}
	return &p.users[p.cursor]
}

func (p peersModel) View() string {
	if len(p.users) == 0 {
		return tui.Dimmed.Render("  No other users yet")
	}

	rows := ""
	for i, u := range p.users {
		cursor := "  "
		name := u.Username
		if len(name) > 16 {
			name = name[:16]
		}

		line := tui.PresenceDot(u.Online) + " " + name
		if n := p.unread[u.ID]; n > 0 {
			line += tui.Selected.Render(fmt.Sprintf(" (%d)", n))
		}
		if p.typing[u.ID] {
			line += tui.Dimmed.Render(" typing...")
		}

		if i == p.cursor {
			cursor = tui.Selected.Render("> ")
		}
		rows += cursor + line + "\n"
	}
	return rows
}
