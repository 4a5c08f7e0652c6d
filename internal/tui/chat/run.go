package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/courier-chat/courier/internal/client"
	"github.com/courier-chat/courier/pkg/protocol"
)

// Run connects to the server over WebSocket and displays the chat TUI.
// It returns when the user quits.
func Run(api *client.API, meID, meUsername string, logger *slog.Logger) error {
	var p *tea.Program

	ws := client.NewWS(api.BaseURL(), api.Token(), func(head protocol.FrameHead, data []byte) {
		p.Send(FrameMsg{Head: head, Data: data})
	}, logger)

	m := NewModel(api, ws, meID, meUsername)
	p = tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = ws.Connect(ctx)
	}()

	// Periodically refresh connection status, directory, and unread counts.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Send(ConnStatusMsg{Connected: ws.Connected(), Reconnecting: ws.Reconnecting()})
				if users, err := api.ListUsers(ctx); err == nil {
					p.Send(UsersMsg{Users: users})
				}
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
