package clientcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/courier-chat/courier/internal/client"
	"github.com/courier-chat/courier/internal/tui/chat"
	"github.com/courier-chat/courier/pkg/cli"
)

func runChat(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("COURIER_TOKEN")
	}

	api := client.NewAPI(serverURL)
	ctx := context.Background()

	if token != "" {
		api.SetToken(token)
	} else {
		if err := login(ctx, api); err != nil {
			return err
		}
	}

	meID, meUsername, _, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	// The TUI owns the terminal, so client logs are discarded.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return chat.Run(api, meID, meUsername, logger)
}

// login prompts for credentials interactively and exchanges them for a token.
func login(ctx context.Context, api *client.API) error {
	cfg, err := api.GetAuthConfig(ctx)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	if cfg.Provider != "builtin" {
		return fmt.Errorf("server uses the %q auth provider, pass a token via --token or COURIER_TOKEN", cfg.Provider)
	}

	p := cli.DefaultPrompter()
	username := p.Ask("Username", "")
	password := p.AskPassword("Password")

	if err := api.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}
