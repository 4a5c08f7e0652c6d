package clientcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courier-chat/courier/internal/client"
	"github.com/courier-chat/courier/pkg/cli"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create a new account on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL, _ := cmd.Flags().GetString("server")
			api := client.NewAPI(serverURL)

			p := cli.DefaultPrompter()
			username := p.Ask("Username", "")
			password := p.AskPassword("Password")
			confirm := p.AskPassword("Confirm password")
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			if err := api.Register(context.Background(), username, password); err != nil {
				return fmt.Errorf("register: %w", err)
			}

			fmt.Fprintf(p.Out, "Account %q created. Run courier to log in.\n", username)
			return nil
		},
	}
}
