// Package clientcmd wires up the courier chat client command-line interface.
package clientcmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for the courier chat client.
// Bare invocation logs in and opens the chat TUI.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "courier",
		Short: "Courier terminal chat client",
		Long:  "Courier connects to a courier server and provides an interactive terminal chat with presence, read receipts, and typing indicators.",
		RunE:  runChat,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRegisterCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("server", "s", defaultServer(), "server base URL")
	root.PersistentFlags().String("token", "", "bearer token (defaults to COURIER_TOKEN)")

	return root
}

func defaultServer() string {
	if v := os.Getenv("COURIER_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}
