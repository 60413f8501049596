// Package anymindcmder
package anymindcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/yashdodwani/anymind/cmd/anymind/chat"
	configcmder "github.com/yashdodwani/anymind/cmd/anymind/config"
	servecmder "github.com/yashdodwani/anymind/cmd/anymind/serve"
)

const anymindLongDesc string = `Anymind is a wallet-scoped agent chat backend with
per-chat conversational memory.

Run the backend using:
  anymind serve        Run the API server

Manage configuration using:
  anymind config       Get, set, or list configuration values

Chat interactively using:
  anymind chat         Stream a conversation against a running server`

const anymindShortDesc string = "Anymind - agent chat with memory"

func NewAnymindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anymind",
		Short: anymindShortDesc,
		Long:  anymindLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .anymind/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())

	return cmd
}
