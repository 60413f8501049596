// Package configcmder provides the config command for managing persistent
// anymind configuration stored in the .anymind/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent anymind configuration.

Configuration is stored as config.toml in the .anymind/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.postgres_url,
  api.listen, client.api_target,
  llm.base_url, llm.api_key, llm.model,
  websearch.api_key,
  memory.provider, memory.platform_api_key,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  events.topic

Use subcommands to get, set, or list configuration values:
  anymind config set <key> <value>    Set a configuration value
  anymind config get <key>            Get a configuration value
  anymind config list                 List all configuration values

Examples:
  anymind config set llm.model openai/gpt-4o
  anymind config set memory.provider platform
  anymind config get llm.model
  anymind config list`

const configShortDesc string = "Manage persistent anymind configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
