package main

import (
	"fmt"
	"os"

	"github.com/quill-labs/quillai/internal/cli"
	"github.com/quill-labs/quillai/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill CLI - Knowledge backend for AI assistants",
		Long: `Quill CLI provides commands to manage knowledge items, search, and chat.

Environment variables:
  QUILL_API_KEY   API key for authentication (required)
  QUILL_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.AddCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.FileCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
