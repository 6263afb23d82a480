package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Item represents a knowledge item from the API.
type Item struct {
	ID           string            `json:"id"`
	WorkspaceID  string            `json:"workspace_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Content      string            `json:"content,omitempty"`
	FileURL      string            `json:"file_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	HasEmbedding bool              `json:"has_embedding"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <item_id>",
		Short:   "Get a knowledge item by ID",
		Long:    "Retrieves a knowledge item by its ID and displays the full content.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runGet(args[0], outputJSON)
		},
	}

	return cmd
}

func runGet(itemID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/items/%s", itemID))
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse item: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Title: %s\n", item.Title)
		fmt.Printf("Type: %s\n", item.Type)
		if item.Description != "" {
			fmt.Printf("Description: %s\n", item.Description)
		}
		if item.FileURL != "" {
			fmt.Printf("URL: %s\n", item.FileURL)
		}
		fmt.Printf("Indexed: %v\n", item.HasEmbedding)
		fmt.Printf("Created: %s\n", item.CreatedAt)
		fmt.Printf("Updated: %s\n", item.UpdatedAt)
		if item.Content != "" {
			fmt.Println()
			fmt.Println("--- Content ---")
			fmt.Println(item.Content)
		}
	}

	return nil
}
