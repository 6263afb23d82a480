package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float32 `json:"threshold,omitempty"`
	Mode      string  `json:"mode,omitempty"`
}

// SearchResult represents a search result.
type SearchResult struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
	Type        string            `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Score       float32           `json:"score"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		limit     int
		threshold float32
		mode      string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search knowledge items",
		Long:  "Searches the workspace using semantic, keyword, or hybrid search.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(args[0], limit, threshold, mode, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (server default: 5)")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Minimum similarity score (server default: 0.7)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Search mode: semantic, keyword, or hybrid (default)")

	return cmd
}

func runSearch(query string, limit int, threshold float32, mode string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := SearchRequest{
		Query:     query,
		Limit:     limit,
		Threshold: threshold,
		Mode:      mode,
	}

	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(searchResp.Results))
	for i, result := range searchResp.Results {
		fmt.Printf("%d. %s (%.2f)\n", i+1, result.Title, result.Score)
		if result.Snippet != "" {
			snippet := result.Snippet
			if len(snippet) > 100 {
				snippet = snippet[:97] + "..."
			}
			fmt.Printf("   %s\n", snippet)
		}
		fmt.Printf("   Type: %s  ID: %s\n", result.Type, result.ID)
		if i < len(searchResp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
