package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// CreateItemRequest represents the create item API request.
type CreateItemRequest struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content,omitempty"`
	FileURL     string            `json:"file_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var (
		file           string
		itemType       string
		title          string
		description    string
		url            string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a knowledge item from stdin, file, or flags",
		Long: `Add a knowledge item from JSON input (stdin or file) or from flags.

Examples:
  # Add from JSON on stdin
  echo '{"type":"document","title":"Guide","content":"# Guide"}' | quill add

  # Add a document from a markdown file
  quill add --file guide.md --type document --title "My Guide"

  # Add a URL item
  quill add --type url --title "Go blog" --url https://go.dev/blog

  # Add a folder
  quill add --type folder --title "Runbooks"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAdd(file, itemType, title, description, url, outputJSON, idempotencyKey)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Input file (JSON or markdown content)")
	cmd.Flags().StringVarP(&itemType, "type", "t", "", "Item type (folder, document, file, url, url_directory)")
	cmd.Flags().StringVar(&title, "title", "", "Title (required with --file for markdown)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description (optional)")
	cmd.Flags().StringVar(&url, "url", "", "Source URL (for url and url_directory items)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key for request deduplication")

	return cmd
}

func runAdd(file, itemType, title, description, url string, outputJSON bool, idempotencyKey string) error {
	req, err := buildCreateRequest(file, itemType, title, description, url)
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	opts := RequestOptions{IdempotencyKey: idempotencyKey}
	resp, err := api.PostWithOptions("/items", req, opts)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Created %s: %s\n", item.Type, item.ID)
		fmt.Printf("Title: %s\n", item.Title)
	}

	return nil
}

// buildCreateRequest resolves the input source. Flags take precedence over
// raw JSON: when --type is given, --file (if any) is treated as the item
// content rather than a serialized request.
func buildCreateRequest(file, itemType, title, description, url string) (*CreateItemRequest, error) {
	if itemType != "" {
		req := &CreateItemRequest{
			Type:        itemType,
			Title:       title,
			Description: description,
			FileURL:     url,
		}
		if file != "" {
			content, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			req.Content = string(content)
		}
		if req.Title == "" {
			return nil, fmt.Errorf("--title is required when --type is set")
		}
		return req, nil
	}

	var input []byte
	var err error
	if file != "" {
		input, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	} else {
		input, err = readStdin()
		if err != nil {
			return nil, err
		}
	}

	var req CreateItemRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}
	if req.Type == "" || req.Title == "" {
		return nil, fmt.Errorf("JSON input must include type and title")
	}
	return &req, nil
}

func readStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no input provided (pipe JSON to stdin or use --file)")
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(strings.TrimSpace(string(input))) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return input, nil
}
