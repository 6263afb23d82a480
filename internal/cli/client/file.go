package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// InitUploadRequest represents the init upload API request.
type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// InitUploadResponse represents the init upload API response.
type InitUploadResponse struct {
	UploadID   string `json:"upload_id"`
	StorageKey string `json:"storage_key"`
	UploadURL  string `json:"upload_url"`
}

// CompleteUploadRequest represents the complete upload API request.
type CompleteUploadRequest struct {
	StorageKey  string `json:"storage_key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
}

// DownloadURLResponse represents the download URL API response.
type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// FileCmd creates the file command group.
func FileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File management commands",
		Long:  "Commands for uploading and downloading files in the knowledge base.",
	}

	cmd.AddCommand(FileUploadCmd())
	cmd.AddCommand(FileGetCmd())
	cmd.AddCommand(FileDeleteCmd())

	return cmd
}

// FileUploadCmd creates the file upload command.
func FileUploadCmd() *cobra.Command {
	var (
		title       string
		description string
		text        string
	)

	cmd := &cobra.Command{
		Use:   "upload <filepath>",
		Short: "Upload a file",
		Long: `Upload a file to the knowledge base via presigned URL.

Examples:
  # Upload a reference document
  quill file upload handbook.pdf --title "Employee handbook"

  # Upload with extracted text for search indexing
  quill file upload diagram.png --title "Auth flow" --text "Login sequence diagram"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runFileUpload(args[0], title, description, text, outputJSON)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title for the file item (default: filename)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the file")
	cmd.Flags().StringVar(&text, "text", "", "Extracted text content used for search indexing")

	return cmd
}

func runFileUpload(filePath, title, description, text string, outputJSON bool) error {
	stat, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%s is a directory", filePath)
	}

	filename := filepath.Base(filePath)
	if title == "" {
		title = filename
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	initReq := InitUploadRequest{
		Filename:    filename,
		ContentType: contentType,
	}

	initResp, err := api.Post("/files/init", initReq)
	if err != nil {
		return fmt.Errorf("failed to init upload: %w", err)
	}

	var uploadInfo InitUploadResponse
	if err := json.Unmarshal(initResp.Data, &uploadInfo); err != nil {
		return fmt.Errorf("failed to parse init response: %w", err)
	}

	if err := api.UploadFile(uploadInfo.UploadURL, filePath, contentType); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	completeReq := CompleteUploadRequest{
		StorageKey:  uploadInfo.StorageKey,
		Title:       title,
		Description: description,
		Content:     text,
	}

	completeResp, err := api.Post("/files/complete", completeReq)
	if err != nil {
		return fmt.Errorf("failed to complete upload: %w", err)
	}

	var item Item
	if err := json.Unmarshal(completeResp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse complete response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Uploaded file: %s\n", item.ID)
		fmt.Printf("Title: %s\n", item.Title)
		if item.Description != "" {
			fmt.Printf("Description: %s\n", item.Description)
		}
	}

	return nil
}

// FileGetCmd creates the file get command.
func FileGetCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <item_id>",
		Short: "Download a file by item ID",
		Long:  "Downloads a file from the knowledge base by its item ID.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFileGet(args[0], outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "dest", "o", "", "Output file path (default: item title in current directory)")

	return cmd
}

func runFileGet(itemID, outputPath string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/files/%s/download", itemID))
	if err != nil {
		return fmt.Errorf("failed to get download URL: %w", err)
	}

	var downloadResp DownloadURLResponse
	if err := json.Unmarshal(resp.Data, &downloadResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputPath == "" {
		itemResp, err := api.Get(fmt.Sprintf("/items/%s", itemID))
		if err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}
		var item Item
		if err := json.Unmarshal(itemResp.Data, &item); err != nil {
			return fmt.Errorf("failed to parse item: %w", err)
		}
		outputPath = filepath.Base(item.Title)
	}

	if err := api.DownloadFileWithProgress(downloadResp.DownloadURL, outputPath, printProgress); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("\nDownloaded to %s\n", outputPath)
	return nil
}

func printProgress(current, total int64) {
	if total <= 0 {
		return
	}
	fmt.Printf("\r%d%% (%d/%d bytes)", current*100/total, current, total)
}

// FileDeleteCmd creates the file delete command.
func FileDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <item_id>",
		Short: "Delete a file and its stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFileDelete(args[0])
		},
	}

	return cmd
}

func runFileDelete(itemID string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	if _, err := api.Delete(fmt.Sprintf("/files/%s", itemID)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	fmt.Printf("Deleted file: %s\n", itemID)
	return nil
}
