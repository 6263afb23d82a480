package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Conversation represents a conversation from the API.
type Conversation struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title,omitempty"`
	Model       string `json:"model,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Message represents a conversation message from the API.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// AskResponse represents the ask API response.
type AskResponse struct {
	UserMessage      *Message       `json:"user_message"`
	AssistantMessage *Message       `json:"assistant_message"`
	Sources          []SearchResult `json:"sources,omitempty"`
}

// ChatCmd creates the chat command group.
func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the knowledge assistant",
		Long:  "Manage conversations and ask questions grounded in workspace knowledge.",
	}

	cmd.AddCommand(ChatNewCmd())
	cmd.AddCommand(ChatListCmd())
	cmd.AddCommand(ChatAskCmd())
	cmd.AddCommand(ChatHistoryCmd())
	cmd.AddCommand(ChatDeleteCmd())

	return cmd
}

// ChatNewCmd creates the chat new command.
func ChatNewCmd() *cobra.Command {
	var title string
	var model string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runChatNew(title, model, outputJSON)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Conversation title (optional)")
	cmd.Flags().StringVar(&model, "model", "", "Chat model override (optional)")

	return cmd
}

// ChatListCmd creates the chat list command.
func ChatListCmd() *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runChatList(limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

// ChatAskCmd creates the chat ask command.
func ChatAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <conversation_id> <question>",
		Short: "Ask a question in a conversation",
		Long:  "Sends a question and prints the assistant answer with its knowledge sources.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runChatAsk(args[0], args[1], outputJSON)
		},
	}

	return cmd
}

// ChatHistoryCmd creates the chat history command.
func ChatHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <conversation_id>",
		Short: "Show conversation messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runChatHistory(args[0], outputJSON)
		},
	}

	return cmd
}

// ChatDeleteCmd creates the chat delete command.
func ChatDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <conversation_id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatDelete(args[0])
		},
	}

	return cmd
}

func runChatNew(title, model string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	if model != "" {
		body["model"] = model
	}

	resp, err := api.Post("/conversations", body)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(resp.Data, &conv); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(conv, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Created conversation: %s\n", conv.ID)
		if conv.Title != "" {
			fmt.Printf("Title: %s\n", conv.Title)
		}
	}

	return nil
}

type conversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
	Cursor        string         `json:"cursor,omitempty"`
	HasMore       bool           `json:"has_more"`
}

func runChatList(limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/conversations?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	var listResp conversationListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Conversations) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	for _, conv := range listResp.Conversations {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  (updated %s)\n", conv.ID, title, conv.UpdatedAt)
	}
	if listResp.HasMore && listResp.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", listResp.Cursor)
	}

	return nil
}

func runChatAsk(conversationID, content string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post(fmt.Sprintf("/conversations/%s/messages", conversationID), map[string]string{
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var askResp AskResponse
	if err := json.Unmarshal(resp.Data, &askResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(askResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if askResp.AssistantMessage != nil {
		fmt.Println(askResp.AssistantMessage.Content)
	}
	if len(askResp.Sources) > 0 {
		fmt.Printf("\n%s\nSources:\n", strings.Repeat("-", 40))
		for _, src := range askResp.Sources {
			fmt.Printf("  - %s (%.2f)  %s\n", src.Title, src.Score, src.ID)
		}
	}

	return nil
}

type messageListResponse struct {
	Messages []Message `json:"messages"`
}

func runChatHistory(conversationID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/conversations/%s/messages", conversationID))
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	var listResp messageListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Messages) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}

	for _, msg := range listResp.Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		fmt.Println()
	}

	return nil
}

func runChatDelete(conversationID string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	if _, err := api.Delete(fmt.Sprintf("/conversations/%s", conversationID)); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	fmt.Printf("Deleted conversation: %s\n", conversationID)
	return nil
}
