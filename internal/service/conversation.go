package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/openai"
	"github.com/quill-labs/quillai/internal/pagination"
	"github.com/quill-labs/quillai/internal/telemetry"
)

const (
	// maxContextItems bounds how many search hits are injected into the
	// assistant prompt.
	maxContextItems = 5

	// maxHistoryMessages bounds how much conversation history is replayed to
	// the chat model per request.
	maxHistoryMessages = 20
)

const assistantSystemPrompt = `You are a helpful assistant answering questions using the user's knowledge base.
Use the provided context when it is relevant. If the context does not contain
the answer, say so instead of inventing one.`

// ConversationRepositoryInterface defines the repository interface for conversation persistence
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByWorkspaceWithCursor(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*ConversationPageResult, error)
	UpdateTitle(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

// ConversationPageResult is one page of conversations plus the next cursor.
type ConversationPageResult struct {
	Conversations []*domain.Conversation
	NextCursor    string
	HasMore       bool
}

// MessageRepositoryInterface defines the repository interface for message persistence
type MessageRepositoryInterface interface {
	Create(ctx context.Context, message *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
}

// ChatClient is the completion surface the conversation service needs
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, messages []openai.ChatMessage) (string, error)
}

// ContextSearcher retrieves knowledge items relevant to a question.
type ContextSearcher interface {
	Search(ctx context.Context, input SearchInput) ([]*SearchResult, error)
}

// ConversationService handles chat conversations. Assistant replies are
// grounded on hybrid search over the workspace's knowledge items.
type ConversationService struct {
	conversationRepo ConversationRepositoryInterface
	messageRepo      MessageRepositoryInterface
	chat             ChatClient
	searcher         ContextSearcher
	uuidGen          UUIDGenerator
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(conversationRepo ConversationRepositoryInterface, messageRepo MessageRepositoryInterface, chat ChatClient, searcher ContextSearcher) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		chat:             chat,
		searcher:         searcher,
		uuidGen:          &DefaultUUIDGenerator{},
	}
}

// CreateConversationInput represents input for creating a conversation
type CreateConversationInput struct {
	WorkspaceID string
	Title       string
	Model       string
}

// Create starts a new empty conversation.
func (s *ConversationService) Create(ctx context.Context, input CreateConversationInput) (*domain.Conversation, error) {
	conversation := domain.NewConversation(s.uuidGen.NewString(), input.WorkspaceID, input.Title, input.Model, time.Now().UTC())

	if err := domain.ValidateConversation(conversation); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid conversation", err)
	}

	if err := s.conversationRepo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// GetByID returns a single conversation by ID.
func (s *ConversationService) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.conversationRepo.GetByID(ctx, id)
}

// ListConversationsInput represents input for listing conversations
type ListConversationsInput struct {
	WorkspaceID string
	Cursor      string
	Limit       int
}

// ListConversationsOutput represents one page of conversations
type ListConversationsOutput struct {
	Conversations []*domain.Conversation
	Cursor        string
	HasMore       bool
}

// List returns a page of conversations for a workspace.
func (s *ConversationService) List(ctx context.Context, input ListConversationsInput) (*ListConversationsOutput, error) {
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	page, err := s.conversationRepo.ListByWorkspaceWithCursor(ctx, input.WorkspaceID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListConversationsOutput{
		Conversations: page.Conversations,
		Cursor:        page.NextCursor,
		HasMore:       page.HasMore,
	}, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	return s.conversationRepo.Delete(ctx, id)
}

// Messages returns the messages of a conversation in chronological order.
func (s *ConversationService) Messages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByConversation(ctx, conversationID, 0)
}

// AskInput represents input for asking a question in a conversation
type AskInput struct {
	ConversationID string
	Content        string
}

// AskOutput carries the stored user message and the assistant reply.
type AskOutput struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	Sources          []*SearchResult
}

// Ask records the user message, retrieves relevant knowledge items, calls the
// chat model with the conversation history plus retrieved context, and stores
// the assistant reply. Retrieval failures degrade to an uncontextualized
// answer rather than failing the request.
func (s *ConversationService) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Ask", telemetry.SpanAttributes{
		ConversationID: input.ConversationID,
		Operation:      "ask",
	})
	defer span.End()

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "message content is required")
	}

	if s.chat == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "chat model not configured: OPENAI_API_KEY required")
	}

	conversation, err := s.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userMessage := domain.NewMessage(s.uuidGen.NewString(), conversation.ID, domain.MessageRoleUser, content, now)
	if err := s.messageRepo.Create(ctx, userMessage); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	history, err := s.messageRepo.ListByConversation(ctx, conversation.ID, maxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	sources := s.retrieveContext(ctx, conversation.WorkspaceID, content)

	reply, err := s.chat.CreateChatCompletion(ctx, buildChatMessages(history, sources))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "chat completion failed", err)
	}

	assistantMessage := domain.NewMessage(s.uuidGen.NewString(), conversation.ID, domain.MessageRoleAssistant, reply, time.Now().UTC())
	if err := s.messageRepo.Create(ctx, assistantMessage); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if conversation.Title == "" {
		if err := s.conversationRepo.UpdateTitle(ctx, conversation.ID, deriveTitle(content)); err != nil {
			log.Printf("conversation %s: failed to set title: %v", conversation.ID, err)
		}
	}

	return &AskOutput{
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Sources:          sources,
	}, nil
}

func (s *ConversationService) retrieveContext(ctx context.Context, workspaceID, query string) []*SearchResult {
	if s.searcher == nil {
		return nil
	}

	results, err := s.searcher.Search(ctx, SearchInput{
		Query:       query,
		WorkspaceID: workspaceID,
		Limit:       maxContextItems,
	})
	if err != nil {
		log.Printf("context retrieval failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return nil
	}
	return results
}

func buildChatMessages(history []*domain.Message, sources []*SearchResult) []openai.ChatMessage {
	messages := make([]openai.ChatMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatMessage{
		Role:    string(domain.MessageRoleSystem),
		Content: assistantSystemPrompt,
	})

	if len(sources) > 0 {
		var b strings.Builder
		b.WriteString("Context from the knowledge base:\n")
		for _, r := range sources {
			b.WriteString("\n## ")
			b.WriteString(r.Title)
			b.WriteString("\n")
			if r.Description != "" {
				b.WriteString(r.Description)
				b.WriteString("\n")
			}
			if r.Content != "" {
				b.WriteString(r.Content)
				b.WriteString("\n")
			}
		}
		messages = append(messages, openai.ChatMessage{
			Role:    string(domain.MessageRoleSystem),
			Content: b.String(),
		})
	}

	for _, m := range history {
		messages = append(messages, openai.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

// deriveTitle builds a conversation title from the first user message.
func deriveTitle(content string) string {
	const maxTitleChars = 80

	title := strings.Join(strings.Fields(content), " ")
	if len(title) <= maxTitleChars {
		return title
	}

	runes := []rune(title)
	if len(runes) > maxTitleChars {
		runes = runes[:maxTitleChars]
	}
	return strings.TrimSpace(string(runes)) + "..."
}
