package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the OpenAI model used for chat completions
	DefaultChatModel = openai.GPT4oMini

	// DefaultMaxAttempts bounds retries on transient network failures
	DefaultMaxAttempts = 3
	// DefaultRetryBackoff is the fixed wait between attempts
	DefaultRetryBackoff = 1 * time.Second
	// DefaultRequestTimeout bounds a single provider call
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxInputChars is the character budget applied before submission.
	// Longer text is cut off, not chunked.
	DefaultMaxInputChars = 24000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI defines the interface for chat completion
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)
}

// ChatMessage is a single message submitted to the chat model
type ChatMessage struct {
	Role    string
	Content string
}

// Client wraps the OpenAI API with bounded retries and per-attempt timeouts
type Client struct {
	api            EmbeddingAPI
	chat           ChatAPI
	dimensions     int
	maxAttempts    int
	retryBackoff   time.Duration
	requestTimeout time.Duration
	maxInputChars  int
}

// sdkAdapter backs EmbeddingAPI and ChatAPI with the go-openai SDK.
type sdkAdapter struct {
	sdk       *openai.Client
	model     openai.EmbeddingModel
	chatModel string
}

func newSDKAdapter(apiKey string, model openai.EmbeddingModel, chatModel string) *sdkAdapter {
	a := &sdkAdapter{
		sdk:       openai.NewClient(apiKey),
		model:     model,
		chatModel: chatModel,
	}
	if a.model == "" {
		a.model = DefaultEmbeddingModel
	}
	if a.chatModel == "" {
		a.chatModel = DefaultChatModel
	}
	return a
}

func (a *sdkAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.sdk.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: a.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (a *sdkAdapter) CreateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    a.chatModel,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := a.sdk.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	MaxAttempts         int
	RetryBackoff        time.Duration
	RequestTimeout      time.Duration
	MaxInputChars       int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	adapter := newSDKAdapter(cfg.APIKey, cfg.EmbeddingModel, cfg.ChatModel)
	c := &Client{
		api:            adapter,
		chat:           adapter,
		dimensions:     cfg.EmbeddingDimensions,
		maxAttempts:    cfg.MaxAttempts,
		retryBackoff:   cfg.RetryBackoff,
		requestTimeout: cfg.RequestTimeout,
		maxInputChars:  cfg.MaxInputChars,
	}
	c.applyDefaults()
	return c
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

func (c *Client) applyDefaults() {
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = DefaultRetryBackoff
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.maxInputChars <= 0 {
		c.maxInputChars = DefaultMaxInputChars
	}
}

// GenerateEmbedding generates an embedding for the given text. Text beyond
// the character budget is dropped before submission. Transient network
// failures are retried up to the attempt bound with a fixed backoff; any
// other failure (auth, rate limit, malformed input) fails immediately.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	text = truncateText(text, c.maxInputChars)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}

		embedding, err := c.createEmbeddingOnce(ctx, text)
		if err == nil {
			if len(embedding) != c.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(embedding))
			}
			return embedding, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", lastErr)
		}
		if !isTransientError(err) {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to create embedding after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) createEmbeddingOnce(ctx context.Context, text string) ([]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.api.CreateEmbeddings(attemptCtx, text)
}

// CreateChatCompletion proxies a chat completion request to the provider.
// Completion calls are not retried: the caller surfaces their errors directly.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages cannot be empty")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	reply, err := c.chat.CreateChatCompletion(attemptCtx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	return reply, nil
}

// isTransientError reports whether the failure looks like a transient network
// condition worth retrying: DNS resolution failure, connection failure, or a
// request timeout. API-level errors (auth, rate limits, bad requests) return
// false so they fail fast.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	// API responses carry a status code and are never transient here; 429s
	// are deliberately not retried by this client.
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// truncateText cuts text to at most max characters, on rune boundaries.
func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
