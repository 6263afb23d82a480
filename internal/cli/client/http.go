package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIKey = "QUILL_API_KEY"
	envAPIURL = "QUILL_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

// APIClient is the HTTP client every quill command talks through.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves credentials through the config cascade:
// command flags, then environment, then ~/.config/quill/config.json. A nil
// cmd skips the flag step.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var apiKey, baseURL string

	if cmd != nil {
		if v, err := cmd.Flags().GetString("api-key"); err == nil && v != "" {
			apiKey = v
		}
		if v, err := cmd.Flags().GetString("api-url"); err == nil && v != "" {
			baseURL = v
		}
	}

	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	if baseURL == "" {
		baseURL = os.Getenv(envAPIURL)
	}

	if apiKey == "" || baseURL == "" {
		cfg, err := LoadGlobalConfig()
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			if apiKey == "" {
				apiKey = cfg.APIKey
			}
			if baseURL == "" {
				baseURL = cfg.APIURL
			}
		}
	}

	if apiKey == "" {
		return nil, fmt.Errorf("%s not set (run 'quill auth login' or set environment variable)", envAPIKey)
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	return NewAPIClientWithConfig(apiKey, baseURL)
}

// NewAPIClient loads .env if present, then resolves credentials from the
// environment and global config.
func NewAPIClient() (*APIClient, error) {
	_ = godotenv.Load()
	return NewAPIClientWithCmd(nil)
}

// NewAPIClientWithConfig builds a client with explicit credentials, skipping
// the cascade.
func NewAPIClientWithConfig(apiKey, baseURL string) (*APIClient, error) {
	return &APIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// APIResponse is the server's JSON envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// RequestOptions carries optional request headers.
type RequestOptions struct {
	IdempotencyKey string
}

func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do("GET", path, nil)
}

func (c *APIClient) Post(path string, body interface{}) (*APIResponse, error) {
	return c.do("POST", path, body)
}

func (c *APIClient) Put(path string, body interface{}) (*APIResponse, error) {
	return c.do("PUT", path, body)
}

func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do("DELETE", path, nil)
}

// PostWithOptions is Post with an idempotency key.
func (c *APIClient) PostWithOptions(path string, body interface{}, opts RequestOptions) (*APIResponse, error) {
	return c.doWithOptions("POST", path, body, opts)
}

// DeleteWithOptions is Delete with an idempotency key.
func (c *APIClient) DeleteWithOptions(path string, opts RequestOptions) (*APIResponse, error) {
	return c.doWithOptions("DELETE", path, nil, opts)
}

func (c *APIClient) do(method, path string, body interface{}) (*APIResponse, error) {
	return c.doWithOptions(method, path, body, RequestOptions{})
}

func (c *APIClient) doWithOptions(method, path string, body interface{}, opts RequestOptions) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if opts.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Delete endpoints respond 204 with no body.
	if len(respBody) == 0 {
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiResp.Error}
	}

	return &apiResp, nil
}

// ProgressFunc receives transfer progress as (bytes so far, total bytes).
type ProgressFunc func(current, total int64)

// progressReader reports bytes read through an io.Reader.
type progressReader struct {
	src    io.Reader
	size   int64
	seen   int64
	notify ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.src.Read(p)
	pr.seen += int64(n)
	if pr.notify != nil {
		pr.notify(pr.seen, pr.size)
	}
	return n, err
}

// putPresigned PUTs size bytes from reader to a presigned URL. These URLs
// carry their own signature, so no Authorization header is sent.
func (c *APIClient) putPresigned(uploadURL string, reader io.Reader, size int64, contentType string) error {
	req, err := http.NewRequest("PUT", uploadURL, reader)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// UploadFile streams a local file to a presigned upload URL.
func (c *APIClient) UploadFile(uploadURL, filePath, contentType string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	return c.putPresigned(uploadURL, file, stat.Size(), contentType)
}

// UploadReader streams size bytes from reader to a presigned upload URL.
func (c *APIClient) UploadReader(uploadURL string, reader io.Reader, size int64, contentType string) error {
	return c.putPresigned(uploadURL, reader, size, contentType)
}

// UploadReaderWithProgress is UploadReader with progress callbacks.
func (c *APIClient) UploadReaderWithProgress(uploadURL string, reader io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	pr := &progressReader{src: reader, size: size, notify: onProgress}
	return c.putPresigned(uploadURL, pr, size, contentType)
}

// DownloadFile fetches url into outputPath.
func (c *APIClient) DownloadFile(url, outputPath string) error {
	return c.DownloadFileWithProgress(url, outputPath, nil)
}

// DownloadFileWithProgress fetches url into outputPath, reporting progress
// when onProgress is non-nil.
func (c *APIClient) DownloadFileWithProgress(url, outputPath string, onProgress ProgressFunc) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{src: resp.Body, size: resp.ContentLength, notify: onProgress}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
