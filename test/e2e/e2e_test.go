//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Payload shapes the tests decode from the response envelope. Only fields
// under assertion are listed.
type wsPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type keyPayload struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type itemPayload struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	FileURL     string `json:"file_url"`
}

type itemListPayload struct {
	Items []itemPayload `json:"items"`
}

type searchPayload struct {
	Results []struct {
		ID    string  `json:"id"`
		Title string  `json:"title"`
		Score float32 `json:"score"`
	} `json:"results"`
	Count int `json:"count"`
}

// decode unmarshals a response's data payload, failing the subtest on error.
func decode[T any](t *testing.T, resp *APIResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func TestE2E_Bootstrap(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("create workspace", func(t *testing.T) {
		resp, err := env.Post("/workspaces", map[string]string{"name": "Test Workspace"}, "")
		require.NoError(t, err)

		ws := decode[wsPayload](t, resp)
		assert.NotEmpty(t, ws.ID)
		assert.Equal(t, "Test Workspace", ws.Name)
		assert.NotEmpty(t, ws.CreatedAt)
	})

	t.Run("create API key", func(t *testing.T) {
		wsResp, err := env.Post("/workspaces", map[string]string{"name": "Key Test Workspace"}, "")
		require.NoError(t, err)
		ws := decode[wsPayload](t, wsResp)

		keyResp, err := env.Post("/apikeys", map[string]string{
			"workspace_id": ws.ID,
			"name":         "test-key",
		}, "")
		require.NoError(t, err)

		key := decode[keyPayload](t, keyResp)
		assert.NotEmpty(t, key.Token)
		assert.Equal(t, "test-key", key.Name)
		assert.Len(t, key.Token, 68) // qll_ prefix (4) + 32 bytes hex (64)
		assert.True(t, strings.HasPrefix(key.Token, "qll_"))
	})

	t.Run("API key works for authentication", func(t *testing.T) {
		wsResp, err := env.Post("/workspaces", map[string]string{"name": "Auth Test Workspace"}, "")
		require.NoError(t, err)
		ws := decode[wsPayload](t, wsResp)

		keyResp, err := env.Post("/apikeys", map[string]string{
			"workspace_id": ws.ID,
			"name":         "auth-test-key",
		}, "")
		require.NoError(t, err)
		key := decode[keyPayload](t, keyResp)

		resp, err := env.Get("/items", key.Token)
		require.NoError(t, err)

		list := decode[itemListPayload](t, resp)
		assert.NotNil(t, list.Items) // empty array, not an error
	})

	t.Run("invalid API key returns 401", func(t *testing.T) {
		_, err := env.Get("/items", "qll_invalidtoken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestE2E_ItemLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	var itemID string

	t.Run("create document item", func(t *testing.T) {
		resp, err := env.Post("/items", map[string]interface{}{
			"type":        "document",
			"title":       "E2E Test Document",
			"description": "A test document",
			"content":     "# E2E Test\n\nThis is a test document created during E2E testing.",
		}, env.AuthToken)
		require.NoError(t, err)

		item := decode[itemPayload](t, resp)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, env.WorkspaceID, item.WorkspaceID)
		assert.Equal(t, "document", item.Type)
		assert.Equal(t, "E2E Test Document", item.Title)

		itemID = item.ID
	})

	t.Run("create url item", func(t *testing.T) {
		resp, err := env.Post("/items", map[string]interface{}{
			"type":     "url",
			"title":    "Go Blog",
			"file_url": "https://go.dev/blog",
		}, env.AuthToken)
		require.NoError(t, err)

		item := decode[itemPayload](t, resp)
		assert.Equal(t, "url", item.Type)
		assert.Equal(t, "https://go.dev/blog", item.FileURL)
	})

	t.Run("url item without url is rejected", func(t *testing.T) {
		_, err := env.Post("/items", map[string]interface{}{
			"type":  "url",
			"title": "Broken URL item",
		}, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("get item by ID", func(t *testing.T) {
		resp, err := env.Get("/items/"+itemID, env.AuthToken)
		require.NoError(t, err)

		item := decode[itemPayload](t, resp)
		assert.Equal(t, itemID, item.ID)
		assert.Equal(t, "E2E Test Document", item.Title)
	})

	t.Run("update item", func(t *testing.T) {
		resp, err := env.Put("/items/"+itemID, map[string]interface{}{
			"title":   "E2E Test Document v2",
			"content": "# E2E Test v2\n\nUpdated content.",
		}, env.AuthToken)
		require.NoError(t, err)

		item := decode[itemPayload](t, resp)
		assert.Equal(t, itemID, item.ID)
		assert.Equal(t, "E2E Test Document v2", item.Title)
	})

	t.Run("update enqueues re-embedding job", func(t *testing.T) {
		row := env.Pool.QueryRow(env.Ctx,
			"SELECT count(*) FROM embedding_jobs WHERE item_id = $1", itemID)
		var count int
		require.NoError(t, row.Scan(&count))
		assert.GreaterOrEqual(t, count, 1)
	})

	t.Run("list items returns created items", func(t *testing.T) {
		resp, err := env.Get("/items", env.AuthToken)
		require.NoError(t, err)

		list := decode[itemListPayload](t, resp)
		assert.GreaterOrEqual(t, len(list.Items), 2)

		found := false
		for _, item := range list.Items {
			if item.ID == itemID {
				found = true
				break
			}
		}
		assert.True(t, found, "created item should be in list")
	})

	t.Run("delete item", func(t *testing.T) {
		_, err := env.Delete("/items/"+itemID, env.AuthToken)
		require.NoError(t, err)

		_, err = env.Get("/items/"+itemID, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestE2E_FileUploadDownload(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	fileContent := []byte("This is test file content for the upload/download flow.")

	type initPayload struct {
		UploadID   string `json:"upload_id"`
		StorageKey string `json:"storage_key"`
		UploadURL  string `json:"upload_url"`
	}

	initUpload := func(t *testing.T, filename string) initPayload {
		t.Helper()
		resp, err := env.Post("/files/init", map[string]interface{}{
			"filename":     filename,
			"content_type": "text/plain",
		}, env.AuthToken)
		require.NoError(t, err)
		return decode[initPayload](t, resp)
	}

	var itemID string

	t.Run("init upload returns presigned URL", func(t *testing.T) {
		init := initUpload(t, "test-document.txt")
		assert.NotEmpty(t, init.UploadID)
		assert.NotEmpty(t, init.StorageKey)
		assert.Contains(t, init.UploadURL, "http")

		require.NoError(t, env.UploadFile(init.UploadURL, fileContent, "text/plain"))
	})

	t.Run("complete upload creates file item", func(t *testing.T) {
		init := initUpload(t, "complete-test.txt")
		require.NoError(t, env.UploadFile(init.UploadURL, fileContent, "text/plain"))

		completeResp, err := env.Post("/files/complete", map[string]interface{}{
			"storage_key": init.StorageKey,
			"title":       "Complete Test File",
			"description": "E2E test file",
			"content":     "extracted text for indexing",
		}, env.AuthToken)
		require.NoError(t, err)

		item := decode[itemPayload](t, completeResp)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, "file", item.Type)
		assert.Equal(t, "Complete Test File", item.Title)

		itemID = item.ID
	})

	t.Run("complete without uploaded object fails", func(t *testing.T) {
		init := initUpload(t, "never-uploaded.txt")

		_, err := env.Post("/files/complete", map[string]interface{}{
			"storage_key": init.StorageKey,
			"title":       "Ghost File",
		}, env.AuthToken)
		require.Error(t, err)
	})

	t.Run("get download URL and verify content", func(t *testing.T) {
		resp, err := env.Get("/files/"+itemID+"/download", env.AuthToken)
		require.NoError(t, err)

		download := decode[struct {
			DownloadURL string `json:"download_url"`
		}](t, resp)
		assert.NotEmpty(t, download.DownloadURL)

		downloaded, err := env.DownloadFile(download.DownloadURL)
		require.NoError(t, err)
		assert.Equal(t, fileContent, downloaded)
	})

	t.Run("delete file removes item", func(t *testing.T) {
		_, err := env.Delete("/files/"+itemID, env.AuthToken)
		require.NoError(t, err)

		_, err = env.Get("/items/"+itemID, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestE2E_Search(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	seed := []map[string]interface{}{
		{
			"type":        "document",
			"title":       "Authentication Guide",
			"description": "How to implement authentication",
			"content":     "# Authentication\n\nUse bearer tokens for authentication.",
		},
		{
			"type":        "document",
			"title":       "Database Optimization",
			"description": "Lessons learned about database performance",
			"content":     "# Database\n\nIndex your frequently queried columns.",
		},
		{
			"type":     "url",
			"title":    "API Design Notes",
			"file_url": "https://example.com/api-design",
		},
	}
	for _, item := range seed {
		_, err := env.Post("/items", item, env.AuthToken)
		require.NoError(t, err)
	}

	t.Run("keyword search finds matching items", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "authentication",
			"mode":  "keyword",
			"limit": 10,
		}, env.AuthToken)
		require.NoError(t, err)

		search := decode[searchPayload](t, resp)
		require.GreaterOrEqual(t, len(search.Results), 1)
		assert.Equal(t, len(search.Results), search.Count)

		found := false
		for _, r := range search.Results {
			if strings.Contains(r.Title, "Authentication") {
				found = true
				assert.InDelta(t, 0.8, r.Score, 0.001)
			}
		}
		assert.True(t, found, "search should find Authentication Guide")
	})

	t.Run("hybrid search degrades to keyword without embeddings", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "database",
		}, env.AuthToken)
		require.NoError(t, err)

		search := decode[searchPayload](t, resp)
		found := false
		for _, r := range search.Results {
			if strings.Contains(r.Title, "Database") {
				found = true
			}
		}
		assert.True(t, found, "hybrid search should still return keyword matches")
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := env.Post("/search", map[string]interface{}{
			"query": "",
		}, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("unmatched query returns empty results", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "zzzznomatchzzz",
			"mode":  "keyword",
		}, env.AuthToken)
		require.NoError(t, err)

		search := decode[searchPayload](t, resp)
		assert.Empty(t, search.Results)
		assert.Equal(t, 0, search.Count)
	})
}

func TestE2E_Conversations(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	type convPayload struct {
		ID          string `json:"id"`
		WorkspaceID string `json:"workspace_id"`
		Title       string `json:"title"`
	}

	var conversationID string

	t.Run("create conversation", func(t *testing.T) {
		resp, err := env.Post("/conversations", map[string]string{
			"title": "E2E Conversation",
		}, env.AuthToken)
		require.NoError(t, err)

		conv := decode[convPayload](t, resp)
		assert.NotEmpty(t, conv.ID)
		assert.Equal(t, env.WorkspaceID, conv.WorkspaceID)
		assert.Equal(t, "E2E Conversation", conv.Title)

		conversationID = conv.ID
	})

	t.Run("list conversations", func(t *testing.T) {
		resp, err := env.Get("/conversations", env.AuthToken)
		require.NoError(t, err)

		list := decode[struct {
			Conversations []convPayload `json:"conversations"`
		}](t, resp)
		require.GreaterOrEqual(t, len(list.Conversations), 1)
		assert.Equal(t, conversationID, list.Conversations[0].ID)
	})

	t.Run("messages start empty", func(t *testing.T) {
		resp, err := env.Get("/conversations/"+conversationID+"/messages", env.AuthToken)
		require.NoError(t, err)

		list := decode[struct {
			Messages []interface{} `json:"messages"`
		}](t, resp)
		assert.Empty(t, list.Messages)
	})

	t.Run("ask fails without configured chat model", func(t *testing.T) {
		_, err := env.Post("/conversations/"+conversationID+"/messages", map[string]string{
			"content": "What do we know about authentication?",
		}, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat model not configured")
	})

	t.Run("delete conversation", func(t *testing.T) {
		_, err := env.Delete("/conversations/"+conversationID, env.AuthToken)
		require.NoError(t, err)

		_, err = env.Get("/conversations/"+conversationID, env.AuthToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestE2E_CLIWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()
	env.BuildBinaries()

	workDir, err := os.MkdirTemp("", "quill-cli-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(workDir)

	// latestItemID reads the newest item straight from the database, since
	// the CLI prints human output rather than bare IDs.
	latestItemID := func(t *testing.T) string {
		t.Helper()
		row := env.Pool.QueryRow(env.Ctx,
			"SELECT id FROM items WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT 1",
			env.WorkspaceID)
		var id string
		require.NoError(t, row.Scan(&id))
		return id
	}

	t.Run("quill add creates item", func(t *testing.T) {
		input := `{
			"type": "document",
			"title": "CLI Test Document",
			"description": "Created via CLI",
			"content": "# CLI Test\n\nThis item was created via the quill CLI."
		}`

		output, err := env.RunQuillWithInput(workDir, input, "add", "--output")
		require.NoError(t, err, "add failed: %s", output)
		assert.Contains(t, output, "id")
	})

	t.Run("quill search finds item", func(t *testing.T) {
		output, err := env.RunQuill(workDir, "search", "CLI Test", "--mode", "keyword", "--output")
		require.NoError(t, err, "search failed: %s", output)
		assert.Contains(t, output, "CLI Test Document")
	})

	t.Run("quill list shows item", func(t *testing.T) {
		output, err := env.RunQuill(workDir, "list", "--output")
		require.NoError(t, err, "list failed: %s", output)
		assert.Contains(t, output, "CLI Test Document")
	})

	t.Run("quill get retrieves item", func(t *testing.T) {
		itemID := latestItemID(t)

		output, err := env.RunQuill(workDir, "get", itemID, "--output")
		require.NoError(t, err, "get failed: %s", output)
		assert.Contains(t, output, itemID)
	})

	t.Run("quill delete removes item", func(t *testing.T) {
		itemID := latestItemID(t)

		output, err := env.RunQuill(workDir, "delete", itemID)
		require.NoError(t, err, "delete failed: %s", output)
		assert.Contains(t, output, "Deleted item")

		_, err = env.Get("/items/"+itemID, env.AuthToken)
		require.Error(t, err)
	})
}
