//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quill-labs/quillai/internal/api/handlers"
	"github.com/quill-labs/quillai/internal/repository"
	"github.com/quill-labs/quillai/internal/server"
	"github.com/quill-labs/quillai/internal/service"
	"github.com/quill-labs/quillai/internal/storage"
	"github.com/quill-labs/quillai/internal/testutil"
)

const (
	httpTimeout    = 30 * time.Second
	startupTimeout = 10 * time.Second
	testBucket     = "test-files"
)

// E2ETestEnv wires real containers, a running server and HTTP helpers into
// one fixture shared by the end-to-end tests.
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	WorkspaceID  string
	AuthToken    string // qll_<64 hex> plaintext key
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and RustFS containers, runs migrations and
// boots the API server against them.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  testutil.NewPostgresContainer(ctx, t),
		RustFSC:    testutil.NewRustFSContainer(ctx, t),
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
	env.Pool = testutil.NewTestPool(ctx, t, env.PostgresC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        env.RustFSC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	env.S3Client = s3Client

	port, err := freePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = startServer(t, env.Pool, s3Client, port)

	return env
}

// Cleanup tears everything down in reverse startup order.
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// decodeData unmarshals a response's data payload into dst, failing the test
// on error.
func (e *E2ETestEnv) decodeData(resp *APIResponse, dst interface{}, what string) {
	e.T.Helper()
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		e.T.Fatalf("failed to parse %s response: %v", what, err)
	}
}

// Bootstrap provisions the workspace and API key the rest of the suite
// authenticates with.
func (e *E2ETestEnv) Bootstrap() {
	wsResp, err := e.Post("/workspaces", map[string]string{"name": "E2E Test Workspace"}, "")
	if err != nil {
		e.T.Fatalf("failed to create workspace: %v", err)
	}
	var ws struct {
		ID string `json:"id"`
	}
	e.decodeData(wsResp, &ws, "workspace")
	e.WorkspaceID = ws.ID

	keyResp, err := e.Post("/apikeys", map[string]string{
		"workspace_id": e.WorkspaceID,
		"name":         "e2e-test-key",
	}, "")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	var key struct {
		Token string `json:"token"`
	}
	e.decodeData(keyResp, &key, "key")
	e.AuthToken = key.Token
}

// BuildBinaries compiles quill and quilld into a temp dir for CLI tests.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "quill-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"quilld", "quill"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunQuill invokes the quill binary with credentials pointing at the test
// server.
func (e *E2ETestEnv) RunQuill(workDir string, args ...string) (string, error) {
	return e.runQuill(workDir, nil, args...)
}

// RunQuillWithInput does the same with the given stdin.
func (e *E2ETestEnv) RunQuillWithInput(workDir string, input string, args ...string) (string, error) {
	return e.runQuill(workDir, bytes.NewReader([]byte(input)), args...)
}

func (e *E2ETestEnv) runQuill(workDir string, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "quill"), args...)
	cmd.Dir = workDir
	cmd.Stdin = stdin
	cmd.Env = append(os.Environ(),
		"QUILL_API_KEY="+e.AuthToken,
		"QUILL_API_URL="+e.ServerURL,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse mirrors the server's response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPut, path, body, authToken)
}

func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Delete endpoints answer 204 with no body.
	if len(respBody) == 0 {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// UploadFile PUTs content to a presigned URL, the way a real client would.
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// DownloadFile fetches content from a presigned URL.
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// startServer assembles the full service graph over the test database and
// serves it on the given port. No OpenAI credentials are involved: search
// runs keyword-only and conversation asks fail with INVALID_OPERATION,
// which the tests expect.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	itemRepo := repository.NewItemRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)
	searchLogRepo := repository.NewSearchLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	itemSvc := service.NewItemServiceWithTx(itemRepo, jobRepo, nil, txRunner)
	searchSvc := service.NewSearchServiceWithLog(itemRepo, nil, searchLogRepo)
	conversationSvc := service.NewConversationService(
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		nil,
		searchSvc,
	)
	authSvc := service.NewAuthService(
		repository.NewWorkspaceRepository(pool),
		repository.NewAPIKeyRepository(pool),
		&service.DefaultUUIDGenerator{},
	)
	fileSvc := service.NewFileService(&s3StorageAdapter{client: s3Client}, itemSvc)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       authSvc,
		ItemHandler:         handlers.NewItemHandler(itemSvc),
		SearchHandler:       handlers.NewSearchHandler(searchSvc),
		ConversationHandler: handlers.NewConversationHandler(conversationSvc),
		FileHandler:         handlers.NewFileHandler(fileSvc),
		AuthHandler:         handlers.NewAuthHandler(authSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string) {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", startupTimeout)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// s3StorageAdapter narrows *storage.S3Client to the interface the file
// service consumes.
type s3StorageAdapter struct{ client *storage.S3Client }

func (a *s3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *s3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *s3StorageAdapter) GenerateUploadURL(ctx context.Context, key, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *s3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := a.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}
