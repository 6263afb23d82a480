package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/quill-labs/quillai/internal/api/handlers"
	"github.com/quill-labs/quillai/internal/config"
	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/jobs"
	"github.com/quill-labs/quillai/internal/openai"
	"github.com/quill-labs/quillai/internal/repository"
	"github.com/quill-labs/quillai/internal/server"
	"github.com/quill-labs/quillai/internal/service"
	"github.com/quill-labs/quillai/internal/storage"
	"github.com/quill-labs/quillai/internal/telemetry"
)

const (
	workerPollInterval = 10 * time.Second
	shutdownGrace      = 30 * time.Second
)

// ServeCmd builds the command that runs the HTTP API server.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the quill API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port the HTTP server listens on")
	cmd.Flags().Bool("no-migrate", false, "Do not run database migrations at startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" && port != "8080" {
		cfg.Port = port
	}

	if shutdown := setupTelemetry(); shutdown != nil {
		defer shutdown()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	if skip, _ := cmd.Flags().GetBool("no-migrate"); !skip {
		if err := applyMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	itemRepo := repository.NewItemRepository(pool)
	embeddingJobRepo := repository.NewEmbeddingJobRepository(pool)
	workspaceRepo := repository.NewWorkspaceRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	searchLogRepo := repository.NewSearchLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	if cfg.InitWorkspaceName != "" {
		if err := bootstrapInitialWorkspace(ctx, cfg, workspaceRepo, apiKeyRepo); err != nil {
			return fmt.Errorf("failed to bootstrap initial workspace: %w", err)
		}
	}

	storageClient, err := setupStorage(ctx, cfg)
	if err != nil {
		return err
	}

	// Embeddings and chat share one OpenAI client. Without credentials the
	// server still runs: search falls back to keyword matching and chat
	// requests are rejected by the conversation service.
	var (
		embeddingClient service.EmbeddingClient
		chatClient      service.ChatClient
		embeddingWorker *jobs.Worker
	)
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
			MaxAttempts:         cfg.EmbeddingAttempts,
			RetryBackoff:        cfg.EmbeddingBackoff,
			RequestTimeout:      cfg.EmbeddingTimeout,
		})
		embeddingClient = client
		chatClient = client

		embeddingSvc := service.NewEmbeddingService(embeddingClient, itemRepo)
		processor := jobs.NewEmbeddingWorker(embeddingJobRepo, embeddingSvc)
		embeddingWorker = jobs.NewWorker(processor, workerPollInterval)
		go embeddingWorker.Start(ctx)
		log.Println("embedding worker started")
	}

	itemSvc := service.NewItemServiceWithTx(itemRepo, embeddingJobRepo, embeddingClient, txRunner)
	searchSvc := service.NewSearchServiceWithLog(itemRepo, embeddingClient, searchLogRepo)
	conversationSvc := service.NewConversationService(conversationRepo, messageRepo, chatClient, searchSvc)
	authSvc := service.NewAuthService(workspaceRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	fileHandler := handlers.NewFileHandler(&noOpFileService{})
	if storageClient != nil {
		fileHandler = handlers.NewFileHandler(service.NewFileService(storageClient, itemSvc))
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       authSvc,
		ItemHandler:         handlers.NewItemHandler(itemSvc),
		SearchHandler:       handlers.NewSearchHandler(searchSvc),
		ConversationHandler: handlers.NewConversationHandler(conversationSvc),
		FileHandler:         fileHandler,
		AuthHandler:         handlers.NewAuthHandler(authSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if embeddingWorker != nil {
		embeddingWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// setupTelemetry wires Sentry when SENTRY_DSN is present. It returns a flush
// function, or nil when telemetry is disabled or failed to start.
func setupTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	// Sample every trace in development, one in ten elsewhere.
	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return nil
	}
	return shutdown
}

// setupStorage builds the S3 client when credentials are configured. A nil
// client is not an error: file endpoints then answer with a clear message.
func setupStorage(ctx context.Context, cfg *config.Config) (service.StorageClientInterface, error) {
	if !cfg.HasS3() {
		return nil, nil
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)

	return &s3StorageAdapter{client: s3Client}, nil
}

// s3StorageAdapter narrows *storage.S3Client to the interface the file
// service consumes.
type s3StorageAdapter struct {
	client *storage.S3Client
}

func (a *s3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *s3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *s3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
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

var errStorageNotConfigured = errors.New("file service not configured: S3_ENDPOINT required")

// noOpFileService stands in for the file service when object storage is not
// configured, so the routes exist but always fail with a useful message.
type noOpFileService struct{}

func (s *noOpFileService) InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error) {
	return nil, errStorageNotConfigured
}

func (s *noOpFileService) CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Item, error) {
	return nil, errStorageNotConfigured
}

func (s *noOpFileService) GetDownloadURL(ctx context.Context, itemID string) (string, error) {
	return "", errStorageNotConfigured
}

func (s *noOpFileService) Delete(ctx context.Context, itemID string) error {
	return errStorageNotConfigured
}

func bootstrapInitialWorkspace(ctx context.Context, cfg *config.Config, workspaceRepo *repository.WorkspaceRepository, apiKeyRepo *repository.APIKeyRepository) error {
	workspace, err := workspaceRepo.GetByName(ctx, cfg.InitWorkspaceName)
	if err != nil && !errors.Is(err, domain.ErrWorkspaceNotFound) {
		return fmt.Errorf("failed to check existing workspace: %w", err)
	}

	authSvc := service.NewAuthService(workspaceRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	if workspace == nil {
		workspace, err = authSvc.CreateWorkspace(ctx, cfg.InitWorkspaceName)
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}
		log.Printf("bootstrap: created workspace '%s' (id: %s)", workspace.Name, workspace.ID)
	} else {
		log.Printf("bootstrap: workspace '%s' already exists (id: %s)", workspace.Name, workspace.ID)
	}

	if cfg.InitAPIKey == "" {
		return nil
	}

	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid QUILL_INIT_API_KEY format (expected 'qll_<64 hex chars>')")
	}

	if existing, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey); err == nil && existing != nil {
		log.Printf("bootstrap: API key already exists (id: %s)", existing.ID)
		return nil
	}

	if err := authSvc.CreateAPIKeyWithToken(ctx, workspace.ID, "bootstrap", cfg.InitAPIKey); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	log.Printf("bootstrap: created API key")

	return nil
}

// applyMigrations brings the schema to the latest version using the bundled
// migration files. golang-migrate needs database/sql, so a short-lived pgx
// stdlib connection is opened just for this step.
func applyMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("migrations: database is up to date (no migrations applied)")
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	default:
		log.Printf("migrations: database at version %d", version)
	}

	return nil
}
