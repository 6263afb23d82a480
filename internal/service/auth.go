package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
)

// API keys look like qll_<64 hex chars>. Only the SHA-256 of the token is
// stored, so a key can never be shown again after creation.
const (
	apiKeyPrefix   = "qll_"
	apiKeyHexChars = 64
)

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *domain.Workspace) error
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	GetByName(ctx context.Context, name string) (*domain.Workspace, error)
	List(ctx context.Context) ([]*domain.Workspace, error)
	Delete(ctx context.Context, id string) error
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AuthService manages workspaces and the API keys scoped to them.
type AuthService struct {
	workspaceRepo WorkspaceRepository
	keyRepo       APIKeyRepository
	uuidGen       UUIDGenerator
}

func NewAuthService(workspaceRepo WorkspaceRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		workspaceRepo: workspaceRepo,
		keyRepo:       keyRepo,
		uuidGen:       uuidGen,
	}
}

func (s *AuthService) CreateWorkspace(ctx context.Context, name string) (*domain.Workspace, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace name is required")
	}

	workspace := domain.NewWorkspace(s.uuidGen.NewString(), name, time.Now().UTC())
	if err := domain.ValidateWorkspace(workspace); err != nil {
		return nil, err
	}
	if err := s.workspaceRepo.Create(ctx, workspace); err != nil {
		return nil, err
	}
	return workspace, nil
}

func (s *AuthService) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	return s.workspaceRepo.GetByID(ctx, id)
}

func (s *AuthService) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	return s.workspaceRepo.List(ctx)
}

// CreateAPIKey mints a fresh token for the workspace and returns the
// plaintext. The caller is the only party that will ever see it.
func (s *AuthService) CreateAPIKey(ctx context.Context, workspaceID, name string) (string, error) {
	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	if err := s.storeAPIKey(ctx, workspaceID, name, token); err != nil {
		return "", err
	}
	return token, nil
}

// CreateAPIKeyWithToken registers a caller-supplied token. Used by bootstrap
// flows that need a deterministic key.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, workspaceID, name, token string) error {
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected qll_<64 hex chars>)")
	}
	return s.storeAPIKey(ctx, workspaceID, name, token)
}

// storeAPIKey validates the inputs, confirms the workspace exists and
// persists the hashed token.
func (s *AuthService) storeAPIKey(ctx context.Context, workspaceID, name, token string) error {
	if workspaceID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	if name == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}

	if _, err := s.workspaceRepo.GetByID(ctx, workspaceID); err != nil {
		return err
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), workspaceID, name, hashToken(token), time.Now().UTC(), nil)
	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}
	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to the workspace it belongs to.
// Unknown and malformed tokens both come back as ErrInvalidAPIKey so a
// caller cannot distinguish between the two.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}

	if key.IsRevoked() {
		return "", domain.ErrAPIKeyRevoked
	}
	return key.WorkspaceID, nil
}

// GetAPIKeyByHash looks up an API key by its plaintext token. Bootstrap uses
// this to keep startup idempotent.
func (s *AuthService) GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error) {
	return s.keyRepo.GetByHash(ctx, hashToken(token))
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}
	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, workspaceID string) ([]*domain.APIKey, error) {
	if workspaceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "workspace ID is required")
	}
	return s.keyRepo.GetByWorkspaceID(ctx, workspaceID)
}

func generateAPIToken() (string, error) {
	raw := make([]byte, apiKeyHexChars/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsValidAPIToken reports whether token has the qll_<64 hex chars> shape.
func IsValidAPIToken(token string) bool {
	hexPart, ok := strings.CutPrefix(token, apiKeyPrefix)
	if !ok || len(hexPart) != apiKeyHexChars {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}
