package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const validToken = "qll_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

// callAuth runs a request with the given Authorization header through
// APIKeyAuth. It returns the recorder and the workspace id the inner handler
// observed; handlerCalled tracks whether the request got through.
func callAuth(t *testing.T, validator *MockAuthValidator, authHeader string) (*httptest.ResponseRecorder, string, bool) {
	t.Helper()

	var wsID string
	handlerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		wsID = GetWorkspaceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	APIKeyAuth(validator)(inner).ServeHTTP(w, req)
	return w, wsID, handlerCalled
}

func TestAPIKeyAuth_ValidToken(t *testing.T) {
	validator := new(MockAuthValidator)
	validator.On("ValidateAPIKey", mock.Anything, validToken).Return("ws-789", nil)

	w, wsID, called := callAuth(t, validator, "Bearer "+validToken)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
	assert.Equal(t, "ws-789", wsID)
	validator.AssertExpectations(t)
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	w, _, called := callAuth(t, new(MockAuthValidator), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAPIKeyAuth_NotBearer(t *testing.T) {
	w, _, called := callAuth(t, new(MockAuthValidator), "Basic abc123")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestAPIKeyAuth_ValidationFails(t *testing.T) {
	badToken := "qll_badtoken0123456789abcdef0123456789abcdef0123456789abcdef01234"
	validator := new(MockAuthValidator)
	validator.On("ValidateAPIKey", mock.Anything, badToken).Return("", errors.New("invalid key"))

	w, _, called := callAuth(t, validator, "Bearer "+badToken)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
	assert.Contains(t, w.Body.String(), "invalid api key")
	validator.AssertExpectations(t)
}

func TestGetWorkspaceID(t *testing.T) {
	ctx := context.WithValue(context.Background(), WorkspaceIDKey, "ws-123")
	assert.Equal(t, "ws-123", GetWorkspaceID(ctx))
	assert.Equal(t, "", GetWorkspaceID(context.Background()))
}
