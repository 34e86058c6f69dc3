package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	manager := NewJWTManager("key")
	handler, called := okHandler()

	rec := httptest.NewRecorder()
	Middleware(manager)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	manager := NewJWTManager("key")
	handler, called := okHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")

	rec := httptest.NewRecorder()
	Middleware(manager)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}

func TestMiddlewareAttachesUserContext(t *testing.T) {
	manager := NewJWTManager("key")
	userId := uuid.New()

	token, err := manager.IssueToken(userId, "dr.kabongo", "medecin")
	require.NoError(t, err)

	var seen *UserContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	Middleware(manager)(handler).ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, userId, seen.UserId)
	assert.Equal(t, "medecin", seen.Role)
}

func TestRequireRole(t *testing.T) {
	handler, called := okHandler()
	guarded := RequireRole("medecin", "admin")(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &UserContext{UserId: uuid.New(), Role: "patient"}))
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, *called)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &UserContext{UserId: uuid.New(), Role: "medecin"}))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *called)
}

func TestRequireRoleWithoutUser(t *testing.T) {
	handler, called := okHandler()
	guarded := RequireRole("medecin")(handler)

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *called)
}
