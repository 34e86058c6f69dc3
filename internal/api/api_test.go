package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediai-backend/internal/auth"
	"mediai-backend/internal/cache"
	"mediai-backend/internal/database"
	"mediai-backend/internal/messaging"
	"mediai-backend/pkg/api"
)

type testEnv struct {
	db      *gorm.DB
	queue   *messaging.InMemoryQueue
	cache   cache.ResultCache
	manager *auth.JWTManager
	router  chi.Router
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.User{},
		&database.FicheConsultation{},
		&database.Conversation{},
		&database.Message{},
		&database.AnalysisTask{},
	))

	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	resultCache := cache.NewInMemoryCache()
	manager := auth.NewJWTManager("test-signing-key")

	redisServer := miniredis.RunT(t)
	limiter := auth.NewRateLimiter(redis.NewClient(&redis.Options{Addr: redisServer.Addr()}))

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewAuthService(db, manager).AddRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(manager))
			NewAnalysisService(db, resultCache, queue).AddRoutes(r, limiter)
			NewFicheService(db, queue).AddRoutes(r)
			NewConversationService(db).AddRoutes(r)
		})
	})

	return &testEnv{db: db, queue: queue, cache: resultCache, manager: manager, router: router}
}

func (env *testEnv) createUser(t *testing.T, username, role string) (database.User, string) {
	hash, err := auth.HashPassword("motdepasse")
	require.NoError(t, err)

	user := database.User{
		Id:           uuid.New(),
		Username:     username,
		Email:        username + "@mediai.cd",
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, env.db.Create(&user).Error)

	token, err := env.manager.IssueToken(user.Id, user.Username, user.Role)
	require.NoError(t, err)
	return user, token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var data T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&data))
	return data
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Username: "dr.kabongo",
		Email:    "kabongo@mediai.cd",
		Password: "motdepasse",
		Role:     "medecin",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decodeBody[api.LoginResponse](t, rec)
	assert.NotEmpty(t, registered.AccessToken)
	assert.Equal(t, "medecin", registered.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Username: "dr.kabongo",
		Password: "motdepasse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	logged := decodeBody[api.LoginResponse](t, rec)
	assert.Equal(t, registered.UserId, logged.UserId)

	user, err := env.manager.VerifyToken(logged.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "medecin", user.Role)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Username: "x",
		Email:    "x@mediai.cd",
		Password: "pw",
		Role:     "wizard",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "dr.kabongo", database.RoleMedecin)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Username: "dr.kabongo",
		Email:    "autre@mediai.cd",
		Password: "pw",
		Role:     "medecin",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "dr.kabongo", database.RoleMedecin)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Username: "dr.kabongo",
		Password: "faux",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEndpointsRequireAuthentication(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/fiches/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ia/analyse/", "", api.StartAnalyseRequest{Symptomes: "fièvre"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
