package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/blob"
	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

type testAPI struct {
	router *gin.Engine
	users  *users.Service
	auth   *auth.Service
	sender *mail.CaptureSender
	blobs  *blob.InMemoryStorage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithFactory(t, kvstore.NewInMemoryFactory())
}

func newTestAPIWithFactory(t *testing.T, factory kvstore.Factory) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.SessionSecret = "test-session-secret"
	cfg.ResetEmailBody = "code={reset_code}"
	logger := logging.NewDefault()
	userSvc := users.NewService(factory)
	sender := mail.NewCaptureSender()
	authSvc := auth.NewService(userSvc, factory, sender, logger, cfg)
	blobs := blob.NewInMemoryStorage()
	manager := session.NewManager(factory, blobs, authSvc, logger, cfg)

	return &testAPI{
		router: NewServer(authSvc, userSvc, manager, logger).Router(),
		users:  userSvc,
		auth:   authSvc,
		sender: sender,
		blobs:  blobs,
	}
}

func (a *testAPI) doJSON(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) registerUser(t *testing.T, username, password string, roles []string) {
	t.Helper()
	err := a.users.Register(context.Background(), &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Roles:    roles,
	})
	require.NoError(t, err)
}

func (a *testAPI) loginUser(t *testing.T, username, password string) models.TokenPair {
	t.Helper()
	rec := a.doJSON(t, http.MethodPost, "/api/login", gin.H{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", []string{"user"})

	pair := api.loginUser(t, "alice", "password1")
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	rec := api.doJSON(t, http.MethodPost, "/api/login", gin.H{"username": "alice", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.doJSON(t, http.MethodPost, "/api/login", gin.H{"username": "alice"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginAcceptsFormData(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", nil)

	form := url.Values{"username": {"alice"}, "password": {"password1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenRefresh(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", nil)
	pair := api.loginUser(t, "alice", "password1")

	rec := api.doJSON(t, http.MethodPost, "/api/token-refresh", nil, pair.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fresh models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	assert.NotEmpty(t, fresh.AccessToken)

	// the consumed token is rejected on replay
	rec = api.doJSON(t, http.MethodPost, "/api/token-refresh", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// no token at all
	rec = api.doJSON(t, http.MethodPost, "/api/token-refresh", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", nil)
	pair := api.loginUser(t, "alice", "password1")

	rec := api.doJSON(t, http.MethodPost, "/api/logout", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.doJSON(t, http.MethodPost, "/api/logout", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the revoked token can no longer be refreshed
	rec = api.doJSON(t, http.MethodPost, "/api/token-refresh", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", nil)
	pair := api.loginUser(t, "alice", "password1")

	rec := api.doJSON(t, http.MethodPost, "/api/change-password",
		gin.H{"old_password": "wrong", "new_password": "password2"}, pair.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.doJSON(t, http.MethodPost, "/api/change-password",
		gin.H{"old_password": "password1", "new_password": "password2"}, pair.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	api.loginUser(t, "alice", "password2")

	// no token
	rec = api.doJSON(t, http.MethodPost, "/api/change-password",
		gin.H{"old_password": "password2", "new_password": "password3"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "alice", "password1", nil)

	rec := api.doJSON(t, http.MethodPost, "/api/reset-password-request", gin.H{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "check your email")

	rec = api.doJSON(t, http.MethodPost, "/api/reset-password-request", gin.H{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	msg, ok := api.sender.Last()
	require.True(t, ok)
	code := strings.TrimPrefix(msg.Body, "code=")

	rec = api.doJSON(t, http.MethodPost, "/api/reset-password",
		gin.H{"email": "alice@example.com", "reset_code": "bogus", "new_password": "password2"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.doJSON(t, http.MethodPost, "/api/reset-password",
		gin.H{"email": "alice@example.com", "reset_code": code, "new_password": "password2"}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	api.loginUser(t, "alice", "password2")
}

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	rec := api.doJSON(t, http.MethodPost, "/api/register",
		gin.H{"username": "bob", "email": "bob@example.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hashed_password")

	api.loginUser(t, "bob", "secret123")

	// duplicate username
	rec = api.doJSON(t, http.MethodPost, "/api/register",
		gin.H{"username": "bob", "password": "other"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsPathLikeUsername(t *testing.T) {
	root := t.TempDir()
	api := newTestAPIWithFactory(t, kvstore.NewLocalFactory(filepath.Join(root, "data"), 0))

	for _, username := range []string{"../../owned", "a/b"} {
		rec := api.doJSON(t, http.MethodPost, "/api/register",
			gin.H{"username": username, "password": "secret123"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}

	// no record file escaped the data dir
	_, err := os.Stat(filepath.Join(root, "owned.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAdminGuard(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "admin", "adminpass", []string{"admin"})
	api.registerUser(t, "alice", "password1", []string{"user"})

	rec := api.doJSON(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	alice := api.loginUser(t, "alice", "password1")
	rec = api.doJSON(t, http.MethodGet, "/api/users", nil, alice.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := api.loginUser(t, "admin", "adminpass")
	rec = api.doJSON(t, http.MethodGet, "/api/users", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var headers []models.Header
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &headers))
	assert.Len(t, headers, 2)
}

func TestUserAdminCRUD(t *testing.T) {
	api := newTestAPI(t)
	api.registerUser(t, "admin", "adminpass", []string{"admin"})
	api.registerUser(t, "alice", "password1", []string{"user"})
	admin := api.loginUser(t, "admin", "adminpass")

	rec := api.doJSON(t, http.MethodGet, "/api/users/alice", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")

	// update without a password keeps the stored hash
	rec = api.doJSON(t, http.MethodPut, "/api/users/alice",
		gin.H{"email": "alice@new.example.com", "roles": []string{"user", "editor"}}, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	api.loginUser(t, "alice", "password1")

	rec = api.doJSON(t, http.MethodDelete, "/api/users/alice", nil, admin.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.doJSON(t, http.MethodGet, "/api/users/alice", nil, admin.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.doJSON(t, http.MethodDelete, "/api/users/alice", nil, admin.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestSessionFiles(t *testing.T) {
	api := newTestAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/session/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, api.blobs.Len())

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	// the file can be removed through the same session
	req = httptest.NewRequest(http.MethodDelete, "/api/session/files/notes.txt", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, api.blobs.Len())

	req = httptest.NewRequest(http.MethodDelete, "/api/session/files/notes.txt", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionLogoutCascades(t *testing.T) {
	api := newTestAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/session/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	require.Equal(t, 1, api.blobs.Len())

	req = httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, api.blobs.Len())

	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// the old cookie no longer resolves
	req = httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
