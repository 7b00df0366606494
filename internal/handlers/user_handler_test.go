package handlers_test

import (
	"bytes"
	"encoding/json"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/mpetrenko/auth-backend/internal/avatar"
	"github.com/mpetrenko/auth-backend/internal/config"
	"github.com/mpetrenko/auth-backend/internal/handlers"
	"github.com/mpetrenko/auth-backend/internal/models"
	"github.com/mpetrenko/auth-backend/internal/repository"
	"github.com/mpetrenko/auth-backend/internal/routes"
	"github.com/mpetrenko/auth-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sentMail struct {
	to    string
	token string
}

type stubMailer struct {
	sent []sentMail
}

func (m *stubMailer) SendVerification(to, token string) error {
	m.sent = append(m.sent, sentMail{to: to, token: token})
	return nil
}

type testEnv struct {
	app        *fiber.App
	repo       *repository.Users
	mailer     *stubMailer
	avatarsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	cfg := &config.Config{
		JWTSecret:  "testsecret",
		TokenTTL:   24 * time.Hour,
		TempDir:    t.TempDir(),
		AvatarsDir: filepath.Join(t.TempDir(), "avatars"),
	}

	repo := repository.NewUsers(db)
	mailer := &stubMailer{}
	ingestor := avatar.NewIngestor(cfg.TempDir, cfg.AvatarsDir)
	userService := services.NewUserService(repo, mailer, cfg)

	app := fiber.New(fiber.Config{
		BodyLimit:    5 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})
	routes.Setup(app, cfg, repo, handlers.NewUserHandler(userService, ingestor), handlers.NewHealthHandler(db))

	return &testEnv{app: app, repo: repo, mailer: mailer, avatarsDir: cfg.AvatarsDir}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, headers ...map[string]string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	applyHeaders(req, headers)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path string, headers ...map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	applyHeaders(req, headers)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func applyHeaders(req *http.Request, headers []map[string]string) {
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(300, 200, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, fileContent []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("avatarURL", fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAuthFlow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	// Register
	resp := env.postJSON(t, "/api/users/register", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "a@x.com", body["email"])
	assert.Equal(t, "starter", body["subscription"])
	assert.Contains(t, body["avatarURL"], "gravatar.com/avatar/")

	// Duplicate registration conflicts
	resp = env.postJSON(t, "/api/users/register", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "a@x.com already in use", decode(t, resp)["message"])

	// Login before verification is rejected, naming the cause
	resp = env.postJSON(t, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Email not verified", decode(t, resp)["message"])

	// Verify via the emailed token
	require.Len(t, env.mailer.sent, 1)
	token := env.mailer.sent[0].token
	resp = env.do(t, http.MethodGet, "/api/users/verify/"+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Verification successful", decode(t, resp)["message"])

	// The verification token is single-use
	resp = env.do(t, http.MethodGet, "/api/users/verify/"+token)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown email and wrong password are indistinguishable
	respUnknown := env.postJSON(t, "/api/users/login", map[string]string{
		"email": "b@x.com", "password": "secret1",
	})
	respWrongPw := env.postJSON(t, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "wrong12",
	})
	require.Equal(t, http.StatusUnauthorized, respUnknown.StatusCode)
	require.Equal(t, http.StatusUnauthorized, respWrongPw.StatusCode)
	assert.Equal(t, decode(t, respUnknown)["message"], decode(t, respWrongPw)["message"])

	// Login
	resp = env.postJSON(t, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode(t, resp)
	bearerToken, _ := login["token"].(string)
	require.NotEmpty(t, bearerToken)

	// Current identity
	resp = env.do(t, http.MethodGet, "/api/users/current", bearer(bearerToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a@x.com", decode(t, resp)["email"])

	// Logout
	resp = env.do(t, http.MethodPost, "/api/users/logout", bearer(bearerToken))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The invalidated token no longer works, even though it has not expired
	resp = env.do(t, http.MethodGet, "/api/users/current", bearer(bearerToken))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	// Empty body
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Schema violations
	for _, body := range []map[string]string{
		{"password": "secret1"},
		{"email": "a@x.com"},
		{"email": "not-an-email", "password": "secret1"},
		{"email": "a@x.com", "password": "abc"},
	} {
		resp := env.postJSON(t, "/api/users/register", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/users/verify", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.postJSON(t, "/api/users/register", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})

	resp = env.postJSON(t, "/api/users/verify", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Verification email sent", decode(t, resp)["message"])

	// Same token in both mails
	require.Len(t, env.mailer.sent, 2)
	assert.Equal(t, env.mailer.sent[0].token, env.mailer.sent[1].token)

	env.do(t, http.MethodGet, "/api/users/verify/"+env.mailer.sent[0].token)

	resp = env.postJSON(t, "/api/users/verify", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Verification has already been passed", decode(t, resp)["message"])
}

func TestSessionRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/current"},
		{http.MethodPost, "/api/users/logout"},
		{http.MethodPatch, "/api/users/avatars"},
	} {
		resp := env.do(t, rt.method, rt.path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, rt.path)

		resp = env.do(t, rt.method, rt.path, bearer("garbage"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, rt.path)
	}
}

func TestAvatarUpload(t *testing.T) {
	env := newTestEnv(t)
	png := pngBytes(t)

	// Register with an uploaded avatar instead of the gravatar default
	body, contentType := multipartBody(t, map[string]string{
		"email": "a@x.com", "password": "secret1",
	}, "me.png", png)
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	registered := decode(t, resp)
	avatarURL, _ := registered["avatarURL"].(string)
	assert.True(t, strings.HasPrefix(avatarURL, "avatars/"), avatarURL)
	assert.NotContains(t, avatarURL, "gravatar")

	// The stored file was normalized to the fixed square
	stored := filepath.Join(env.avatarsDir, strings.TrimPrefix(avatarURL, "avatars/"))
	img, err := imaging.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())

	// Verify + login to reach the protected avatar update
	require.NotEmpty(t, env.mailer.sent)
	env.do(t, http.MethodGet, "/api/users/verify/"+env.mailer.sent[0].token)
	loginResp := env.postJSON(t, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	token, _ := decode(t, loginResp)["token"].(string)

	// Update overwrites and returns the new path
	body, contentType = multipartBody(t, nil, "next.png", png)
	req = httptest.NewRequest(http.MethodPatch, "/api/users/avatars", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updatedURL, _ := decode(t, resp)["avatarURL"].(string)
	assert.True(t, strings.HasPrefix(updatedURL, "avatars/"), updatedURL)
	assert.NotEqual(t, avatarURL, updatedURL)

	_, err = os.Stat(filepath.Join(env.avatarsDir, strings.TrimPrefix(updatedURL, "avatars/")))
	assert.NoError(t, err)
}

func TestAvatarUpload_RejectsExeExtension(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{
		"email": "a@x.com", "password": "secret1",
	}, "payload.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}
