package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	"github.com/mbt1/LanguageLearnApp/internal/config"
	httpserver "github.com/mbt1/LanguageLearnApp/internal/http_server"
	"github.com/mbt1/LanguageLearnApp/internal/lib/cookies"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys/challenge"
	"github.com/mbt1/LanguageLearnApp/internal/session"
	"github.com/mbt1/LanguageLearnApp/internal/storage/memory"
)

const allowedOrigin = "http://localhost:5173"

type mailerRecorder struct {
	links []string
}

func (m *mailerRecorder) SendVerificationEmail(_ context.Context, _, link string) error {
	m.links = append(m.links, link)
	return nil
}

func (m *mailerRecorder) lastToken(t *testing.T) string {
	t.Helper()

	require.NotEmpty(t, m.links)

	_, token, ok := strings.Cut(m.links[len(m.links)-1], "token=")
	require.True(t, ok)

	return token
}

type testEnv struct {
	router http.Handler
	repo   *memory.MemoryRepo
	mailer *mailerRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Tokens: config.Tokens{
			Secret:               "test-secret",
			Algorithm:            "HS256",
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      7 * 24 * time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			BcryptCost:           bcrypt.MinCost,
		},
		WebAuthn: config.WebAuthn{
			RPID:           "localhost",
			RPName:         "LanguageLearn",
			RPOrigin:       allowedOrigin,
			ChallengeTTL:   5 * time.Minute,
			AllowedOrigins: []string{allowedOrigin},
		},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	mailer := &mailerRecorder{}
	issuer := session.NewIssuer(cfg.Tokens.Secret, cfg.Tokens.Algorithm, cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL)

	authService, err := auth.New(log, repo, issuer, mailer, cfg.Tokens.BcryptCost, cfg.Tokens.VerificationTokenTTL, cfg.WebAuthn.RPOrigin)
	require.NoError(t, err)

	web, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPName,
		RPOrigins:     []string{cfg.WebAuthn.RPOrigin},
	})
	require.NoError(t, err)

	passkeyService := passkeys.New(log, repo, web, challenge.New(cfg.WebAuthn.ChallengeTTL), issuer)

	return &testEnv{
		router: httpserver.NewRouter(log, cfg, authService, passkeyService),
		repo:   repo,
		mailer: mailer,
	}
}

func (e *testEnv) do(method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, mod := range mods {
		mod(req)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	return rr
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withRefreshCookie(value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookies.RefreshCookie, Value: value})
	}
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rr.Result().Cookies() {
		if c.Name == cookies.RefreshCookie {
			return c
		}
	}

	t.Fatalf("no %s cookie in response", cookies.RefreshCookie)
	return nil
}

func (e *testEnv) register(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()

	rr := e.do(http.MethodPost, "/v1/auth/register",
		`{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	return body.AccessToken, refreshCookie(t, rr).Value
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/auth/register",
		`{"email":"anna@example.com","password":"password123","display_name":"Anna"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var body struct {
		Status      string    `json:"status"`
		UserID      uuid.UUID `json:"user_id"`
		Email       string    `json:"email"`
		AccessToken string    `json:"access_token"`
		Message     string    `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, "ok", body.Status)
	assert.NotEqual(t, uuid.Nil, body.UserID)
	assert.Equal(t, "anna@example.com", body.Email)
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "Verification email sent", body.Message)

	cookie := refreshCookie(t, rr)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/v1/auth", cookie.Path)

	// Follow the emailed link.
	token := env.mailer.lastToken(t)
	rr = env.do(http.MethodGet, "/v1/auth/verify-email?token="+token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email verified successfully")

	// A consumed token is indistinguishable from one that never existed.
	rr = env.do(http.MethodGet, "/v1/auth/verify-email?token="+token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"anna@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email_verified":true`)
}

func TestRegister_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not an email", `{"email":"not-an-email","password":"password123"}`, http.StatusUnprocessableEntity},
		{"short password", `{"email":"anna@example.com","password":"short"}`, http.StatusUnprocessableEntity},
		{"missing password", `{"email":"anna@example.com"}`, http.StatusUnprocessableEntity},
		{"not json", `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/v1/auth/register", tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestLogin_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not an email", `{"email":"not-an-email","password":"password123"}`, http.StatusUnprocessableEntity},
		{"missing password", `{"email":"anna@example.com"}`, http.StatusUnprocessableEntity},
		{"not json", `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/v1/auth/login", tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "anna@example.com", "password123")

	rr := env.do(http.MethodPost, "/v1/auth/register",
		`{"email":"anna@example.com","password":"password456"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email already registered")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "anna@example.com", "password123")

	wrongPassword := env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"anna@example.com","password":"password124"}`)
	unknownEmail := env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"nobody@example.com","password":"password123"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)

	// The two failures must not be tellable apart.
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.Contains(t, wrongPassword.Body.String(), "Invalid email or password")
}

func TestRefresh_Rotation(t *testing.T) {
	env := newTestEnv(t)
	_, first := env.register(t, "anna@example.com", "password123")

	rr := env.do(http.MethodPost, "/v1/auth/refresh", "", withRefreshCookie(first))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "access_token")

	second := refreshCookie(t, rr)
	assert.NotEqual(t, first, second.Value)

	// The first token was rotated out; replaying it clears the cookie.
	rr = env.do(http.MethodPost, "/v1/auth/refresh", "", withRefreshCookie(first))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid refresh token")
	assert.Negative(t, refreshCookie(t, rr).MaxAge)

	// The replacement still works.
	rr = env.do(http.MethodPost, "/v1/auth/refresh", "", withRefreshCookie(second.Value))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRefresh_NoCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "No refresh token")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	_, refresh := env.register(t, "anna@example.com", "password123")

	rr := env.do(http.MethodPost, "/v1/auth/logout", "", withRefreshCookie(refresh))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Negative(t, refreshCookie(t, rr).MaxAge)

	rr = env.do(http.MethodPost, "/v1/auth/refresh", "", withRefreshCookie(refresh))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Logout without a cookie still succeeds.
	rr = env.do(http.MethodPost, "/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/auth/resend-verification", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	access, _ := env.register(t, "anna@example.com", "password123")

	rr = env.do(http.MethodPost, "/v1/auth/resend-verification", "", withBearer(access))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Len(t, env.mailer.links, 2)

	// Verify, log in again for a token with the verified claim, resend.
	rr = env.do(http.MethodGet, "/v1/auth/verify-email?token="+env.mailer.lastToken(t), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"anna@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	rr = env.do(http.MethodPost, "/v1/auth/resend-verification", "", withBearer(body.AccessToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email already verified")
}

func TestCrossOriginRejected(t *testing.T) {
	env := newTestEnv(t)

	foreign := func(r *http.Request) { r.Header.Set("Origin", "https://evil.example.com") }

	rr := env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"anna@example.com","password":"password123"}`, foreign)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "CSRF validation failed")

	// Safe methods pass regardless of Origin.
	rr = env.do(http.MethodGet, "/v1/auth/verify-email", "", foreign)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The allow-listed origin passes.
	sameOrigin := func(r *http.Request) { r.Header.Set("Origin", allowedOrigin) }
	rr = env.do(http.MethodPost, "/v1/auth/login",
		`{"email":"anna@example.com","password":"password123"}`, sameOrigin)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPasskeyAuthenticationOptions_NoAccountLeak(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "no-passkeys@example.com", "password123")

	known := env.do(http.MethodPost, "/v1/auth/passkeys/authenticate/options",
		`{"email":"no-passkeys@example.com"}`)
	unknown := env.do(http.MethodPost, "/v1/auth/passkeys/authenticate/options",
		`{"email":"nobody@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, known.Code)
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestPasskeyEndpoints_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/auth/passkeys/register/options"},
		{http.MethodPost, "/v1/auth/passkeys/register/verify"},
		{http.MethodGet, "/v1/auth/passkeys"},
		{http.MethodDelete, "/v1/auth/passkeys/" + uuid.NewString()},
	}

	for _, p := range paths {
		rr := env.do(p.method, p.path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", p.method, p.path)
	}
}

func TestPasskeyManagement(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.register(t, "anna@example.com", "password123")

	rr := env.do(http.MethodGet, "/v1/auth/passkeys", "", withBearer(access))
	require.Equal(t, http.StatusOK, rr.Code)

	var list struct {
		Passkeys []json.RawMessage `json:"passkeys"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Empty(t, list.Passkeys)

	rr = env.do(http.MethodPost, "/v1/auth/passkeys/register/options", "", withBearer(access))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "challenge")

	// Nonexistent and unparsable ids both read as not found.
	rr = env.do(http.MethodDelete, "/v1/auth/passkeys/"+uuid.NewString(), "", withBearer(access))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodDelete, "/v1/auth/passkeys/not-a-uuid", "", withBearer(access))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
