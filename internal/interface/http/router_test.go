package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/todoauth/internal/domain/auth"
	"github.com/yanqian/todoauth/internal/infra/config"
	"github.com/yanqian/todoauth/internal/infra/ratelimit"
	"github.com/yanqian/todoauth/internal/infra/userrepo"
	"github.com/yanqian/todoauth/pkg/metrics"
)

type testEnv struct {
	server   *http.Server
	svc      auth.Service
	repo     *userrepo.MemoryRepository
	provider *stubProvider
	registry *prometheus.Registry
}

type envOption func(*config.Config, *testEnvDeps)

type testEnvDeps struct {
	limiter ratelimit.Limiter
}

func withProduction() envOption {
	return func(cfg *config.Config, _ *testEnvDeps) { cfg.Env = config.EnvProduction }
}

func withLimiter(l ratelimit.Limiter) envOption {
	return func(_ *config.Config, deps *testEnvDeps) { deps.limiter = l }
}

func withTrustedProxies(proxies ...string) envOption {
	return func(cfg *config.Config, _ *testEnvDeps) { cfg.HTTP.TrustedProxies = proxies }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Env: config.EnvDevelopment,
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Auth: config.AuthConfig{
			AccessSecret:       "access-secret",
			RefreshSecret:      "refresh-secret",
			SuccessRedirectURL: "http://localhost:5173/",
			FailureRedirectURL: "/auth/login-failure",
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	deps := &testEnvDeps{}
	for _, opt := range opts {
		opt(cfg, deps)
	}

	codec, err := auth.NewTokenCodec(auth.Config{AccessSecret: cfg.Auth.AccessSecret, RefreshSecret: cfg.Auth.RefreshSecret}, nil)
	require.NoError(t, err)
	registry := prometheus.NewRegistry()
	m := metrics.NewAuth(registry)
	repo := userrepo.NewMemoryRepository()
	provider := &stubProvider{profile: auth.ProviderProfile{
		ExternalID: "google-7",
		Email:      "maria@gmail.com",
		Name:       "Maria Souza",
		PictureURL: "https://lh3.googleusercontent.com/a/p",
	}}
	logger := newTestLogger()
	svc := auth.NewService(codec, repo, provider, nil, m, logger)
	handler := NewHandler(cfg, svc, logger)
	return &testEnv{
		server:   NewRouter(cfg, handler, deps.limiter, registry, m, logger),
		svc:      svc,
		repo:     repo,
		provider: provider,
		registry: registry,
	}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, name, email string) (access, refresh *http.Cookie) {
	t.Helper()
	rec := e.do(http.MethodPost, "/auth/register", fmt.Sprintf(`{"name":%q,"email":%q,"password":"secret123"}`, name, email))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	access = cookieByName(rec, accessCookieName)
	refresh = cookieByName(rec, refreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func TestRouter_RegisterSetsBothCookies(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/auth/register", `{"name":"Ana Silva","email":"ana@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotContains(t, rec.Body.String(), "passwordHash")
	require.NotContains(t, rec.Body.String(), "secret123")
	var body struct {
		User auth.UserView `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ana@x.com", body.User.Email)
	require.Equal(t, auth.RoleUser, body.User.Role)

	access := cookieByName(rec, accessCookieName)
	require.NotNil(t, access)
	require.Equal(t, "/", access.Path)
	require.Equal(t, 900, access.MaxAge)
	require.True(t, access.HttpOnly)
	require.False(t, access.Secure)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := cookieByName(rec, refreshCookieName)
	require.NotNil(t, refresh)
	require.Equal(t, "/auth/refresh", refresh.Path)
	require.Equal(t, 604800, refresh.MaxAge)
	require.True(t, refresh.HttpOnly)
	require.NotEqual(t, access.Value, refresh.Value)
}

func TestRouter_RegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodPost, "/auth/register", `{"name":"Ana Again","email":"ana@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "conflict", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
	require.Nil(t, cookieByName(rec, accessCookieName))

	rec = env.do(http.MethodPost, "/auth/register", `{"name":"Bo","email":"bo@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/auth/register", `{"name":123}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_input", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func TestRouter_LoginFailuresLookTheSame(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Ana Silva", "ana@x.com")

	wrong := env.do(http.MethodPost, "/auth/login", `{"email":"ana@x.com","password":"wrong-pass"}`)
	unknown := env.do(http.MethodPost, "/auth/login", `{"email":"nobody@x.com","password":"wrong-pass"}`)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, decodeErrorBody(t, wrong.Body.Bytes()), decodeErrorBody(t, unknown.Body.Bytes()))
	require.Nil(t, cookieByName(wrong, accessCookieName))

	ok := env.do(http.MethodPost, "/auth/login", `{"email":"ANA@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, ok.Code)
	require.NotNil(t, cookieByName(ok, accessCookieName))
	require.NotNil(t, cookieByName(ok, refreshCookieName))
}

func TestRouter_RefreshIssuesOnlyAccessCookie(t *testing.T) {
	env := newTestEnv(t)
	access, refresh := env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodPost, "/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	newAccess := cookieByName(rec, accessCookieName)
	require.NotNil(t, newAccess)
	require.NotEqual(t, access.Value, newAccess.Value)
	require.Nil(t, cookieByName(rec, refreshCookieName))

	me := env.do(http.MethodGet, "/auth/me", "", newAccess)
	require.Equal(t, http.StatusOK, me.Code)
}

func TestRouter_RefreshRejections(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodPost, "/auth/refresh", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	asRefresh := &http.Cookie{Name: refreshCookieName, Value: access.Value}
	rec = env.do(http.MethodPost, "/auth/refresh", "", asRefresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Result().Cookies())
}

func TestRouter_MeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	access, refresh := env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodGet, "/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Principal auth.Principal `json:"principal"`
		User      auth.UserView  `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, auth.RoleUser, body.Principal.Role)
	require.Equal(t, body.Principal.ID, body.User.ID)

	rec = env.do(http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/auth/me", "", refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "refresh cookie never authenticates")

	logout := env.do(http.MethodPost, "/auth/logout", "", access)
	require.Equal(t, http.StatusOK, logout.Code)
	clearedAccess := cookieByName(logout, accessCookieName)
	clearedRefresh := cookieByName(logout, refreshCookieName)
	require.NotNil(t, clearedAccess)
	require.NotNil(t, clearedRefresh)
	require.Empty(t, clearedAccess.Value)
	require.Equal(t, "/", clearedAccess.Path)
	require.Equal(t, "/auth/refresh", clearedRefresh.Path)
	require.Less(t, clearedAccess.MaxAge, 0)
	require.Less(t, clearedRefresh.MaxAge, 0)

	// A browser drops the cleared cookies, so the next request carries none.
	rec = env.do(http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_AdminGate(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthenticated", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = env.do(http.MethodGet, "/users", "", access)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	user, ok, err := env.repo.FindByEmail(context.Background(), "ana@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = env.svc.SetRole(context.Background(), user.ID, auth.RoleAdmin)
	require.NoError(t, err)

	// Same token, new role: the gate reads the role from the store.
	rec = env.do(http.MethodGet, "/users", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Users []auth.UserView `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
}

func TestRouter_SetRole(t *testing.T) {
	env := newTestEnv(t)
	adminAccess, _ := env.register(t, "Admin Person", "admin@x.com")
	userAccess, _ := env.register(t, "Regular Person", "user@x.com")

	admin, _, err := env.repo.FindByEmail(context.Background(), "admin@x.com")
	require.NoError(t, err)
	_, err = env.svc.SetRole(context.Background(), admin.ID, auth.RoleAdmin)
	require.NoError(t, err)
	target, _, err := env.repo.FindByEmail(context.Background(), "user@x.com")
	require.NoError(t, err)

	rec := env.do(http.MethodPatch, "/users/"+target.ID+"/role", `{"role":"admin"}`, userAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPatch, "/users/"+target.ID+"/role", `{"role":"root"}`, adminAccess)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPatch, "/users/missing/role", `{"role":"admin"}`, adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPatch, "/users/"+target.ID+"/role", `{"role":"admin"}`, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/users", "", userAccess)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_DeletedUserIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	codec, err := auth.NewTokenCodec(auth.Config{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"}, nil)
	require.NoError(t, err)
	token, err := codec.SignAccess(auth.PrincipalClaims{Subject: "ghost", Role: auth.RoleAdmin})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/users", "", &http.Cookie{Name: accessCookieName, Value: token})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ProductionPosture(t *testing.T) {
	env := newTestEnv(t, withProduction())
	rec := env.do(http.MethodPost, "/auth/register", `{"name":"Ana Silva","email":"ana@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	for _, name := range []string{accessCookieName, refreshCookieName} {
		cookie := cookieByName(rec, name)
		require.NotNil(t, cookie)
		require.True(t, cookie.Secure)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	}

	rec = env.do(http.MethodPost, "/auth/login", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, decodeErrorBody(t, rec.Body.Bytes())["error"], "detail")
}

func TestRouter_DevelopmentErrorDetail(t *testing.T) {
	env := newTestEnv(t)
	engine := env.server.Handler.(*gin.Engine)
	engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := env.do(http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())["error"]
	require.Equal(t, "internal_error", body["code"])
	require.Equal(t, genericErrorMessage, body["message"])
	require.Contains(t, body["detail"], "kaboom")
	require.NotEmpty(t, body["stack"])

	prod := newTestEnv(t, withProduction())
	prod.server.Handler.(*gin.Engine).GET("/boom", func(*gin.Context) { panic("kaboom") })
	rec = prod.do(http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "kaboom")
}

func TestRouter_GoogleFlow(t *testing.T) {
	env := newTestEnv(t)

	start := env.do(http.MethodGet, "/auth/google", "")
	require.Equal(t, http.StatusFound, start.Code)
	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	require.NotEmpty(t, location.Query().Get("code_challenge"))

	stateCookie := cookieByName(start, oauthStateCookieName)
	require.NotNil(t, stateCookie)
	require.Equal(t, "/auth/google", stateCookie.Path)
	require.Equal(t, 300, stateCookie.MaxAge)
	require.True(t, stateCookie.HttpOnly)

	callback := env.do(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), "", stateCookie)
	require.Equal(t, http.StatusFound, callback.Code)
	require.Equal(t, "http://localhost:5173/", callback.Header().Get("Location"))
	require.NotNil(t, cookieByName(callback, accessCookieName))
	require.NotNil(t, cookieByName(callback, refreshCookieName))
	require.Equal(t, "abc", env.provider.gotCode)
	require.Equal(t, auth.CodeChallengeFromVerifier(env.provider.gotVerifier), location.Query().Get("code_challenge"))

	user, ok, err := env.repo.FindByExternalID(context.Background(), "google-7")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "maria@gmail.com", user.Email)
}

func TestRouter_GoogleCallbackFailures(t *testing.T) {
	env := newTestEnv(t)
	start := env.do(http.MethodGet, "/auth/google", "")
	stateCookie := cookieByName(start, oauthStateCookieName)
	require.NotNil(t, stateCookie)
	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	rec := env.do(http.MethodGet, "/auth/google/callback?code=abc&state=forged", "", stateCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/auth/login-failure", rec.Header().Get("Location"))
	require.Nil(t, cookieByName(rec, accessCookieName))

	rec = env.do(http.MethodGet, "/auth/google/callback?code=abc&state="+state, "")
	require.Equal(t, "/auth/login-failure", rec.Header().Get("Location"))

	env.provider.profile.PictureURL = ""
	rec = env.do(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), "", stateCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/auth/login-failure", rec.Header().Get("Location"))
	require.Nil(t, cookieByName(rec, accessCookieName))

	failure := env.do(http.MethodGet, "/auth/login-failure", "")
	require.Equal(t, http.StatusUnauthorized, failure.Code)
	require.Equal(t, loginFailureMessage, decodeErrorBody(t, failure.Body.Bytes())["error"]["message"])
}

func TestRouter_CORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.NewMemoryLimiter(1, 1, nil)))
	first := env.do(http.MethodPost, "/auth/refresh", "")
	require.Equal(t, http.StatusUnauthorized, first.Code)
	second := env.do(http.MethodPost, "/auth/refresh", "")
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	health := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, health.Code)
}

func TestRouter_RateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.NewMemoryLimiter(1, 1, nil)))
	refresh := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		env.server.Handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusUnauthorized, refresh("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, refresh("203.0.113.2"))
}

func TestRouter_RateLimitHonorsTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	env := newTestEnv(t,
		withLimiter(ratelimit.NewMemoryLimiter(1, 1, nil)),
		withTrustedProxies("192.0.2.0/24"),
	)
	refresh := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		env.server.Handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusUnauthorized, refresh("203.0.113.1"))
	require.Equal(t, http.StatusUnauthorized, refresh("203.0.113.2"))
	require.Equal(t, http.StatusTooManyRequests, refresh("203.0.113.1"))
}

func TestRouter_InfoHealthMetricsAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "Ana Silva", "ana@x.com")

	rec := env.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "todoauth_registrations_total")

	rec = env.do(http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}

type stubProvider struct {
	profile     auth.ProviderProfile
	gotCode     string
	gotVerifier string
}

func (s *stubProvider) Name() string { return "google" }

func (s *stubProvider) AuthCodeURL(state, codeChallenge string) string {
	return "https://accounts.example/o/auth?" + url.Values{
		"state":          {state},
		"code_challenge": {codeChallenge},
	}.Encode()
}

func (s *stubProvider) Exchange(_ context.Context, code, codeVerifier string) (auth.ProviderProfile, error) {
	s.gotCode = code
	s.gotVerifier = codeVerifier
	if strings.TrimSpace(code) == "" {
		return auth.ProviderProfile{}, fmt.Errorf("empty code")
	}
	return s.profile, nil
}
