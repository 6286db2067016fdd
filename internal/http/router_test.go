package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-local-auth/internal/config"
	"github.com/pribylovaa/go-local-auth/internal/metrics"
	"github.com/pribylovaa/go-local-auth/internal/models"
	"github.com/pribylovaa/go-local-auth/internal/password"
	"github.com/pribylovaa/go-local-auth/internal/service"
	"github.com/pribylovaa/go-local-auth/internal/storage/sqlite"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

// Сквозные тесты HTTP-слоя: настоящий роутер, сервис, argon2 и sqlite в памяти.

type testServer struct {
	*httptest.Server
	reg *prometheus.Registry
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))

	hasher, err := password.New(config.HashConfig{MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	tm, err := token.NewManager(config.AuthConfig{AccessSecret: "e2e-at", RefreshSecret: "e2e-rt"})
	require.NoError(t, err)

	svc, err := service.New(st, hasher, tm)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc.SetMetrics(m)

	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Metrics = m

	srv := httptest.NewServer(NewRouter(svc, tm, opts))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *nethttp.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := nethttp.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodePair(t *testing.T, resp *nethttp.Response) models.TokenPair {
	t.Helper()
	var pair models.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func errorCode(t *testing.T, resp *nethttp.Response) string {
	t.Helper()
	var env struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotEmpty(t, env.Error.RequestID)
	return env.Error.Code
}

var alice = map[string]string{"email": "alice@example.com", "password": "Passw0rd!"}

func TestScenario_SignUpSignInRefreshLogout(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	signup := decodePair(t, resp)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signin", "", alice)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	signin := decodePair(t, resp)

	// Вход вытеснил сессию регистрации.
	resp = s.do(t, nethttp.MethodPost, "/auth/refresh", signup.RefreshToken, nil)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	require.Equal(t, "access_denied", errorCode(t, resp))

	resp = s.do(t, nethttp.MethodPost, "/auth/refresh", signin.RefreshToken, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	rotated := decodePair(t, resp)
	require.NotEqual(t, signin.RefreshToken, rotated.RefreshToken)

	// Повторное использование уже ротированного токена.
	resp = s.do(t, nethttp.MethodPost, "/auth/refresh", signin.RefreshToken, nil)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)

	resp = s.do(t, nethttp.MethodGet, "/auth/me", rotated.AccessToken, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	var me map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	require.Equal(t, "alice@example.com", me["email"])
	require.NotEmpty(t, me["id"])
	require.Len(t, me, 2)

	resp = s.do(t, nethttp.MethodPost, "/auth/logout", rotated.AccessToken, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Empty(t, b)

	// Logout идемпотентен, а refresh после него невозможен.
	resp = s.do(t, nethttp.MethodPost, "/auth/logout", rotated.AccessToken, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/refresh", rotated.RefreshToken, nil)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)

	n, err := testutil.GatherAndCount(s.reg, "auth_http_requests_total")
	require.NoError(t, err)
	require.Positive(t, n)
}

func TestSignUp_DuplicateAndInvalid(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	require.Equal(t, "credentials_incorrect", errorCode(t, resp))

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signup", "", map[string]string{"email": "nope", "password": "x"})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signup", "", map[string]any{"email": "a@b.c", "password": "x", "role": "admin"})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
}

func TestSignIn_WrongPasswordAndUnknownEmail(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signin", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	wrong := errorCode(t, resp)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signin", "", map[string]string{"email": "ghost@example.com", "password": "Passw0rd!"})
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	require.Equal(t, wrong, errorCode(t, resp))
}

func TestGuardedRoutes_Unauthenticated(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	pair := decodePair(t, resp)

	cases := []struct {
		method, path, bearer string
	}{
		{nethttp.MethodPost, "/auth/logout", ""},
		{nethttp.MethodGet, "/auth/me", ""},
		{nethttp.MethodPost, "/auth/refresh", ""},
		{nethttp.MethodPost, "/auth/logout", pair.RefreshToken},
		{nethttp.MethodPost, "/auth/refresh", pair.AccessToken},
		{nethttp.MethodGet, "/auth/me", "garbage"},
	}

	for _, c := range cases {
		resp := s.do(t, c.method, c.path, c.bearer, nil)
		require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode, "%s %s", c.method, c.path)
		require.Equal(t, "unauthenticated", errorCode(t, resp))
	}
}

func TestBasePathAndCORS(t *testing.T) {
	s := newTestServer(t, Options{BasePath: "/api", CORSOrigins: []string{"https://app.example.com"}})

	resp := s.do(t, nethttp.MethodPost, "/api/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/local/signup", "", alice)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)

	// Браузеры присылают имена заголовков в нижнем регистре.
	for _, headers := range []string{"authorization", "authorization,content-type"} {
		req, err := nethttp.NewRequest(nethttp.MethodOptions, s.URL+"/api/auth/me", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", nethttp.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", headers)

		pre, err := s.Client().Do(req)
		require.NoError(t, err)
		_ = pre.Body.Close()

		require.Equal(t, "https://app.example.com", pre.Header.Get("Access-Control-Allow-Origin"), headers)
	}
}
