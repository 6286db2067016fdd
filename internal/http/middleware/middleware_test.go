package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-local-auth/internal/config"
	"github.com/pribylovaa/go-local-auth/internal/metrics"
	logctx "github.com/pribylovaa/go-local-auth/internal/pkg/log"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

// capHandler: тестовый slog.Handler, который:
//   - аккумулирует базовые attrs, приходящие через Logger.With(...);
//   - собирает attrs последней записи в map[string]any.
type capHandler struct {
	base    []slog.Attr
	lastMsg string
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)

	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) > 0 {
		h.base = append(h.base, attrs...)
	}

	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func makeReq(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}).String()
	return req
}

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func decodeErr(t *testing.T, rr *httptest.ResponseRecorder) errEnvelope {
	t.Helper()
	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

// chain применяет мидлвары в порядке перечисления, как root.Use в chi.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func testManager(t *testing.T) *token.Manager {
	t.Helper()
	tm, err := token.NewManager(config.AuthConfig{AccessSecret: "mw-at", RefreshSecret: "mw-rt"})
	require.NoError(t, err)
	return tm
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenHeader, seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHeader = r.Header.Get("X-Request-Id")
		seenCtx = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	chain(h, RequestID()).ServeHTTP(rr, makeReq("/rid"))

	respID := rr.Header().Get("X-Request-Id")
	require.Len(t, respID, 32) // 16 байт → 32 hex-символа
	require.Equal(t, respID, seenHeader)
	require.Equal(t, respID, seenCtx)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "abc123-existing-id"
	var seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtx = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	req := makeReq("/rid2")
	req.Header.Set("X-Request-Id", given)
	chain(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get("X-Request-Id"))
	require.Equal(t, given, seenCtx)
}

func TestTimeout_SetsDeadline_WhenAbsent(t *testing.T) {
	var hasDeadline bool
	var left time.Duration

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dl, ok := r.Context().Deadline()
		hasDeadline = ok
		if ok {
			left = time.Until(dl)
		}
	})

	chain(h, Timeout(50*time.Millisecond)).ServeHTTP(httptest.NewRecorder(), makeReq("/timeout"))

	require.True(t, hasDeadline)
	require.Greater(t, left, time.Duration(0))
}

func TestTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	var childDL time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		childDL, _ = r.Context().Deadline()
	})

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	chain(h, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), makeReq("/timeout2").WithContext(parent))

	parentDL, _ := parent.Deadline()
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestTimeout_ZeroIsNoop(t *testing.T) {
	var hasDeadline bool

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})

	chain(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), makeReq("/timeout3"))
	require.False(t, hasDeadline)
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	chain(panicHandler, Recover()).ServeHTTP(rr, makeReq("/panic"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	env := decodeErr(t, rr)
	require.Equal(t, "internal", env.Error.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestLogging_WritesRecord_WithStatusDurBytesAndRequestID(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	const rid = "rid-456"
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Без WriteHeader статус должен стать 200 после Write.
		_, _ = w.Write([]byte("0123456789"))
	})

	handler := chain(final, RequestID(), Logging(logger))

	rr := httptest.NewRecorder()
	req := makeReq("/log")
	req.Header.Set("X-Request-Id", rid)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.count)
	require.Equal(t, "http", h.lastMsg)

	method, _ := h.attrs["method"].(string)
	path, _ := h.attrs["path"].(string)
	status, _ := h.attrs["status"].(int64) // slog хранит числа как int64
	bytes, _ := h.attrs["bytes"].(int64)
	ridAttr, _ := h.attrs["request_id"].(string)

	require.Equal(t, http.MethodGet, method)
	require.Equal(t, "/log", path)
	require.EqualValues(t, http.StatusOK, status)
	require.EqualValues(t, 10, bytes)
	require.Equal(t, rid, ridAttr)

	_, hasDur := h.attrs["dur"]
	require.True(t, hasDur)

	for _, v := range h.attrs {
		require.NotEqual(t, "Bearer secret-token", v)
	}
}

func TestStatusWriter_CountsBytes_AndDefaultStatus200(t *testing.T) {
	sw := wrap(httptest.NewRecorder())

	_, _ = sw.Write([]byte("abcd"))

	require.Equal(t, http.StatusOK, sw.code())
	require.Equal(t, 4, sw.count)
	require.Same(t, sw, wrap(sw))
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), makeReq("/users/"+uuid.NewString()))
	}
	r.ServeHTTP(httptest.NewRecorder(), makeReq("/nowhere"))

	// Три запроса к одному шаблону и один несопоставленный дают две серии.
	n, err := testutil.GatherAndCount(reg, "auth_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	called := false
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	chain(h, Metrics(nil)).ServeHTTP(httptest.NewRecorder(), makeReq("/"))
	require.True(t, called)
}

func TestAccessGuard_OK(t *testing.T) {
	tm := testManager(t)
	userID := uuid.New()
	pair, err := tm.Issue(userID, "alice@example.com")
	require.NoError(t, err)

	logs := &capHandler{}
	var got Identity
	var ok bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFrom(r.Context())
		logctx.From(r.Context()).Info("inside")
	})

	req := makeReq("/auth/me")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req = req.WithContext(logctx.Into(req.Context(), slog.New(logs)))

	rr := httptest.NewRecorder()
	chain(h, AccessGuard(tm)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, ok)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, "alice@example.com", got.Email)
	require.Empty(t, got.RefreshToken)
	require.Equal(t, userID.String(), logs.attrs["user_id"])
}

func TestRefreshGuard_KeepsRawToken(t *testing.T) {
	tm := testManager(t)
	pair, err := tm.Issue(uuid.New(), "bob@example.com")
	require.NoError(t, err)

	var got Identity
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
	})

	req := makeReq("/auth/refresh")
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)

	rr := httptest.NewRecorder()
	chain(h, RefreshGuard(tm)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, pair.RefreshToken, got.RefreshToken)
}

func TestGuards_Reject(t *testing.T) {
	tm := testManager(t)
	pair, err := tm.Issue(uuid.New(), "carol@example.com")
	require.NoError(t, err)

	expired, err := token.Sign(token.Claims{Subject: uuid.NewString()}, []byte("mw-at"), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	badSubject, err := token.Sign(token.Claims{Subject: "not-a-uuid"}, []byte("mw-at"), time.Minute, time.Now())
	require.NoError(t, err)

	tcs := []struct {
		name   string
		guard  Middleware
		header string
	}{
		{"access_missing", AccessGuard(tm), ""},
		{"access_basic_scheme", AccessGuard(tm), "Basic abc"},
		{"access_empty_bearer", AccessGuard(tm), "Bearer   "},
		{"access_garbage", AccessGuard(tm), "Bearer not.a.jwt"},
		{"access_expired", AccessGuard(tm), "Bearer " + expired},
		{"access_bad_subject", AccessGuard(tm), "Bearer " + badSubject},
		{"access_with_refresh_token", AccessGuard(tm), "Bearer " + pair.RefreshToken},
		{"refresh_with_access_token", RefreshGuard(tm), "Bearer " + pair.AccessToken},
		{"refresh_missing", RefreshGuard(tm), ""},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

			req := makeReq("/guarded")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			rr := httptest.NewRecorder()
			chain(h, tc.guard).ServeHTTP(rr, req)

			require.False(t, called)
			require.Equal(t, http.StatusUnauthorized, rr.Code)
			require.Equal(t, "unauthenticated", decodeErr(t, rr).Error.Code)
		})
	}
}

func TestIdentityFrom_Empty(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	require.False(t, ok)
}

func TestLogging_TakesRequestIDFromContext(t *testing.T) {
	h := &capHandler{}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	chain(final, RequestID(), Logging(slog.New(h))).ServeHTTP(rr, makeReq("/rid-ctx"))

	generated := rr.Header().Get("X-Request-Id")
	require.Len(t, generated, 32)
	require.Equal(t, generated, h.attrs["request_id"])
}

func TestRecover_InsideLoggingAndMetrics_RecordsPanicAs500(t *testing.T) {
	logs := &capHandler{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(RequestID(), Logging(slog.New(logs)), Metrics(m), Recover())
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, makeReq("/boom"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "internal", decodeErr(t, rr).Error.Code)

	require.Equal(t, "http", logs.lastMsg)
	require.EqualValues(t, http.StatusInternalServerError, logs.attrs["status"])

	n, err := testutil.GatherAndCount(reg, "auth_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	expected := `
# HELP auth_http_requests_total HTTP requests by route and status.
# TYPE auth_http_requests_total counter
auth_http_requests_total{method="GET",route="/boom",status="500"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "auth_http_requests_total"))
}
