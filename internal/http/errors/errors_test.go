package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-local-auth/internal/service"
)

func kindErr(k service.Kind) error {
	return &service.Error{Kind: k, Op: "test", Err: fmt.Errorf("detail that must not leak")}
}

func TestToHTTP_KindMapping(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"invalid_argument", kindErr(service.KindInvalidArgument), http.StatusBadRequest, "invalid_argument", "invalid argument"},
		{"duplicate", kindErr(service.KindDuplicateCredential), http.StatusForbidden, "credentials_incorrect", "credentials incorrect"},
		{"invalid_credentials", kindErr(service.KindInvalidCredentials), http.StatusForbidden, "credentials_incorrect", "credentials incorrect"},
		{"access_denied", kindErr(service.KindAccessDenied), http.StatusForbidden, "access_denied", "access denied"},
		{"unauthorized", kindErr(service.KindUnauthorized), http.StatusUnauthorized, "unauthenticated", "unauthenticated"},
		{"too_many", kindErr(service.KindTooManyRequests), http.StatusTooManyRequests, "too_many_requests", "too many requests"},
		{"internal", kindErr(service.KindInternal), http.StatusInternalServerError, "internal", "internal error"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "internal", "internal error"},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
		{"canceled", context.Canceled, StatusClientClosedRequest, "canceled", "canceled"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.Equal(t, tc.wantMsg, resp.Error.Message)
		})
	}
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_AddsRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()

	WriteError(rr, req, kindErr(service.KindAccessDenied))

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NotContains(t, rr.Body.String(), "detail that must not leak")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "access_denied", resp.Error.Code)
	require.Equal(t, "rid-1", resp.Error.RequestID)
}

func TestHelpers_CarryKind(t *testing.T) {
	require.Equal(t, service.KindInvalidArgument, service.KindOf(InvalidArgument(fmt.Errorf("bad json"))))
	require.Equal(t, service.KindUnauthorized, service.KindOf(Unauthenticated(fmt.Errorf("no bearer"))))
}
