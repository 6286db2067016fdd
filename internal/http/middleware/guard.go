package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/go-local-auth/internal/http/errors"
	logctx "github.com/pribylovaa/go-local-auth/internal/pkg/log"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

var (
	errNoBearer   = errors.New("missing bearer token")
	errBadSubject = errors.New("token subject is not a user id")
)

// Identity: проверенная личность запроса.
type Identity struct {
	UserID uuid.UUID
	Email  string
	// RefreshToken заполняется только RefreshGuard.
	RefreshToken string
}

type identityKey struct{}

// IdentityFrom достаёт Identity, положенную guard-ом.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AccessGuard пропускает запрос только с валидным access-токеном.
func AccessGuard(tm *token.Manager) Middleware {
	return guard(tm.VerifyAccess, false)
}

// RefreshGuard пропускает запрос только с валидным refresh-токеном
// и сохраняет сам токен в Identity для ротации.
func RefreshGuard(tm *token.Manager) Middleware {
	return guard(tm.VerifyRefresh, true)
}

func guard(verify func(string) (token.Claims, error), keepRaw bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				apierrors.WriteError(w, r, apierrors.Unauthenticated(errNoBearer))
				return
			}

			claims, err := verify(raw)
			if err != nil {
				logctx.From(r.Context()).Debug("bearer_rejected", slog.String("err", err.Error()))
				apierrors.WriteError(w, r, apierrors.Unauthenticated(err))
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				apierrors.WriteError(w, r, apierrors.Unauthenticated(errBadSubject))
				return
			}

			id := Identity{UserID: userID, Email: claims.Email}
			if keepRaw {
				id.RefreshToken = raw
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			ctx = logctx.With(ctx, slog.String("user_id", userID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearer извлекает токен из "Authorization: Bearer <token>".
func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	tok := strings.TrimSpace(auth[len(prefix):])
	return tok, tok != ""
}
