package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-local-auth/internal/models"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

// AuthService: операции сервиса, которые вызывают хендлеры.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (models.TokenPair, error)
	SignIn(ctx context.Context, email, password string) (models.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID, refreshToken string) (models.TokenPair, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Handlers агрегирует зависимости HTTP-хендлеров.
type Handlers struct {
	svc AuthService
}

func New(svc AuthService) *Handlers {
	return &Handlers{svc: svc}
}

// writeJSON: единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict: строгий JSON-декодер: запрещаем неизвестные поля,
// лишние данные после объекта и тело больше maxBodyBytes.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}

	return nil
}
