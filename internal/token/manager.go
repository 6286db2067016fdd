package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-local-auth/internal/config"
	"github.com/pribylovaa/go-local-auth/internal/models"
)

// Время жизни токенов фиксировано.
const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

// Manager выпускает пары токенов и проверяет каждый класс своим секретом.
// Секреты только читаются, поэтому Manager безопасен для конкурентного использования.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewManager создаёт Manager. Пустые или совпадающие секреты недопустимы.
func NewManager(cfg config.AuthConfig) (*Manager, error) {
	const op = "token.NewManager"

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%s: %w", op, errors.New("access and refresh secrets must differ"))
	}

	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue выпускает новую пару токенов для пользователя.
func (m *Manager) Issue(userID uuid.UUID, email string) (models.TokenPair, error) {
	const op = "token.Manager.Issue"

	now := m.now()
	claims := Claims{Subject: userID.String(), Email: email}

	access, err := Sign(claims, m.accessSecret, AccessTTL, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := Sign(claims, m.refreshSecret, RefreshTTL, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess проверяет access-токен.
func (m *Manager) VerifyAccess(tokenStr string) (Claims, error) {
	return Verify(tokenStr, m.accessSecret)
}

// VerifyRefresh проверяет refresh-токен.
func (m *Manager) VerifyRefresh(tokenStr string) (Claims, error) {
	return Verify(tokenStr, m.refreshSecret)
}
