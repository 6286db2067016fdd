// service содержит бизнес-логику auth-сервиса: регистрацию, вход,
// выход и ротацию refresh-токенов.
//
// Основные аспекты:
//   - Сессия пользователя: это хэш последнего выданного refresh-токена
//     в записи пользователя. Вход и refresh перезаписывают его, logout обнуляет.
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования, если таковы переданные зависимости.
//   - Все ошибки возвращаются как *Error с Kind (см. errors.go).
package service

import (
	"context"
	"fmt"

	"github.com/pribylovaa/go-local-auth/internal/metrics"
	"github.com/pribylovaa/go-local-auth/internal/storage"
	"github.com/pribylovaa/go-local-auth/internal/token"
)

// Hasher вычисляет и проверяет солёные хэши секретов.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(encoded, plaintext string) bool
}

// Limiter ограничивает неудачные попытки входа.
type Limiter interface {
	Allow(ctx context.Context, email string) error
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	hasher  Hasher
	tokens  *token.Manager
	limiter Limiter          // может быть nil, если Redis не сконфигурирован
	metrics *metrics.Metrics // может быть nil

	// dummyHash проверяется при входе с неизвестным email, чтобы оба
	// отказа стоили одну argon2-проверку.
	dummyHash string
}

// New создаёт новый экземпляр Service.
func New(st storage.Storage, hasher Hasher, tokens *token.Manager) (*Service, error) {
	const op = "service.New"

	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Service{
		storage:   st,
		hasher:    hasher,
		tokens:    tokens,
		dummyHash: dummy,
	}, nil
}

// SetLimiter устанавливает ограничитель попыток входа (опционально).
func (s *Service) SetLimiter(l Limiter) {
	s.limiter = l
}

// SetMetrics устанавливает коллекторы метрик (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}
