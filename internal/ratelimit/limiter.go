// ratelimit ограничивает число неудачных попыток входа на один email.
// Счётчики живут в Redis с фиксированным окном: TTL ставится на первый промах.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-local-auth/internal/config"
)

const defaultPrefix = "auth:login:"

var (
	// ErrRateLimited: бюджет неудачных попыток исчерпан до конца окна.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable: Redis недоступен.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter считает неудачные входы в Redis.
type Limiter struct {
	rdb    redis.UniversalClient
	cfg    config.LimiterConfig
	prefix string
}

// New создаёт Limiter поверх готового клиента.
func New(rdb redis.UniversalClient, cfg config.LimiterConfig) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg, prefix: defaultPrefix}
}

// Connect создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение.
func Connect(ctx context.Context, redisURL string, cfg config.LimiterConfig) (*Limiter, error) {
	const op = "ratelimit.Connect"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return New(rdb, cfg), nil
}

// Allow возвращает ErrRateLimited, если для email уже набрано
// MaxAttempts неудачных попыток в текущем окне.
func (l *Limiter) Allow(ctx context.Context, email string) error {
	n, err := l.rdb.Get(ctx, l.key(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if n >= int64(l.cfg.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// Fail фиксирует неудачную попытку.
func (l *Limiter) Fail(ctx context.Context, email string) error {
	key := l.key(email)

	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.cfg.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return nil
}

// Reset сбрасывает счётчик после успешного входа.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if err := l.rdb.Del(ctx, l.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Close закрывает клиент Redis.
func (l *Limiter) Close() error {
	return l.rdb.Close()
}

// В ключе хранится хэш email, а не сам адрес.
func (l *Limiter) key(email string) string {
	sum := sha256.Sum256([]byte(email))
	return l.prefix + hex.EncodeToString(sum[:])
}
