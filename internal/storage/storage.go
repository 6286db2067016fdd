package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-local-auth/internal/models"
)

var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (точное совпадение, с учётом регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionStorage управляет хэшем refresh-токена пользователя.
type SessionStorage interface {
	// SetRefreshTokenHash безусловно перезаписывает хэш одной строкой UPDATE.
	SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error
	// ClearRefreshTokenHash обнуляет хэш, только если он не NULL.
	// Отсутствие затронутых строк ошибкой не считается.
	ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	SessionStorage
	Ping(ctx context.Context) error
	Close()
}
