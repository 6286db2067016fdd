package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-local-auth/internal/models"
	"github.com/pribylovaa/go-local-auth/internal/storage"
)

// SaveUser создает нового пользователя в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.SaveUser"

	query := `
		INSERT INTO users(id, email, password_hash, refresh_token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.RefreshTokenHash,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"

	query := `
		SELECT id, email, password_hash, refresh_token_hash, created_at, updated_at
		FROM users
		WHERE email = ?
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	query := `
		SELECT id, email, password_hash, refresh_token_hash, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SetRefreshTokenHash перезаписывает хэш refresh-токена.
func (s *Storage) SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error {
	const op = "storage.sqlite.SetRefreshTokenHash"

	query := `
		UPDATE users
		SET refresh_token_hash = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, hash, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearRefreshTokenHash обнуляет хэш refresh-токена, если он задан.
func (s *Storage) ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error {
	const op = "storage.sqlite.ClearRefreshTokenHash"

	query := `
		UPDATE users
		SET refresh_token_hash = NULL, updated_at = ?
		WHERE id = ? AND refresh_token_hash IS NOT NULL
	`

	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user models.User
		id   string
	)

	err := row.Scan(
		&id,
		&user.Email,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	return &user, nil
}
