// sqlite: встраиваемое хранилище пользователей на modernc.org/sqlite (без CGO).
// Используется для локального запуска и end-to-end тестов без Docker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pribylovaa/go-local-auth/internal/storage"
	"github.com/pribylovaa/go-local-auth/migrations"
)

type Storage struct {
	db *sql.DB
}

// New открывает БД по пути path (":memory:": БД в памяти процесса).
// SQLite допускает одного писателя, поэтому пул ограничен одним соединением;
// это же сохраняет in-memory БД общей для всех запросов.
func New(ctx context.Context, path string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func dsn(path string) string {
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if !strings.Contains(path, ":memory:") {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + strings.Join(params, "&")
}

// Migrate применяет встроенные миграции.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.sqlite.Migrate"

	if err := migrations.Up(ctx, s.db, goose.DialectSQLite3); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Ping проверяет доступность БД (readiness).
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает БД.
func (s *Storage) Close() {
	_ = s.db.Close()
}

// isUniqueViolation распознаёт нарушение UNIQUE/PRIMARY KEY.
func isUniqueViolation(err error) bool {
	var sqErr *msqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
