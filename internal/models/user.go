package models

import (
	"time"

	"github.com/google/uuid"
)

// User - модель пользователя в системе.
//
// Email хранится ровно в том виде, в каком пришёл при регистрации,
// и сравнивается с учётом регистра.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	// RefreshTokenHash: argon2id-хэш последнего выданного refresh-токена;
	// nil означает, что активной сессии нет.
	RefreshTokenHash *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasSession сообщает, есть ли у пользователя действующий refresh-токен.
func (u *User) HasSession() bool {
	return u.RefreshTokenHash != nil
}
