// token выпускает и проверяет подписанные JWT (HS256).
//
// Access- и refresh-токены подписываются разными секретами: утечка одного
// из них не позволяет подделать токены другого класса.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken: подпись, алгоритм, формат или набор claims некорректны.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired: срок действия истёк. Оборачивает ErrInvalidToken.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
	// ErrEmptySecret: попытка подписать или проверить токен пустым ключом.
	ErrEmptySecret = errors.New("empty signing secret")
)

// Claims: полезная нагрузка токена.
type Claims struct {
	Subject   string
	Email     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Sign подписывает claims секретом secret со сроком жизни ttl от now.
// Поля IssuedAt/ExpiresAt/ID во входных claims игнорируются:
// ID генерируется заново, поэтому два токена, выпущенные в одну секунду, различаются.
func Sign(claims Claims, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	const op = "token.Sign"

	if len(secret) == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	rc := jwtClaims{
		Email: claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rc).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify проверяет подпись и срок действия токена и возвращает его claims.
func Verify(tokenStr string, secret []byte) (Claims, error) {
	const op = "token.Verify"

	if len(secret) == 0 {
		return Claims{}, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	var rc jwtClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &rc,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return Claims{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !tok.Valid || rc.Subject == "" {
		return Claims{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	out := Claims{
		Subject: rc.Subject,
		Email:   rc.Email,
		ID:      rc.ID,
	}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}

	return out, nil
}
