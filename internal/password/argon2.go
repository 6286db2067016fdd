// password реализует хэширование секретов алгоритмом argon2id.
// Хэш кодируется в PHC-строку: $argon2id$v=19$m=..,t=..,p=..$<salt>$<hash>,
// поэтому параметры, с которыми он был получен, всегда хранятся рядом с ним.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/pribylovaa/go-local-auth/internal/config"
)

const (
	minMemoryKiB   uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithm             = "argon2id"
)

// ErrInvalidParams: параметры argon2 слабее допустимого минимума.
var ErrInvalidParams = errors.New("invalid argon2 params")

// errMalformed: внутренняя ошибка разбора PHC-строки; наружу не уходит.
var errMalformed = errors.New("malformed argon2 hash")

// Argon2 хэширует и проверяет секреты. Экземпляр неизменяем после New
// и безопасен для конкурентного использования.
type Argon2 struct {
	cfg config.HashConfig
}

// New создаёт хэшер и отклоняет слабые параметры.
func New(cfg config.HashConfig) (*Argon2, error) {
	const op = "password.New"

	switch {
	case cfg.MemoryKiB < minMemoryKiB:
		return nil, fmt.Errorf("%s: memory must be >= %d KiB: %w", op, minMemoryKiB, ErrInvalidParams)
	case cfg.Time < minTime:
		return nil, fmt.Errorf("%s: time must be >= %d: %w", op, minTime, ErrInvalidParams)
	case cfg.Parallelism < minParallelism:
		return nil, fmt.Errorf("%s: parallelism must be >= %d: %w", op, minParallelism, ErrInvalidParams)
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("%s: salt length must be >= %d: %w", op, minSaltLength, ErrInvalidParams)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("%s: key length must be >= %d: %w", op, minKeyLength, ErrInvalidParams)
	}

	return &Argon2{cfg: cfg}, nil
}

// Hash возвращает PHC-строку для plaintext. Соль случайная на каждый вызов,
// поэтому два хэша одного значения не совпадают.
func (a *Argon2) Hash(plaintext string) (string, error) {
	const op = "password.Hash"

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.cfg.Time, a.cfg.MemoryKiB, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		a.cfg.MemoryKiB,
		a.cfg.Time,
		a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify сообщает, соответствует ли plaintext хэшу encoded.
// Битая или чужая PHC-строка даёт false, а не ошибку.
func (a *Argon2) Verify(encoded, plaintext string) bool {
	p, err := parsePHC(encoded)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))

	return subtle.ConstantTimeCompare(key, p.key) == 1
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return nil, errMalformed
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errMalformed
	}

	var out phc
	if err := parseParams(parts[3], &out); err != nil {
		return nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, errMalformed
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < int(minKeyLength) {
		return nil, errMalformed
	}

	out.salt = salt
	out.key = key

	return &out, nil
}

func parseParams(s string, out *phc) error {
	pairs := strings.Split(s, ",")
	if len(pairs) != 3 {
		return errMalformed
	}

	var seen int
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errMalformed
		}

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKiB {
				return errMalformed
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTime {
				return errMalformed
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return errMalformed
			}
			out.parallelism = uint8(n)
		default:
			return errMalformed
		}
		seen++
	}

	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return errMalformed
	}

	return nil
}
