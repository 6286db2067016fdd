package service

import (
	"errors"
	"fmt"
)

// Kind: класс ошибки сервиса. Транспорт выбирает код ответа только по Kind,
// не заглядывая в конкретные типы ошибок.
type Kind int

const (
	// KindInternal: сбой хранилища/хэширования/подписи. Транспорт: HTTP 500.
	KindInternal Kind = iota
	// KindInvalidArgument: пустые поля или некорректный email. Транспорт: HTTP 400.
	KindInvalidArgument
	// KindDuplicateCredential: email уже зарегистрирован. Транспорт: HTTP 403.
	KindDuplicateCredential
	// KindInvalidCredentials: неизвестный email или неверный пароль
	// (неразличимы для клиента). Транспорт: HTTP 403.
	KindInvalidCredentials
	// KindAccessDenied: refresh невозможен: нет пользователя, нет сессии
	// или токен не совпал с сохранённым хэшем. Транспорт: HTTP 403.
	KindAccessDenied
	// KindUnauthorized: отсутствует или невалиден bearer-токен. Транспорт: HTTP 401.
	KindUnauthorized
	// KindTooManyRequests: исчерпан лимит неудачных входов. Транспорт: HTTP 429.
	KindTooManyRequests
)

// String возвращает стабильное имя, пригодное для меток метрик.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindDuplicateCredential:
		return "duplicate_credential"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccessDenied:
		return "access_denied"
	case KindUnauthorized:
		return "unauthorized"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// Error: ошибка сервиса с явным классом.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf извлекает Kind из цепочки ошибок. Ошибки без Kind считаются внутренними.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindInternal
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
