// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервиса (service.Error с Kind),
// на выход даёт HTTP-статус и безопасное message без утечки деталей.
//
// Сообщения намеренно общие: по ответу нельзя понять, существует ли email.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-local-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError: единый формат ошибки для клиента.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse: корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil: программная ошибка вызова, отдаём 500/internal;
//   - истёкший дедлайн или отмена контекста: 504 и 499 соответственно;
//   - иначе статус выбирается по service.KindOf(err).
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, response("deadline_exceeded", "deadline exceeded")
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, response("canceled", "canceled")
	}

	switch service.KindOf(err) {
	case service.KindInvalidArgument:
		return http.StatusBadRequest, response("invalid_argument", "invalid argument")
	case service.KindDuplicateCredential, service.KindInvalidCredentials:
		return http.StatusForbidden, response("credentials_incorrect", "credentials incorrect")
	case service.KindAccessDenied:
		return http.StatusForbidden, response("access_denied", "access denied")
	case service.KindUnauthorized:
		return http.StatusUnauthorized, response("unauthenticated", "unauthenticated")
	case service.KindTooManyRequests:
		return http.StatusTooManyRequests, response("too_many_requests", "too many requests")
	default:
		return internal()
	}
}

// WriteError: хелпер для HTTP-хендлеров и мидлваров.
// Пишет статус/тело и добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// InvalidArgument: ошибка разбора запроса на уровне транспорта.
func InvalidArgument(err error) error {
	return &service.Error{Kind: service.KindInvalidArgument, Op: "http.decode", Err: err}
}

// Unauthenticated: отсутствующий или невалидный bearer-токен.
func Unauthenticated(err error) error {
	return &service.Error{Kind: service.KindUnauthorized, Op: "http.guard", Err: err}
}

func internal() (int, ErrorResponse) {
	return http.StatusInternalServerError, response("internal", "internal error")
}

func response(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}
