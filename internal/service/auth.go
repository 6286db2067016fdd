package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-local-auth/internal/models"
	"github.com/pribylovaa/go-local-auth/internal/pkg/log"
	"github.com/pribylovaa/go-local-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-local-auth/internal/ratelimit"
	"github.com/pribylovaa/go-local-auth/internal/storage"
)

var (
	errEmptyEmail     = errors.New("email is empty")
	errInvalidEmail   = errors.New("invalid email format")
	errEmptyPassword  = errors.New("password is empty")
	errEmailTaken     = errors.New("email already registered")
	errUnknownEmail   = errors.New("unknown email")
	errWrongPassword  = errors.New("password mismatch")
	errNoSession      = errors.New("no active session")
	errTokenMismatch  = errors.New("refresh token does not match")
	errUserNotFound   = errors.New("user not found")
	errRateLimited    = errors.New("too many failed sign-in attempts")
	errEmptyRefreshRT = errors.New("refresh token is empty")
)

// SignUp регистрирует пользователя и открывает ему сессию.
func (s *Service) SignUp(ctx context.Context, email, password string) (pair models.TokenPair, err error) {
	const op = "service.auth.SignUp"
	defer s.observe("sign_up", time.Now(), &err)

	if err := validateEmail(email); err != nil {
		return models.TokenPair{}, newError(op, KindInvalidArgument, err)
	}

	if password == "" {
		return models.TokenPair{}, newError(op, KindInvalidArgument, errEmptyPassword)
	}

	_, err = s.storage.UserByEmail(ctx, email)
	if err == nil {
		return models.TokenPair{}, newError(op, KindDuplicateCredential, errEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.TokenPair{}, newError(op, KindDuplicateCredential, errEmailTaken)
		}

		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	log.From(ctx).Info("user_signed_up",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
	)

	return s.openSession(ctx, op, user)
}

// SignIn проверяет пароль и открывает новую сессию, вытесняя предыдущую.
// Неизвестный email и неверный пароль неразличимы ни по ответу, ни по времени.
func (s *Service) SignIn(ctx context.Context, email, password string) (pair models.TokenPair, err error) {
	const op = "service.auth.SignIn"
	defer s.observe("sign_in", time.Now(), &err)

	if email == "" {
		return models.TokenPair{}, newError(op, KindInvalidArgument, errEmptyEmail)
	}

	if password == "" {
		return models.TokenPair{}, newError(op, KindInvalidArgument, errEmptyPassword)
	}

	if err := s.checkLimiter(ctx, email); err != nil {
		return models.TokenPair{}, newError(op, KindTooManyRequests, err)
	}

	user, err := s.storage.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return models.TokenPair{}, s.internal(ctx, op, err)
		}

		s.hasher.Verify(s.dummyHash, password)
		s.recordFailure(ctx, email)

		return models.TokenPair{}, newError(op, KindInvalidCredentials, errUnknownEmail)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.recordFailure(ctx, email)

		return models.TokenPair{}, newError(op, KindInvalidCredentials, errWrongPassword)
	}

	s.resetLimiter(ctx, email)

	return s.openSession(ctx, op, user)
}

// Logout закрывает сессию пользователя. Повторный вызов: не ошибка.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) (err error) {
	const op = "service.auth.Logout"
	defer s.observe("logout", time.Now(), &err)

	if err := s.storage.ClearRefreshTokenHash(ctx, userID); err != nil {
		return s.internal(ctx, op, err)
	}

	return nil
}

// Refresh проверяет предъявленный refresh-токен по сохранённому хэшу
// и выпускает новую пару. Старый refresh-токен после этого недействителен.
//
// Два одновременных Refresh с одним токеном могут оба пройти проверку;
// выживет хэш последней записи, второй клиент получит отказ при следующем Refresh.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID, refreshToken string) (pair models.TokenPair, err error) {
	const op = "service.auth.Refresh"
	defer s.observe("refresh", time.Now(), &err)

	if refreshToken == "" {
		return models.TokenPair{}, newError(op, KindAccessDenied, errEmptyRefreshRT)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.TokenPair{}, newError(op, KindAccessDenied, errUserNotFound)
		}

		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	if !user.HasSession() {
		return models.TokenPair{}, newError(op, KindAccessDenied, errNoSession)
	}

	if !s.hasher.Verify(*user.RefreshTokenHash, refreshToken) {
		log.From(ctx).Warn("refresh_token_mismatch",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
		)

		return models.TokenPair{}, newError(op, KindAccessDenied, errTokenMismatch)
	}

	return s.openSession(ctx, op, user)
}

// Me возвращает пользователя по идентификатору из access-токена.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.Me"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(op, KindAccessDenied, errUserNotFound)
		}

		return nil, s.internal(ctx, op, err)
	}

	return user, nil
}

// openSession выпускает пару токенов и сохраняет хэш refresh-токена.
func (s *Service) openSession(ctx context.Context, op string, user *models.User) (models.TokenPair, error) {
	pair, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	hash, err := s.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	if err := s.storage.SetRefreshTokenHash(ctx, user.ID, hash); err != nil {
		return models.TokenPair{}, s.internal(ctx, op, err)
	}

	return pair, nil
}

// internal логирует причину и скрывает её за KindInternal.
func (s *Service) internal(ctx context.Context, op string, err error) *Error {
	log.From(ctx).Error("auth_internal_error",
		slog.String("op", op),
		slog.String("err", err.Error()),
	)

	return newError(op, KindInternal, err)
}

func (s *Service) checkLimiter(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}

	err := s.limiter.Allow(ctx, email)
	if err == nil {
		return nil
	}

	// Недоступный Redis не блокирует вход.
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		log.From(ctx).Warn("login_limiter_unavailable", slog.String("err", err.Error()))
		return nil
	}

	log.From(ctx).Warn("login_rate_limited", slog.String("email", redact.Email(email)))

	return errRateLimited
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	log.From(ctx).Info("sign_in_failed", slog.String("email", redact.Email(email)))

	if s.limiter == nil {
		return
	}

	if err := s.limiter.Fail(ctx, email); err != nil {
		log.From(ctx).Warn("login_limiter_unavailable", slog.String("err", err.Error()))
	}
}

func (s *Service) resetLimiter(ctx context.Context, email string) {
	if s.limiter == nil {
		return
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		log.From(ctx).Warn("login_limiter_unavailable", slog.String("err", err.Error()))
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	result := "ok"
	if *errp != nil {
		result = KindOf(*errp).String()
	}

	s.metrics.ObserveOp(op, result, time.Since(start))
}

// validateEmail проверяет базовый формат email. Адрес не нормализуется:
// строка должна совпадать с разобранным адресом целиком.
func validateEmail(email string) error {
	if email == "" {
		return errEmptyEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errInvalidEmail
	}

	return nil
}
