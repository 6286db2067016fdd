package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/go-local-auth/internal/http/errors"
	"github.com/pribylovaa/go-local-auth/internal/http/middleware"
)

// credentialsRequest: тело signup и signin.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// meResponse: публичное представление пользователя. Хэши наружу не отдаются.
type meResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

var errNoIdentity = errors.New("no identity in request context")

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.InvalidArgument(err))
		return
	}

	pair, err := h.svc.SignUp(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.InvalidArgument(err))
		return
	}

	pair, err := h.svc.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout отвечает 200 с пустым телом, даже если сессии уже нет.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.Unauthenticated(errNoIdentity))
		return
	}

	if err := h.svc.Logout(r.Context(), id.UserID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.Unauthenticated(errNoIdentity))
		return
	}

	pair, err := h.svc.Refresh(r.Context(), id.UserID, id.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.Unauthenticated(errNoIdentity))
		return
	}

	user, err := h.svc.Me(r.Context(), id.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{ID: user.ID, Email: user.Email})
}
