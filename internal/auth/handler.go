package auth

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"exam-portal/internal/httpx"
	"exam-portal/internal/models"
)

var (
	errMissingHeader    = errors.New("authorization header required")
	errTokenFormat      = errors.New("invalid token format")
	errPermissionDenied = errors.New("permission denied")
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/auth/register", h.RegisterUser).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost, http.MethodOptions)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "email_taken", err)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	token, err := h.service.IssueToken(user)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}
