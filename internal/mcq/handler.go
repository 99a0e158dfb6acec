package mcq

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"exam-portal/internal/auth"
	"exam-portal/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the test routes on an authenticated router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tests/sessions", h.StartSession).Methods(http.MethodPost)
	r.HandleFunc("/tests/sessions/{sessionID}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/tests/sessions/{sessionID}", h.CloseSession).Methods(http.MethodDelete)
	r.HandleFunc("/tests/sessions/{sessionID}/answers/{questionKey}", h.SelectAnswer).Methods(http.MethodPut)
	r.HandleFunc("/tests/sessions/{sessionID}/answers/{questionKey}", h.ClearAnswer).Methods(http.MethodDelete)
	r.HandleFunc("/tests/sessions/{sessionID}/submit", h.RequestSubmit).Methods(http.MethodPost)
	r.HandleFunc("/tests/sessions/{sessionID}/submit/cancel", h.CancelSubmit).Methods(http.MethodPost)
	r.HandleFunc("/tests/sessions/{sessionID}/submit/confirm", h.ConfirmSubmit).Methods(http.MethodPost)
	r.HandleFunc("/tests/attempts", h.ListAttempts).Methods(http.MethodGet)
	r.HandleFunc("/tests/leaderboard", h.Leaderboard).Methods(http.MethodGet)
}

type startRequest struct {
	Location string `json:"location" validate:"required"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	View      View   `json:"view"`
}

type answerRequest struct {
	Option string `json:"option" validate:"required"`
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}

	id, view, err := h.service.Start(r.Context(), Student{ID: claims.UserID, Email: claims.Email}, req.Location)
	if err != nil {
		if errors.Is(err, ErrLoadFailed) {
			httpx.WriteAPIError(w, http.StatusBadGateway, httpx.APIError{
				Message:  err.Error(),
				Code:     "load_failed",
				ReturnTo: view.ReturnTo,
			})
			return
		}
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, startResponse{SessionID: id, View: view})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(id string, owner uint) (View, error) {
		return h.service.Get(id, owner)
	})
}

func (h *Handler) SelectAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	key := mux.Vars(r)["questionKey"]
	h.withSession(w, r, func(id string, owner uint) (View, error) {
		return h.service.SelectAnswer(id, owner, key, req.Option)
	})
}

func (h *Handler) ClearAnswer(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["questionKey"]
	h.withSession(w, r, func(id string, owner uint) (View, error) {
		return h.service.ClearAnswer(id, owner, key)
	})
}

func (h *Handler) RequestSubmit(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, h.service.RequestSubmit)
}

func (h *Handler) CancelSubmit(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, h.service.CancelSubmit)
}

func (h *Handler) ConfirmSubmit(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, h.service.ConfirmSubmit)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err := h.service.Close(mux.Vars(r)["sessionID"], claims.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.service.Attempts(r.Context(), claims.UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, attempts)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, ErrNoTestSelected)
		return
	}
	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 10
	}
	entries, err := h.service.Leaderboard(r.Context(), path, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(id string, owner uint) (View, error)) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	view, err := fn(mux.Vars(r)["sessionID"], claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, ErrNoTestSelected):
		httpx.WriteError(w, http.StatusBadRequest, "no_test_selected", err)
	case errors.Is(err, ErrUnknownQuestion), errors.Is(err, ErrUnknownOption):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_answer", err)
	case errors.Is(err, ErrAlreadySubmitted):
		httpx.WriteError(w, http.StatusConflict, "already_submitted", err)
	case errors.Is(err, ErrNotConfirming), errors.Is(err, ErrNotAnswering), errors.Is(err, ErrNotReady):
		httpx.WriteError(w, http.StatusConflict, "invalid_state", err)
	case errors.Is(err, ErrClosed):
		httpx.WriteError(w, http.StatusGone, "session_closed", err)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err)
	}
}
