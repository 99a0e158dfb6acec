package templates

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"exam-portal/internal/auth"
	"exam-portal/internal/httpx"
	"exam-portal/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the editor routes on an admin-only router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/templates/editor", h.Open).Methods(http.MethodPost)
	r.HandleFunc("/templates/editor", h.View).Methods(http.MethodGet)
	r.HandleFunc("/templates/editor", h.Close).Methods(http.MethodDelete)
	r.HandleFunc("/templates/nodes", h.AddNode).Methods(http.MethodPost)
	r.HandleFunc("/templates/nodes/{nodeID}", h.RenameNode).Methods(http.MethodPatch)
	r.HandleFunc("/templates/nodes/{nodeID}", h.DeleteNode).Methods(http.MethodDelete)
	r.HandleFunc("/templates/nodes/{nodeID}/move", h.MoveNode).Methods(http.MethodPost)
	r.HandleFunc("/templates/nodes/{nodeID}/toggle", h.ToggleNode).Methods(http.MethodPost)
	r.HandleFunc("/templates/save", h.Save).Methods(http.MethodPost)
}

type addNodeRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
	Type     string `json:"type" validate:"required,oneof=folder template"`
}

type addNodeResponse struct {
	ID   string `json:"id,omitempty"`
	View View   `json:"view"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

type saveFailure struct {
	Error httpx.APIError `json:"error"`
	View  View           `json:"view"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.service.Open(r.Context(), claims.UserID))
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.withEditor(w, r, func(adminID uint) (View, error) {
		return h.service.View(adminID, query)
	})
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	h.service.Close(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req addNodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	id, view, err := h.service.Add(claims.UserID, req.ParentID, req.Name, models.NodeType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if id != "" {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, addNodeResponse{ID: id, View: view})
}

func (h *Handler) RenameNode(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	id := mux.Vars(r)["nodeID"]
	h.withEditor(w, r, func(adminID uint) (View, error) {
		return h.service.Rename(adminID, id, req.Name)
	})
}

func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["nodeID"]
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	h.withEditor(w, r, func(adminID uint) (View, error) {
		return h.service.Delete(adminID, id, confirmed)
	})
}

func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, err)
		return
	}
	id := mux.Vars(r)["nodeID"]
	h.withEditor(w, r, func(adminID uint) (View, error) {
		return h.service.Move(adminID, id, Direction(req.Direction))
	})
}

func (h *Handler) ToggleNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["nodeID"]
	h.withEditor(w, r, func(adminID uint) (View, error) {
		return h.service.Toggle(adminID, id)
	})
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	view, err := h.service.Save(r.Context(), claims.UserID)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, view)
	case errors.Is(err, ErrEditorNotOpen):
		writeError(w, err)
	default:
		httpx.WriteJSON(w, http.StatusBadGateway, saveFailure{
			Error: httpx.APIError{Message: err.Error(), Code: "save_failed"},
			View:  view,
		})
	}
}

func (h *Handler) withEditor(w http.ResponseWriter, r *http.Request, fn func(adminID uint) (View, error)) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	view, err := fn(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEditorNotOpen):
		httpx.WriteError(w, http.StatusConflict, "editor_not_open", err)
	case errors.Is(err, ErrNodeNotFound):
		httpx.WriteError(w, http.StatusNotFound, "node_not_found", err)
	case errors.Is(err, ErrConfirmationRequired):
		httpx.WriteError(w, http.StatusPreconditionRequired, "confirmation_required", err)
	case errors.Is(err, ErrNotFolder), errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidDirection):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_node", err)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err)
	}
}
