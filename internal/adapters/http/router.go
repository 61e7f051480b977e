package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

const APIPrefix = "/api/v1"

type Handler struct {
	service domain.GraphAPI
	log     *zap.Logger
}

// NewRouter serves service as the JSON graph API under APIPrefix, with
// /health and /metrics at the root.
func NewRouter(service domain.GraphAPI, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{service: service, log: log}
	m := newMetrics()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(m.instrument(log))

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", m.handler())

	r.Route(APIPrefix, func(api chi.Router) {
		api.Get("/entities", h.handleListEntities)
		api.Post("/entities", h.handleCreateEntity)
		api.Get("/entities/search", h.handleSearchEntities)
		api.Get("/entities/{id}", h.handleGetEntity)
		api.Put("/entities/{id}", h.handleUpdateEntity)
		api.Delete("/entities/{id}", h.handleDeleteEntity)
		api.Get("/entities/{id}/related", h.handleRelatedEntities)
		api.Post("/entities/{fromId}/relationships/{toId}", h.handleCreateRelationship)
		api.Delete("/entities/{fromId}/relationships/{toId}", h.handleDeleteRelationship)
		api.Get("/schema", h.handleSchema)
		api.Post("/ingredients/similar", h.handleFindSimilar)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListEntities(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.SearchEntities(r.Context(), domain.SearchParams{
		Name:         q.Get("name"),
		Type:         q.Get("type"),
		NameFragment: q.Get("nameFragment"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	e, err := h.service.GetEntity(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	e, err := h.service.CreateEntity(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	e, err := h.service.UpdateEntity(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteEntity(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRelatedEntities(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.service.RelatedEntities(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	fromID, ok := pathID(w, r, "fromId")
	if !ok {
		return
	}
	toID, ok := pathID(w, r, "toId")
	if !ok {
		return
	}
	if err := h.service.CreateRelationship(r.Context(), fromID, toID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	fromID, ok := pathID(w, r, "fromId")
	if !ok {
		return
	}
	toID, ok := pathID(w, r, "toId")
	if !ok {
		return
	}
	if err := h.service.DeleteRelationship(r.Context(), fromID, toID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.service.Schema(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	var req domain.FindSimilarIngredientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	list, err := h.service.FindSimilarIngredients(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	parsed, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || parsed == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+name)
		return 0, false
	}
	return uint(parsed), true
}

// writeError maps service errors onto status codes and the {code, message}
// body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeAPIError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message)
	case errors.Is(err, domain.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrDuplicateEdge):
		writeAPIError(w, http.StatusConflict, "DUPLICATE_RELATIONSHIP", err.Error())
	case errors.Is(err, domain.ErrSchemaViolation):
		writeAPIError(w, http.StatusUnprocessableEntity, "SCHEMA_VIOLATION", err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, domain.ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
