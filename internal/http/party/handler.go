package party

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/party"
)

type Handler struct {
	svc *party.Service
}

func NewHandler(svc *party.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/active", h.setActive)
	r.Delete("/{id}", h.delete)
}

type partyResponse struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Role      party.RoleTag `json:"role"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

func toResponse(p *party.Party) partyResponse {
	return partyResponse{ID: p.ID, Name: p.Name, Role: p.Role, Active: p.Active, CreatedAt: p.CreatedAt}
}

type createPartyRequest struct {
	Name string        `json:"name"`
	Role party.RoleTag `json:"role"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), party.CreateParams{Name: req.Name, Role: req.Role})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	parties, err := h.svc.List(r.Context(), activeOnly)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]partyResponse, len(parties))
	for i, p := range parties {
		out[i] = toResponse(p)
	}

	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	found, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, party.ErrNotFound) {
			respond.NotFound(w, "party not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.svc.SetActive(r.Context(), id, req.Active)
	if err != nil {
		if errors.Is(err, party.ErrNotFound) {
			respond.NotFound(w, "party not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, party.ErrNotFound):
			respond.NotFound(w, "party not found")
		case errors.Is(err, party.ErrReferenced):
			http.Error(w, "party is referenced by agreements", http.StatusConflict)
		default:
			respond.Error(w, err)
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
