package agreement

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/agreement"
	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/vat"
)

type Handler struct {
	svc *agreement.Service
}

func NewHandler(svc *agreement.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/status", h.updateStatus)
	r.Post("/{id}/amend", h.amend)
}

type agreementRequest struct {
	PartyID     uuid.UUID             `json:"party_id"`
	Scope       agreement.Scope       `json:"scope"`
	PricingMode agreement.PricingMode `json:"pricing_mode"`
	Track       *agreement.Track      `json:"track,omitempty"`
	Terms       agreement.RateTerms   `json:"terms"`
	VATMode     vat.Mode              `json:"vat_mode"`
	VATCountry  string                `json:"vat_country"`
}

func (req agreementRequest) params() agreement.CreateParams {
	return agreement.CreateParams{
		PartyID:     req.PartyID,
		Scope:       req.Scope,
		PricingMode: req.PricingMode,
		Track:       req.Track,
		Terms:       req.Terms,
		VATMode:     req.VATMode,
		VATCountry:  req.VATCountry,
	}
}

type agreementResponse struct {
	ID           uuid.UUID             `json:"id"`
	PartyID      uuid.UUID             `json:"party_id"`
	Scope        agreement.Scope       `json:"scope"`
	PricingMode  agreement.PricingMode `json:"pricing_mode"`
	Track        *agreement.Track      `json:"track,omitempty"`
	Terms        agreement.RateTerms   `json:"terms"`
	Status       agreement.Status      `json:"status"`
	VATMode      vat.Mode              `json:"vat_mode"`
	VATCountry   string                `json:"vat_country"`
	Version      int                   `json:"version"`
	SupersedesID *uuid.UUID            `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

func toResponse(a *agreement.Agreement) agreementResponse {
	return agreementResponse{
		ID:           a.ID,
		PartyID:      a.PartyID,
		Scope:        a.Scope,
		PricingMode:  a.PricingMode,
		Track:        a.Track,
		Terms:        a.Terms,
		Status:       a.Status,
		VATMode:      a.VATMode,
		VATCountry:   a.VATCountry,
		Version:      a.Version,
		SupersedesID: a.SupersedesID,
		CreatedAt:    a.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req agreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), req.params())
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := agreement.ListFilter{}

	if s := r.URL.Query().Get("party_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid party_id", http.StatusBadRequest)
			return
		}

		filter.PartyID = &id
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(agreement.Status(s))
	}

	agreements, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]agreementResponse, len(agreements))
	for i, a := range agreements {
		out[i] = toResponse(a)
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
		if errors.Is(err, agreement.ErrNotFound) {
			respond.NotFound(w, "agreement not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}

type updateStatusRequest struct {
	Status agreement.Status `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, agreement.ErrNotFound) {
			respond.NotFound(w, "agreement not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) amend(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req agreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	amended, err := h.svc.Amend(r.Context(), id, req.params())
	if err != nil {
		if errors.Is(err, agreement.ErrNotFound) {
			respond.NotFound(w, "agreement not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(amended))
}
