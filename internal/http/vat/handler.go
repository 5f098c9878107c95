package vat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/vat"
)

// RateStore is the slice of the vat store the handler needs.
type RateStore interface {
	ListRates(ctx context.Context) ([]vat.Rate, error)
	CreateRate(ctx context.Context, r *vat.Rate) error
}

type Handler struct {
	store RateStore
}

func NewHandler(store RateStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/rates", h.list)
	r.Post("/rates", h.create)
}

type rateResponse struct {
	ID            uuid.UUID       `json:"id"`
	Country       string          `json:"country"`
	Percent       decimal.Decimal `json:"percent"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   *string         `json:"effective_to,omitempty"`
}

func toResponse(r vat.Rate) rateResponse {
	resp := rateResponse{
		ID:            r.ID,
		Country:       r.Country,
		Percent:       r.Percent,
		EffectiveFrom: r.EffectiveFrom.Format(time.DateOnly),
	}
	if r.EffectiveTo != nil {
		resp.EffectiveTo = new(r.EffectiveTo.Format(time.DateOnly))
	}

	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rates, err := h.store.ListRates(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]rateResponse, len(rates))
	for i, rate := range rates {
		out[i] = toResponse(rate)
	}

	respond.JSON(w, http.StatusOK, out)
}

type createRateRequest struct {
	Country       string          `json:"country"`
	Percent       decimal.Decimal `json:"percent"`
	EffectiveFrom string          `json:"effective_from"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	from, err := time.Parse(time.DateOnly, req.EffectiveFrom)
	if err != nil {
		http.Error(w, "invalid effective_from", http.StatusBadRequest)
		return
	}

	rate := vat.Rate{Country: req.Country, Percent: req.Percent, EffectiveFrom: from}
	if err := h.store.CreateRate(r.Context(), &rate); err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(rate))
}
