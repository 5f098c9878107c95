package contribution

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/money"
)

type Handler struct {
	svc *contribution.Service
}

func NewHandler(svc *contribution.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

type contributionResponse struct {
	ID         uuid.UUID   `json:"id"`
	InvestorID uuid.UUID   `json:"investor_id"`
	FundID     *uuid.UUID  `json:"fund_id,omitempty"`
	DealID     *uuid.UUID  `json:"deal_id,omitempty"`
	Amount     money.Money `json:"amount"`
	Currency   string      `json:"currency"`
	Scope      string      `json:"scope"`
	Date       time.Time   `json:"date"`
	CreatedAt  time.Time   `json:"created_at"`
}

func toResponse(c *contribution.Contribution) contributionResponse {
	return contributionResponse{
		ID:         c.ID,
		InvestorID: c.InvestorID,
		FundID:     c.FundID,
		DealID:     c.DealID,
		Amount:     c.Amount,
		Currency:   c.Currency,
		Scope:      c.Scope(),
		Date:       c.Date,
		CreatedAt:  c.CreatedAt,
	}
}

type createContributionRequest struct {
	InvestorID uuid.UUID   `json:"investor_id"`
	FundID     *uuid.UUID  `json:"fund_id,omitempty"`
	DealID     *uuid.UUID  `json:"deal_id,omitempty"`
	Amount     money.Money `json:"amount"`
	Currency   string      `json:"currency"`
	Date       time.Time   `json:"date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), contribution.CreateParams{
		InvestorID: req.InvestorID,
		FundID:     req.FundID,
		DealID:     req.DealID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Date:       req.Date,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := contribution.ListFilter{}

	if s := r.URL.Query().Get("investor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid investor_id", http.StatusBadRequest)
			return
		}

		filter.InvestorID = &id
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.StartDate = &t
		}
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.EndDate = &t
		}
	}

	contribs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]contributionResponse, len(contribs))
	for i, c := range contribs {
		out[i] = toResponse(c)
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
		if errors.Is(err, contribution.ErrNotFound) {
			respond.NotFound(w, "contribution not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}
