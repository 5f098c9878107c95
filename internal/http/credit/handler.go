package credit

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/auth"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/money"
)

type Handler struct {
	svc *credit.Service
}

func NewHandler(svc *credit.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/void", h.void)
}

type creditResponse struct {
	ID         uuid.UUID     `json:"id"`
	InvestorID uuid.UUID     `json:"investor_id"`
	Type       string        `json:"type,omitempty"`
	Scope      credit.Scope  `json:"scope"`
	Currency   string        `json:"currency"`
	Original   money.Money   `json:"original"`
	Remaining  money.Money   `json:"remaining"`
	Status     credit.Status `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

func toResponse(c *credit.Credit) creditResponse {
	return creditResponse{
		ID:         c.ID,
		InvestorID: c.InvestorID,
		Type:       c.Type,
		Scope:      c.Scope,
		Currency:   c.Currency,
		Original:   c.Original,
		Remaining:  c.Remaining,
		Status:     c.Status,
		CreatedAt:  c.CreatedAt,
	}
}

type createCreditRequest struct {
	InvestorID uuid.UUID    `json:"investor_id"`
	Type       string       `json:"type"`
	Scope      credit.Scope `json:"scope"`
	Currency   string       `json:"currency"`
	Amount     money.Money  `json:"amount"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), actor, credit.CreateParams{
		InvestorID: req.InvestorID,
		Type:       req.Type,
		Scope:      req.Scope,
		Currency:   req.Currency,
		Amount:     req.Amount,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := credit.ListFilter{}

	if s := r.URL.Query().Get("investor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid investor_id", http.StatusBadRequest)
			return
		}

		filter.InvestorID = &id
	}

	if s := r.URL.Query().Get("scope"); s != "" {
		filter.Scope = new(credit.Scope(s))
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(credit.Status(s))
	}

	credits, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]creditResponse, len(credits))
	for i, c := range credits {
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
		if errors.Is(err, credit.ErrNotFound) {
			respond.NotFound(w, "credit not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	voided, err := h.svc.Void(r.Context(), actor, id)
	if err != nil {
		if errors.Is(err, credit.ErrNotFound) {
			respond.NotFound(w, "credit not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(voided))
}
