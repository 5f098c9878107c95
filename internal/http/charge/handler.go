package charge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/auth"
	"github.com/RFarrand/commis/internal/charge"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/workflow"
)

type Handler struct {
	svc *charge.Service
}

func NewHandler(svc *charge.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/pay", h.pay)
}

type createChargeRequest struct {
	InvestorID  uuid.UUID    `json:"investor_id"`
	AgreementID *uuid.UUID   `json:"agreement_id,omitempty"`
	Scope       credit.Scope `json:"scope"`
	Currency    string       `json:"currency"`
	Amount      money.Money  `json:"amount"`
	Description string       `json:"description"`
}

type chargeResponse struct {
	ID          uuid.UUID     `json:"id"`
	InvestorID  uuid.UUID     `json:"investor_id"`
	AgreementID *uuid.UUID    `json:"agreement_id,omitempty"`
	Scope       credit.Scope  `json:"scope"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	Amount      money.Money   `json:"amount"`
	NetPayable  money.Money   `json:"net_payable"`
	Status      charge.Status `json:"status"`
	SubmittedBy string        `json:"submitted_by,omitempty"`
	ApprovedBy  string        `json:"approved_by,omitempty"`
	PaidBy      string        `json:"paid_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toResponse(c *charge.Charge) chargeResponse {
	return chargeResponse{
		ID:          c.ID,
		InvestorID:  c.InvestorID,
		AgreementID: c.AgreementID,
		Scope:       c.Scope,
		Currency:    c.Currency,
		Description: c.Description,
		Amount:      c.Amount,
		NetPayable:  c.NetPayable,
		Status:      c.Status,
		SubmittedBy: c.SubmittedBy,
		ApprovedBy:  c.ApprovedBy,
		PaidBy:      c.PaidBy,
		CreatedAt:   c.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), actor, charge.CreateParams{
		InvestorID:  req.InvestorID,
		AgreementID: req.AgreementID,
		Scope:       req.Scope,
		Currency:    req.Currency,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := charge.ListFilter{}

	if s := r.URL.Query().Get("investor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid investor_id", http.StatusBadRequest)
			return
		}

		filter.InvestorID = &id
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(charge.Status(s))
	}

	charges, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]chargeResponse, len(charges))
	for i, c := range charges {
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
		if errors.Is(err, charge.ErrNotFound) {
			respond.NotFound(w, "charge not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Approve)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkPaid)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
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

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	updated, err := h.svc.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		if errors.Is(err, charge.ErrNotFound) {
			respond.NotFound(w, "charge not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

type transitionFunc func(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*charge.Charge, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
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

	updated, err := fn(r.Context(), actor, id)
	if err != nil {
		if errors.Is(err, charge.ErrNotFound) {
			respond.NotFound(w, "charge not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}
