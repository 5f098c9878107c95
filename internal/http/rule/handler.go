package rule

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/rule"
)

type Handler struct {
	svc *rule.Service
}

func NewHandler(svc *rule.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
}

type ruleRequest struct {
	Name        string                `json:"name"`
	Variant     rule.Variant          `json:"variant"`
	AgreementID *uuid.UUID            `json:"agreement_id,omitempty"`
	Priority    int                   `json:"priority"`
	Combinable  bool                  `json:"combinable"`
	RatePercent *decimal.Decimal      `json:"rate_percent,omitempty"`
	FixedAmount *decimal.Decimal      `json:"fixed_amount,omitempty"`
	Threshold   *decimal.Decimal      `json:"threshold,omitempty"`
	Basis       rule.Basis            `json:"basis,omitempty"`
	RefRuleID   *uuid.UUID            `json:"ref_rule_id,omitempty"`
	Groups      []rule.ConditionGroup `json:"condition_groups,omitempty"`
	Tiers       []rule.Tier           `json:"tiers,omitempty"`

	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}

func (req ruleRequest) model() *rule.Rule {
	return &rule.Rule{
		Name:          req.Name,
		Variant:       req.Variant,
		AgreementID:   req.AgreementID,
		Priority:      req.Priority,
		Combinable:    req.Combinable,
		RatePercent:   req.RatePercent,
		FixedAmount:   req.FixedAmount,
		Threshold:     req.Threshold,
		Basis:         req.Basis,
		RefRuleID:     req.RefRuleID,
		Groups:        req.Groups,
		Tiers:         req.Tiers,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	}
}

type ruleResponse struct {
	ID            uuid.UUID             `json:"id"`
	Name          string                `json:"name"`
	Variant       rule.Variant          `json:"variant"`
	AgreementID   *uuid.UUID            `json:"agreement_id,omitempty"`
	Priority      int                   `json:"priority"`
	Combinable    bool                  `json:"combinable"`
	RatePercent   *decimal.Decimal      `json:"rate_percent,omitempty"`
	FixedAmount   *decimal.Decimal      `json:"fixed_amount,omitempty"`
	Threshold     *decimal.Decimal      `json:"threshold,omitempty"`
	Basis         rule.Basis            `json:"basis,omitempty"`
	RefRuleID     *uuid.UUID            `json:"ref_rule_id,omitempty"`
	Groups        []rule.ConditionGroup `json:"condition_groups,omitempty"`
	Tiers         []rule.Tier           `json:"tiers,omitempty"`
	EffectiveFrom time.Time             `json:"effective_from"`
	EffectiveTo   *time.Time            `json:"effective_to,omitempty"`
	Version       int                   `json:"version"`
	Checksum      string                `json:"checksum"`
	Active        bool                  `json:"active"`
	CreatedAt     time.Time             `json:"created_at"`
}

func toResponse(r *rule.Rule) ruleResponse {
	return ruleResponse{
		ID:            r.ID,
		Name:          r.Name,
		Variant:       r.Variant,
		AgreementID:   r.AgreementID,
		Priority:      r.Priority,
		Combinable:    r.Combinable,
		RatePercent:   r.RatePercent,
		FixedAmount:   r.FixedAmount,
		Threshold:     r.Threshold,
		Basis:         r.Basis,
		RefRuleID:     r.RefRuleID,
		Groups:        r.Groups,
		Tiers:         r.Tiers,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Version:       r.Version,
		Checksum:      r.Checksum,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), req.model())
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := rule.ListFilter{}

	if r.URL.Query().Get("active") == "true" {
		filter.ActiveOnly = true
	}

	if s := r.URL.Query().Get("in_effect_at"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			http.Error(w, "invalid in_effect_at", http.StatusBadRequest)
			return
		}

		filter.InEffectAt = &t
	}

	if s := r.URL.Query().Get("agreement_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid agreement_id", http.StatusBadRequest)
			return
		}

		filter.AgreementID = &id
	}

	rules, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]ruleResponse, len(rules))
	for i, found := range rules {
		out[i] = toResponse(found)
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
		if errors.Is(err, rule.ErrNotFound) {
			respond.NotFound(w, "rule not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(found))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	model := req.model()
	model.ID = id

	updated, err := h.svc.Update(r.Context(), model)
	if err != nil {
		if errors.Is(err, rule.ErrNotFound) {
			respond.NotFound(w, "rule not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, rule.ErrNotFound) {
			respond.NotFound(w, "rule not found")
			return
		}

		respond.Error(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
