package run

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/auth"
	"github.com/RFarrand/commis/internal/http/respond"
	"github.com/RFarrand/commis/internal/run"
	"github.com/RFarrand/commis/internal/workflow"
)

type Handler struct {
	svc *run.Service
}

func NewHandler(svc *run.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/export", h.export)
}

type createRunRequest struct {
	AgreementID uuid.UUID `json:"agreement_id"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
}

func (req createRunRequest) params() (run.CreateParams, error) {
	start, err := time.Parse(time.DateOnly, req.PeriodStart)
	if err != nil {
		return run.CreateParams{}, err
	}

	end, err := time.Parse(time.DateOnly, req.PeriodEnd)
	if err != nil {
		return run.CreateParams{}, err
	}

	return run.CreateParams{AgreementID: req.AgreementID, PeriodStart: start, PeriodEnd: end}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params, err := req.params()
	if err != nil {
		http.Error(w, "invalid period", http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), actor, params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(created))
}

// Evaluate previews the period's outcomes without persisting a run.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params, err := req.params()
	if err != nil {
		http.Error(w, "invalid period", http.StatusBadRequest)
		return
	}

	inputs, err := h.svc.Evaluate(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toEvaluationResponse(inputs))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var agreementID *uuid.UUID

	if s := r.URL.Query().Get("agreement_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid agreement_id", http.StatusBadRequest)
			return
		}

		agreementID = &id
	}

	runs, err := h.svc.List(r.Context(), agreementID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(runs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	found, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			respond.NotFound(w, "run not found")
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

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Export)
}

type rejectRequest struct {
	Comment string `json:"comment"`
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

	updated, err := h.svc.Reject(r.Context(), actor, id, req.Comment)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			respond.NotFound(w, "run not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

type transitionFunc func(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*run.Run, error)

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
		if errors.Is(err, run.ErrNotFound) {
			respond.NotFound(w, "run not found")
			return
		}

		respond.Error(w, err)

		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}
