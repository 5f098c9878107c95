package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
	"github.com/RFarrand/commis/internal/run"
)

type lineResponse struct {
	ID             uuid.UUID    `json:"id"`
	ContributionID uuid.UUID    `json:"contribution_id"`
	RuleID         uuid.UUID    `json:"rule_id"`
	RuleChecksum   string       `json:"rule_checksum"`
	Variant        rule.Variant `json:"variant"`
	Scope          string       `json:"scope"`
	Base           money.Money  `json:"base"`
	Net            money.Money  `json:"net"`
	VAT            money.Money  `json:"vat"`
	Gross          money.Money  `json:"gross"`
	FrozenAt       *time.Time   `json:"frozen_at,omitempty"`
}

type outcomeResponse struct {
	RuleID   uuid.UUID          `json:"rule_id"`
	Checksum string             `json:"checksum"`
	Status   rule.OutcomeStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
}

type runResponse struct {
	ID              uuid.UUID              `json:"id"`
	AgreementID     uuid.UUID              `json:"agreement_id"`
	PeriodStart     string                 `json:"period_start"`
	PeriodEnd       string                 `json:"period_end"`
	TotalNet        money.Money            `json:"total_net"`
	TotalVAT        money.Money            `json:"total_vat"`
	TotalGross      money.Money            `json:"total_gross"`
	ScopeNet        map[string]money.Money `json:"scope_net"`
	RulesetVersion  int                    `json:"ruleset_version"`
	RulesetChecksum string                 `json:"ruleset_checksum"`
	Hash            string                 `json:"hash"`
	Status          run.Status             `json:"status"`
	ReviewedBy      string                 `json:"reviewed_by,omitempty"`
	ApprovedBy      string                 `json:"approved_by,omitempty"`
	Lines           []lineResponse         `json:"lines,omitempty"`
	Outcomes        []outcomeResponse      `json:"outcomes,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

func toResponse(r *run.Run) runResponse {
	resp := runResponse{
		ID:              r.ID,
		AgreementID:     r.AgreementID,
		PeriodStart:     r.PeriodStart.Format(time.DateOnly),
		PeriodEnd:       r.PeriodEnd.Format(time.DateOnly),
		TotalNet:        r.TotalNet,
		TotalVAT:        r.TotalVAT,
		TotalGross:      r.TotalGross,
		ScopeNet:        r.ScopeNet,
		RulesetVersion:  r.RulesetVersion,
		RulesetChecksum: r.RulesetChecksum,
		Hash:            r.Hash,
		Status:          r.Status,
		ReviewedBy:      r.ReviewedBy,
		ApprovedBy:      r.ApprovedBy,
		CreatedAt:       r.CreatedAt,
	}

	for _, line := range r.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:             line.ID,
			ContributionID: line.ContributionID,
			RuleID:         line.RuleID,
			RuleChecksum:   line.RuleChecksum,
			Variant:        line.Variant,
			Scope:          line.Scope,
			Base:           line.Base,
			Net:            line.Net,
			VAT:            line.VAT,
			Gross:          line.Gross,
			FrozenAt:       line.FrozenAt,
		})
	}

	for _, o := range r.Outcomes {
		resp.Outcomes = append(resp.Outcomes, toOutcomeResponse(o))
	}

	return resp
}

func toResponseList(runs []*run.Run) []runResponse {
	out := make([]runResponse, len(runs))
	for i, r := range runs {
		out[i] = toResponse(r)
	}

	return out
}

func toOutcomeResponse(o rule.Outcome) outcomeResponse {
	return outcomeResponse{RuleID: o.RuleID, Checksum: o.Checksum, Status: o.Status, Reason: o.Reason}
}

type evaluationResponse struct {
	ContributionID uuid.UUID         `json:"contribution_id"`
	Outcomes       []outcomeResponse `json:"outcomes"`
	Lines          []lineResponse    `json:"lines,omitempty"`
}

func toEvaluationResponse(inputs []run.Input) []evaluationResponse {
	out := make([]evaluationResponse, len(inputs))

	for i, in := range inputs {
		resp := evaluationResponse{ContributionID: in.Contribution.ID}

		for _, o := range in.Outcomes {
			resp.Outcomes = append(resp.Outcomes, toOutcomeResponse(o))

			if o.Status == rule.OutcomeApplied && o.Line != nil {
				line := *o.Line
				resp.Lines = append(resp.Lines, lineResponse{
					ContributionID: line.ContributionID,
					RuleID:         line.RuleID,
					RuleChecksum:   line.RuleChecksum,
					Variant:        line.Variant,
					Scope:          line.Scope,
					Base:           line.Base,
					Net:            line.Net,
					VAT:            line.VAT,
					Gross:          line.Gross,
				})
			}
		}

		out[i] = resp
	}

	return out
}
