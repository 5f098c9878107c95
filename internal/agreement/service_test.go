package agreement_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/agreement"
	"github.com/RFarrand/commis/internal/vat"
	"github.com/RFarrand/commis/internal/workflow"
)

type agreementRepo struct {
	byID map[uuid.UUID]*agreement.Agreement
}

func newAgreementRepo() *agreementRepo {
	return &agreementRepo{byID: map[uuid.UUID]*agreement.Agreement{}}
}

func (r *agreementRepo) CreateAgreement(_ context.Context, a *agreement.Agreement) error {
	a.ID = uuid.New()
	r.byID[a.ID] = a

	return nil
}

func (r *agreementRepo) GetAgreement(_ context.Context, id uuid.UUID) (*agreement.Agreement, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, agreement.ErrNotFound
	}

	cp := *a

	return &cp, nil
}

func (r *agreementRepo) ListAgreements(context.Context, agreement.ListFilter) ([]*agreement.Agreement, error) {
	out := make([]*agreement.Agreement, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}

	return out, nil
}

func (r *agreementRepo) UpdateAgreement(_ context.Context, a *agreement.Agreement) error {
	if _, ok := r.byID[a.ID]; !ok {
		return agreement.ErrNotFound
	}

	r.byID[a.ID] = a

	return nil
}

func (r *agreementRepo) Supersede(_ context.Context, old, amendment *agreement.Agreement) error {
	stored, ok := r.byID[old.ID]
	if !ok {
		return agreement.ErrNotFound
	}

	stored.Status = agreement.StatusSuperseded
	amendment.ID = uuid.New()
	r.byID[amendment.ID] = amendment

	return nil
}

func trackPtr(t agreement.Track) *agreement.Track { return &t }

func fundParams() agreement.CreateParams {
	return agreement.CreateParams{
		PartyID:     uuid.New(),
		Scope:       agreement.ScopeFund,
		PricingMode: agreement.PricingTrack,
		Track:       trackPtr(agreement.TrackA),
		Terms:       agreement.RateTerms{CommissionPercent: decimal.RequireFromString("2")},
		VATMode:     vat.ModeAdded,
		VATCountry:  "PT",
	}
}

func TestAgreementCreate(t *testing.T) {
	type testCase struct {
		name    string
		mutate  func(*agreement.CreateParams)
		wantErr bool
	}

	tests := []testCase{
		{name: "FundWithTrack", mutate: func(*agreement.CreateParams) {}},
		{
			name: "DealWithCustomPricing",
			mutate: func(p *agreement.CreateParams) {
				p.Scope = agreement.ScopeDeal
				p.PricingMode = agreement.PricingCustom
				p.Track = nil
			},
		},
		{
			name: "FundWithCustomPricingRejected",
			mutate: func(p *agreement.CreateParams) {
				p.PricingMode = agreement.PricingCustom
				p.Track = nil
			},
			wantErr: true,
		},
		{
			name:    "TrackPricingWithoutTrack",
			mutate:  func(p *agreement.CreateParams) { p.Track = nil },
			wantErr: true,
		},
		{
			name:    "UnknownTrack",
			mutate:  func(p *agreement.CreateParams) { p.Track = trackPtr("Z") },
			wantErr: true,
		},
		{
			name:    "UnknownScope",
			mutate:  func(p *agreement.CreateParams) { p.Scope = "GLOBAL" },
			wantErr: true,
		},
		{
			name:    "UnknownVATMode",
			mutate:  func(p *agreement.CreateParams) { p.VATMode = "reverse_charge" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := agreement.NewService(newAgreementRepo())

			params := fundParams()
			tt.mutate(&params)

			got, err := svc.Create(context.Background(), params)
			if tt.wantErr {
				assert.ErrorIs(t, err, workflow.ErrValidation)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, agreement.StatusDraft, got.Status)
			assert.Equal(t, 1, got.Version)
		})
	}
}

func TestAgreementUpdateStatus(t *testing.T) {
	repo := newAgreementRepo()
	svc := agreement.NewService(repo)

	created, err := svc.Create(context.Background(), fundParams())
	require.NoError(t, err)

	// Cannot skip straight to approved.
	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusApproved)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	active, err := svc.UpdateStatus(context.Background(), created.ID, agreement.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, agreement.StatusActive, active.Status)

	approved, err := svc.UpdateStatus(context.Background(), created.ID, agreement.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, agreement.StatusApproved, approved.Status)

	// Approved is the end of the line.
	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusActive)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestAgreementUpdate_ApprovedIsImmutable(t *testing.T) {
	repo := newAgreementRepo()
	svc := agreement.NewService(repo)

	created, err := svc.Create(context.Background(), fundParams())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusActive)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusApproved)
	require.NoError(t, err)

	created.VATCountry = "DE"
	err = svc.Update(context.Background(), created)
	assert.ErrorIs(t, err, agreement.ErrImmutable)
}

func TestAgreementUpdate_DraftIsEditable(t *testing.T) {
	repo := newAgreementRepo()
	svc := agreement.NewService(repo)

	created, err := svc.Create(context.Background(), fundParams())
	require.NoError(t, err)

	created.VATCountry = "DE"
	require.NoError(t, svc.Update(context.Background(), created))

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "DE", got.VATCountry)
}

func TestAmend(t *testing.T) {
	repo := newAgreementRepo()
	svc := agreement.NewService(repo)

	created, err := svc.Create(context.Background(), fundParams())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusActive)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), created.ID, agreement.StatusApproved)
	require.NoError(t, err)

	params := fundParams()
	params.Track = trackPtr(agreement.TrackB)

	amendment, err := svc.Amend(context.Background(), created.ID, params)
	require.NoError(t, err)

	assert.Equal(t, 2, amendment.Version)
	require.NotNil(t, amendment.SupersedesID)
	assert.Equal(t, created.ID, *amendment.SupersedesID)
	assert.Equal(t, agreement.StatusDraft, amendment.Status)
	assert.Equal(t, created.PartyID, amendment.PartyID)

	old, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, agreement.StatusSuperseded, old.Status)
}

func TestAmend_RequiresApproved(t *testing.T) {
	repo := newAgreementRepo()
	svc := agreement.NewService(repo)

	created, err := svc.Create(context.Background(), fundParams())
	require.NoError(t, err)

	_, err = svc.Amend(context.Background(), created.ID, fundParams())
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}
