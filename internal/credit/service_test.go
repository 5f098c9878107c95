package credit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/RFarrand/commis/internal/audit"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/workflow"
)

func financeActor() workflow.Actor {
	return workflow.Actor{ID: "fin-1", Roles: []workflow.Role{workflow.RoleFinance}, Human: true}
}

func TestService_Create(t *testing.T) {
	type testCase struct {
		name      string
		actor     workflow.Actor
		params    credit.CreateParams
		setupMock func(m *credit.MockRepository)
		wantErr   error
	}

	validParams := credit.CreateParams{
		InvestorID: uuid.New(),
		Scope:      credit.ScopeFund,
		Currency:   "EUR",
		Amount:     money.MustParse("500"),
	}

	tests := []testCase{
		{
			name:   "Success",
			actor:  financeActor(),
			params: validParams,
			setupMock: func(m *credit.MockRepository) {
				m.EXPECT().
					CreateCredit(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, c *credit.Credit) error {
						c.ID = uuid.New()
						c.CreatedAt = time.Now()
						return nil
					})
			},
		},
		{
			name:    "OperationsCannotGrant",
			actor:   workflow.Actor{ID: "ops-1", Roles: []workflow.Role{workflow.RoleOperations}},
			params:  validParams,
			wantErr: workflow.ErrForbidden,
		},
		{
			name:  "NegativeAmount",
			actor: financeActor(),
			params: credit.CreateParams{
				InvestorID: uuid.New(),
				Scope:      credit.ScopeFund,
				Currency:   "EUR",
				Amount:     money.MustParse("-1"),
			},
			wantErr: workflow.ErrValidation,
		},
		{
			name:  "UnknownScope",
			actor: financeActor(),
			params: credit.CreateParams{
				InvestorID: uuid.New(),
				Scope:      credit.Scope("GLOBAL"),
				Currency:   "EUR",
				Amount:     money.MustParse("1"),
			},
			wantErr: workflow.ErrValidation,
		},
		{
			name:  "MissingInvestor",
			actor: financeActor(),
			params: credit.CreateParams{
				Scope:    credit.ScopeFund,
				Currency: "EUR",
				Amount:   money.MustParse("1"),
			},
			wantErr: workflow.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := credit.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := credit.NewService(repo, audit.NopSink{})
			got, err := svc.Create(context.Background(), tt.actor, tt.params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, credit.StatusActive, got.Status)
			assert.True(t, got.Remaining.Equal(got.Original))
		})
	}
}

func TestService_Void(t *testing.T) {
	id := uuid.New()

	type testCase struct {
		name      string
		setupMock func(m *credit.MockRepository)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Success",
			setupMock: func(m *credit.MockRepository) {
				m.EXPECT().
					GetCredit(gomock.Any(), id).
					Return(&credit.Credit{ID: id, Status: credit.StatusActive, Remaining: money.MustParse("100")}, nil)
				m.EXPECT().
					UpdateStatus(gomock.Any(), id, credit.StatusVoided).
					Return(nil)
			},
		},
		{
			name: "AlreadyVoidedIsIdempotent",
			setupMock: func(m *credit.MockRepository) {
				m.EXPECT().
					GetCredit(gomock.Any(), id).
					Return(&credit.Credit{ID: id, Status: credit.StatusVoided}, nil)
			},
		},
		{
			name: "DepletedCannotBeVoided",
			setupMock: func(m *credit.MockRepository) {
				m.EXPECT().
					GetCredit(gomock.Any(), id).
					Return(&credit.Credit{ID: id, Status: credit.StatusDepleted}, nil)
			},
			wantErr: workflow.ErrInvalidTransition,
		},
		{
			name: "RepoError",
			setupMock: func(m *credit.MockRepository) {
				m.EXPECT().
					GetCredit(gomock.Any(), id).
					Return(nil, errors.New("db error"))
			},
			wantErr: errors.New("db error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := credit.NewMockRepository(ctrl)
			tt.setupMock(repo)

			svc := credit.NewService(repo, audit.NopSink{})
			got, err := svc.Void(context.Background(), financeActor(), id)

			if tt.wantErr != nil {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, credit.StatusVoided, got.Status)
		})
	}
}
