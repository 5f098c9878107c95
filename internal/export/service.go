package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RFarrand/commis/internal/run"
)

// Service pushes approved runs to the downstream settlement endpoint.
type Service struct {
	client   *http.Client
	endpoint string
	apiToken string
}

func NewService(endpoint, apiToken string) *Service {
	return &Service{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		apiToken: apiToken,
	}
}

type payloadLine struct {
	ContributionID string `json:"contribution_id"`
	RuleID         string `json:"rule_id"`
	Method         string `json:"method"`
	Scope          string `json:"scope"`
	Net            string `json:"net"`
	VAT            string `json:"vat"`
	Gross          string `json:"gross"`
}

type payload struct {
	RunID       string        `json:"run_id"`
	Hash        string        `json:"hash"`
	PeriodStart string        `json:"period_start"`
	PeriodEnd   string        `json:"period_end"`
	TotalNet    string        `json:"total_net"`
	TotalVAT    string        `json:"total_vat"`
	TotalGross  string        `json:"total_gross"`
	Lines       []payloadLine `json:"lines"`
}

// Push posts the run's settlement payload. A non-2xx response fails the
// export transition; the run stays approved.
func (s *Service) Push(ctx context.Context, r *run.Run) error {
	p := payload{
		RunID:       r.ID.String(),
		Hash:        r.Hash,
		PeriodStart: r.PeriodStart.Format(time.DateOnly),
		PeriodEnd:   r.PeriodEnd.Format(time.DateOnly),
		TotalNet:    r.TotalNet.String(),
		TotalVAT:    r.TotalVAT.String(),
		TotalGross:  r.TotalGross.String(),
	}

	for _, line := range r.Lines {
		p.Lines = append(p.Lines, payloadLine{
			ContributionID: line.ContributionID.String(),
			RuleID:         line.RuleID.String(),
			Method:         line.Method,
			Scope:          line.Scope,
			Net:            line.Net.String(),
			VAT:            line.VAT.String(),
			Gross:          line.Gross.String(),
		})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshalling export payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.apiToken != "" {
		req.Header.Set("Authorization", "Token "+s.apiToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code %d from settlement endpoint", resp.StatusCode)
	}

	return nil
}
