// Package clients holds the HTTP clients the orchestrator uses to reach the
// ledger and blocker services. Both use a short dial timeout and an overall
// request timeout so a dead downstream cannot stall the saga.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/api/problem"
	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

// Rejection is a business refusal relayed from a downstream service. Its
// message is safe to show to the caller.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// AdjustRequest is the wire form of one balance mutation.
type AdjustRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	AccountID *uuid.UUID      `json:"accountId,omitempty"`
}

// LedgerClient talks to the balance-ledger service.
type LedgerClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewLedgerClient(baseURL string, connectTimeout, readTimeout time.Duration, logger *zap.Logger) *LedgerClient {
	return &LedgerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(connectTimeout, readTimeout),
		logger:  logger,
	}
}

func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: readTimeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConnsPerHost: 16,
		},
	}
}

// Details fetches the holder's primary account snapshot.
func (c *LedgerClient) Details(ctx context.Context, login string) (*models.AccountDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/holders/"+url.PathEscape(login), nil)
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	return c.do(req)
}

// Adjust applies one credit or debit against the holder's account.
func (c *LedgerClient) Adjust(ctx context.Context, login string, adj AdjustRequest) (*models.AccountDetails, error) {
	body, err := json.Marshal(adj)
	if err != nil {
		return nil, fmt.Errorf("encode adjust request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/holders/"+url.PathEscape(login)+"/adjust", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *LedgerClient) do(req *http.Request) (*models.AccountDetails, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("ledger call failed", zap.String("url", req.URL.Path), zap.Error(err))
		return nil, domain.ErrLedgerUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.logger.Warn("ledger returned server error",
			zap.String("url", req.URL.Path), zap.Int("status", resp.StatusCode))
		return nil, domain.ErrLedgerUnavailable
	}
	if resp.StatusCode >= 400 {
		return nil, c.mapProblem(resp)
	}

	var details models.AccountDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		c.logger.Warn("ledger response unreadable", zap.String("url", req.URL.Path), zap.Error(err))
		return nil, domain.ErrLedgerUnavailable
	}
	return &details, nil
}

// mapProblem turns a 4xx problem+json body into a typed business rejection.
func (c *LedgerClient) mapProblem(resp *http.Response) error {
	var pd problem.Details
	if err := json.NewDecoder(resp.Body).Decode(&pd); err != nil {
		pd = problem.Details{}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrAccountNotFound
	case strings.HasSuffix(pd.Type, "insufficient-funds"):
		return domain.ErrInsufficientFunds
	}
	detail := pd.Detail
	if detail == "" {
		detail = "operation rejected by account service"
	}
	return &Rejection{Message: detail}
}
