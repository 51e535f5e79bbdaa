package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/risk"
)

// BlockerClient asks the blocker service whether a movement may proceed. It
// fails open: when the blocker is unreachable, times out, or answers with
// anything but a readable verdict, the movement is allowed and the failure is
// logged and counted.
type BlockerClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewBlockerClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BlockerClient {
	return &BlockerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout, timeout),
		logger:  logger,
	}
}

func (c *BlockerClient) Decide(ctx context.Context, check risk.Check) risk.Decision {
	body, err := json.Marshal(check)
	if err != nil {
		return c.failOpen(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/check", bytes.NewReader(body))
	if err != nil {
		return c.failOpen(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.failOpen(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("risk gate unavailable, allowing operation", zap.Int("status", resp.StatusCode))
		observability.IncrementRiskFailOpen()
		return risk.Decision{Allowed: true}
	}

	var decision risk.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return c.failOpen(err)
	}
	return decision
}

func (c *BlockerClient) failOpen(err error) risk.Decision {
	c.logger.Warn("risk gate unavailable, allowing operation", zap.Error(err))
	observability.IncrementRiskFailOpen()
	return risk.Decision{Allowed: true}
}
