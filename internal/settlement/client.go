// Package settlement talks to the external settlement network that moves
// money out of the system for external transfers.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
)

type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeDeclined    Outcome = "declined"
	OutcomeUnavailable Outcome = "unavailable"
)

type Result struct {
	Outcome   Outcome
	Reference string
	Reason    string
}

// Request is the wire body of POST /settle.
type Request struct {
	TransferID    uuid.UUID       `json:"transfer_id"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Response is the wire body the settlement network answers with.
type Response struct {
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client whose calls are bounded by timeout and throttled
// to rps requests per second. rps <= 0 disables throttling.
func NewClient(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SubmitExternal asks the network to settle t. Transport failures, timeouts,
// throttling past the deadline and 5xx answers all come back as
// OutcomeUnavailable with an error wrapping domain.ErrExternalUnavailable.
// A declined transfer is not an error.
func (c *Client) SubmitExternal(ctx context.Context, t *domain.Transfer) (Result, error) {
	log := logging.FromContext(ctx)

	if t.DestAccountNumber == nil {
		return Result{}, fmt.Errorf("SubmitExternal: %w: missing destination account number", domain.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return unavailable(fmt.Errorf("SubmitExternal: throttle: %w", err))
	}

	body, err := json.Marshal(Request{
		TransferID:    t.ID,
		AccountNumber: *t.DestAccountNumber,
		Amount:        t.Amount,
		Currency:      string(t.Currency),
	})
	if err != nil {
		return Result{}, fmt.Errorf("SubmitExternal: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("SubmitExternal: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Info("settlement request sent", "transfer_id", t.ID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return unavailable(fmt.Errorf("SubmitExternal: send: %w", err))
	}
	defer resp.Body.Close()

	log.Info("settlement response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return unavailable(fmt.Errorf("SubmitExternal: unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	// Any other 4xx is final: resending the same request cannot succeed.
	clientError := resp.StatusCode >= http.StatusBadRequest

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		if clientError {
			return rejected(resp.StatusCode), nil
		}
		return unavailable(fmt.Errorf("SubmitExternal: decode: %w", err))
	}

	switch Outcome(out.Status) {
	case OutcomeAccepted:
		return Result{Outcome: OutcomeAccepted, Reference: out.Reference}, nil
	case OutcomeDeclined:
		reason := out.Reason
		if reason == "" {
			reason = "declined by settlement network"
		}
		return Result{Outcome: OutcomeDeclined, Reason: reason}, nil
	default:
		if clientError {
			return rejected(resp.StatusCode), nil
		}
		return unavailable(fmt.Errorf("SubmitExternal: unknown status %q (http %d)", out.Status, resp.StatusCode))
	}
}

func rejected(status int) Result {
	return Result{Outcome: OutcomeDeclined, Reason: fmt.Sprintf("settlement network rejected the request (http %d)", status)}
}

func unavailable(err error) (Result, error) {
	return Result{Outcome: OutcomeUnavailable, Reason: err.Error()}, fmt.Errorf("%w: %w", domain.ErrExternalUnavailable, err)
}
