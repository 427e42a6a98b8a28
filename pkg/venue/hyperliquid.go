// Package venue submits live orders to the Hyperliquid exchange API over
// allowlisted HTTPS.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	tlsconfig "github.com/Mindburn-Labs/tradetrust/pkg/crypto/tls"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRate    = rate.Limit(5)
	defaultBurst   = 1
	exchangePath   = "/exchange"
	maxErrorBody   = 512
)

// ErrRejected is returned when the exchange answers but refuses the order.
var ErrRejected = executor.ErrOrderRejected

// Config configures the Hyperliquid client.
type Config struct {
	// Endpoint is the API base URL, e.g. "https://api.hyperliquid.xyz".
	Endpoint string
	// Timeout bounds a single submission. Non-positive values use 10s.
	Timeout time.Duration
	// RequestsPerSecond and Burst size the client-side rate limiter.
	RequestsPerSecond float64
	Burst             int
	// AgentWallet is the delegated agent address used in agent_wallet
	// custody mode.
	AgentWallet string
	// HTTPClient overrides the transport; its Timeout is replaced.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Hyperliquid implements executor.Venue.
type Hyperliquid struct {
	endpoint    string
	agentWallet string
	client      *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ executor.Venue = (*Hyperliquid)(nil)

// NewHyperliquid validates the endpoint and builds a client.
func NewHyperliquid(cfg Config) (*Hyperliquid, error) {
	if err := firewall.ValidateTradingEndpoint(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("venue: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsconfig.ClientConfig("")},
	}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		c.Timeout = timeout
		client = &c
	}
	limit := defaultRate
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hyperliquid{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		agentWallet: cfg.AgentWallet,
		client:      client,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger.With("component", "venue", "venue", "hyperliquid"),
	}, nil
}

type orderAction struct {
	Type          string `json:"type"`
	Coin          string `json:"coin"`
	IsBuy         bool   `json:"is_buy"`
	Size          string `json:"sz"`
	LimitPrice    string `json:"limit_px"`
	Leverage      string `json:"leverage"`
	ClientOrderID string `json:"cloid"`
}

type orderRequest struct {
	Action       orderAction `json:"action"`
	VaultAddress string      `json:"vaultAddress,omitempty"`
	DecisionHash string      `json:"decision_hash"`
}

type orderResponse struct {
	Status   string `json:"status"`
	Response struct {
		OrderID string `json:"oid"`
		Error   string `json:"error"`
	} `json:"response"`
}

// Submit sends one order. There is no retry; the caller owns retry policy.
// Failures before the request is written wrap executor.ErrOrderNotSent and
// a 4xx or refused order wraps ErrRejected. Transport errors, 5xx and
// unreadable responses are returned unwrapped since the order may have
// been accepted.
func (h *Hyperliquid) Submit(ctx context.Context, order executor.Order) (string, error) {
	base := h.endpoint
	if order.Endpoint != "" {
		if err := firewall.ValidateTradingEndpoint(order.Endpoint); err != nil {
			return "", fmt.Errorf("venue: %w: %w", executor.ErrOrderNotSent, err)
		}
		base = strings.TrimRight(order.Endpoint, "/")
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("venue: rate limit wait: %w: %w", executor.ErrOrderNotSent, err)
	}

	body := orderRequest{
		Action: orderAction{
			Type:          "order",
			Coin:          order.Symbol,
			IsBuy:         order.Side == contracts.SideBuy,
			Size:          order.Quantity.String(),
			LimitPrice:    order.LimitPrice.String(),
			Leverage:      order.Leverage.String(),
			ClientOrderID: order.ReceiptID,
		},
		VaultAddress: h.agentWallet,
		DecisionHash: order.DecisionHash,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("venue: marshal order: %w: %w", executor.ErrOrderNotSent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+exchangePath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("venue: build request: %w: %w", executor.ErrOrderNotSent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("venue: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("venue: read response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("venue: %w: http %d: %s", ErrRejected, resp.StatusCode, truncate(raw))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("venue: http %d: %s", resp.StatusCode, truncate(raw))
	}

	var out orderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("venue: parse response: %w", err)
	}
	if out.Status != "ok" || out.Response.OrderID == "" {
		reason := out.Response.Error
		if reason == "" {
			reason = out.Status
		}
		return "", fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	h.logger.InfoContext(ctx, "order submitted", "receipt_id", order.ReceiptID, "oid", out.Response.OrderID)
	return out.Response.OrderID, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
