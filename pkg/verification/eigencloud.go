package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	tlsconfig "github.com/Mindburn-Labs/tradetrust/pkg/crypto/tls"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
)

const (
	verifyPath   = "/v1/verify"
	healthPath   = "/health"
	maxBodyBytes = 1 << 20
)

// HealthState classifies an oracle health check.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthUnhealthy   HealthState = "unhealthy"
	HealthUnreachable HealthState = "unreachable"
)

// Health is the result of a health check.
type Health struct {
	Backend    Kind        `json:"backend"`
	State      HealthState `json:"state"`
	StatusCode int         `json:"status_code,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// EigenCloud calls the remote verification oracle.
type EigenCloud struct {
	endpoint string
	scheme   AuthScheme
	token    string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewEigenCloud validates cfg and builds a client. Any problem is a
// *ConfigError.
func NewEigenCloud(cfg EigenCloudConfig, opts ...Option) (*EigenCloud, error) {
	o := buildOptions(opts)

	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, &ConfigError{Field: "eigencloud.endpoint", Reason: "required"}
	}
	if err := firewall.ValidateVerificationEndpoint(cfg.Endpoint); err != nil {
		return nil, &ConfigError{Field: "eigencloud.endpoint", Reason: err.Error()}
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = AuthBearer
	}
	if _, err := ParseAuthScheme(string(scheme)); err != nil {
		return nil, &ConfigError{Field: "eigencloud.auth_scheme", Reason: err.Error()}
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, &ConfigError{Field: "eigencloud.token", Reason: "required"}
	}
	if err := checkTokenExpiry(token, o.now()); err != nil {
		return nil, &ConfigError{Field: "eigencloud.token", Reason: err.Error()}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsconfig.ClientConfig("")},
	}
	if o.httpClient != nil {
		c := *o.httpClient
		c.Timeout = timeout
		client = &c
	}

	return &EigenCloud{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		scheme:   scheme,
		token:    token,
		client:   client,
		logger:   o.logger.With("backend", string(KindEigenCloudPrimary)),
		now:      o.now,
	}, nil
}

// checkTokenExpiry rejects a JWT-shaped token whose exp claim has passed.
// Opaque API keys are accepted as-is; the signature is the oracle's concern.
func checkTokenExpiry(token string, now time.Time) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("malformed exp claim: %w", err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return fmt.Errorf("token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

type verifyRequest struct {
	ReceiptID    string `json:"receipt_id"`
	ReceiptHash  string `json:"receipt_hash"`
	DecisionHash string `json:"decision_hash"`
	IntentID     string `json:"intent_id"`
	Mode         string `json:"mode"`
}

type verifyResponse struct {
	Status   string `json:"status"`
	ProofRef string `json:"proof_ref"`
}

func (c *EigenCloud) authorize(req *http.Request) {
	if c.scheme == AuthAPIKey {
		req.Header.Set("X-API-Key", c.token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// Verify submits the receipt to the oracle. The returned record is always
// populated; the error is non-nil only for local faults or caller
// cancellation. Outcomes: 2xx with a verified body is verified, a timeout is
// pending, anything else is failed.
func (c *EigenCloud) Verify(ctx context.Context, receipt contracts.ExecutionReceipt) (contracts.VerificationRecord, error) {
	receiptHash, err := receipt.Hash()
	if err != nil {
		return contracts.VerificationRecord{}, err
	}
	body, err := json.Marshal(verifyRequest{
		ReceiptID:    receipt.ReceiptID,
		ReceiptHash:  receiptHash,
		DecisionHash: receipt.DecisionHash,
		IntentID:     receipt.IntentID,
		Mode:         string(receipt.Mode),
	})
	if err != nil {
		return contracts.VerificationRecord{}, fmt.Errorf("eigencloud: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+verifyPath, bytes.NewReader(body))
	if err != nil {
		return contracts.VerificationRecord{}, fmt.Errorf("eigencloud: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	record := func(status contracts.VerificationStatus, proofRef string) contracts.VerificationRecord {
		return contracts.NewVerificationRecord(receipt.ReceiptID, contracts.BackendEigenCloudPrimary, proofRef, status, c.now())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.WarnContext(ctx, "verification timed out", "receipt_id", receipt.ReceiptID)
			return record(contracts.StatusPending, "eigencloud:timeout:"+receipt.ReceiptID), nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return contracts.VerificationRecord{}, ctx.Err()
		}
		c.logger.WarnContext(ctx, "verification oracle unreachable", "receipt_id", receipt.ReceiptID, "error", err)
		return record(contracts.StatusFailed, "eigencloud:unreachable"), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return record(contracts.StatusPending, "eigencloud:timeout:"+receipt.ReceiptID), nil
		}
		return record(contracts.StatusFailed, "eigencloud:read_error"), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "verification oracle returned error status",
			"receipt_id", receipt.ReceiptID, "status_code", resp.StatusCode)
		return record(contracts.StatusFailed, fmt.Sprintf("eigencloud:http_%d", resp.StatusCode)), nil
	}

	var out verifyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return record(contracts.StatusFailed, "eigencloud:invalid_response"), nil
	}
	proofRef := strings.TrimSpace(out.ProofRef)

	switch strings.ToLower(out.Status) {
	case string(contracts.StatusVerified):
		if proofRef == "" {
			return record(contracts.StatusFailed, "eigencloud:missing_proof_ref"), nil
		}
		c.logger.InfoContext(ctx, "receipt verified", "receipt_id", receipt.ReceiptID, "proof_ref", proofRef)
		return record(contracts.StatusVerified, proofRef), nil
	case string(contracts.StatusPending):
		if proofRef == "" {
			proofRef = "eigencloud:pending:" + receipt.ReceiptID
		}
		return record(contracts.StatusPending, proofRef), nil
	default:
		if proofRef == "" {
			proofRef = "eigencloud:rejected"
		}
		return record(contracts.StatusFailed, proofRef), nil
	}
}

// Health calls GET {endpoint}/health.
func (c *EigenCloud) Health(ctx context.Context) Health {
	h := Health{Backend: KindEigenCloudPrimary}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+healthPath, nil)
	if err != nil {
		h.State = HealthUnreachable
		h.Detail = err.Error()
		return h
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		h.State = HealthUnreachable
		h.Detail = "connection failed"
		return h
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	h.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.State = HealthHealthy
	} else {
		h.State = HealthUnhealthy
	}
	return h
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
