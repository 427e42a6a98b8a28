package venue_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
	"github.com/Mindburn-Labs/tradetrust/pkg/venue"
)

// pinnedClient sends every request to srv while keeping the allowlisted
// host name in the URL.
func pinnedClient(srv *httptest.Server) *http.Client {
	tr := srv.Client().Transport.(*http.Transport).Clone()
	tr.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, srv.Listener.Addr().String())
	}
	tr.TLSClientConfig.ServerName = "example.com"
	return &http.Client{Transport: tr}
}

func testOrder() executor.Order {
	return executor.Order{
		ReceiptID:    "0123456789abcdef0123456789abcdef",
		DecisionHash: "ab",
		Symbol:       "BTC-USD",
		Side:         contracts.SideBuy,
		Quantity:     decimal.RequireFromString("0.02"),
		LimitPrice:   decimal.RequireFromString("50050"),
		Leverage:     decimal.NewFromInt(1),
	}
}

func TestHyperliquid_Submit(t *testing.T) {
	var got map[string]any
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchange", r.URL.Path)
		assert.Equal(t, "api.hyperliquid.xyz", r.Host)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","response":{"oid":"771"}}`))
	}))
	defer srv.Close()

	v, err := venue.NewHyperliquid(venue.Config{
		Endpoint:    "https://api.hyperliquid.xyz",
		AgentWallet: "0xagent",
		HTTPClient:  pinnedClient(srv),
	})
	require.NoError(t, err)

	ref, err := v.Submit(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "771", ref)

	action := got["action"].(map[string]any)
	assert.Equal(t, "BTC-USD", action["coin"])
	assert.Equal(t, true, action["is_buy"])
	assert.Equal(t, "0.02", action["sz"])
	assert.Equal(t, "0123456789abcdef0123456789abcdef", action["cloid"])
	assert.Equal(t, "0xagent", got["vaultAddress"])
}

func TestHyperliquid_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		isRej  bool
	}{
		{"server error", http.StatusBadGateway, `upstream down`, false},
		{"client error", http.StatusUnprocessableEntity, `bad size`, true},
		{"rejected", http.StatusOK, `{"status":"err","response":{"error":"insufficient margin"}}`, true},
		{"garbage", http.StatusOK, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v, err := venue.NewHyperliquid(venue.Config{Endpoint: "https://api.hyperliquid.xyz", HTTPClient: pinnedClient(srv)})
			require.NoError(t, err)
			_, err = v.Submit(context.Background(), testOrder())
			require.Error(t, err)
			assert.Equal(t, tt.isRej, errors.Is(err, venue.ErrRejected), err.Error())
			assert.False(t, errors.Is(err, executor.ErrOrderNotSent))
		})
	}
}

func TestHyperliquid_EndpointAllowlist(t *testing.T) {
	_, err := venue.NewHyperliquid(venue.Config{Endpoint: "https://evil.example"})
	var eerr *firewall.EndpointError
	require.ErrorAs(t, err, &eerr)

	v, err := venue.NewHyperliquid(venue.Config{Endpoint: "https://api.hyperliquid.xyz"})
	require.NoError(t, err)
	o := testOrder()
	o.Endpoint = "http://api.hyperliquid.xyz"
	_, err = v.Submit(context.Background(), o)
	require.ErrorAs(t, err, &eerr)
	assert.ErrorIs(t, err, executor.ErrOrderNotSent)
}

func TestHyperliquid_CanceledContext(t *testing.T) {
	v, err := venue.NewHyperliquid(venue.Config{Endpoint: "https://api.hyperliquid.xyz", Burst: 1})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Submit(ctx, testOrder())
	require.ErrorIs(t, err, executor.ErrOrderNotSent)
}
