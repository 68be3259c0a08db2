package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MercadoPago creates Checkout Pro preferences through the REST API
type MercadoPago struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// NewMercadoPago creates the adapter. A zero timeout uses DefaultTimeout.
func NewMercadoPago(baseURL, accessToken string, timeout time.Duration) *MercadoPago {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MercadoPago{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name implements Gateway
func (m *MercadoPago) Name() string {
	return "mercadopago"
}

// CreatePreference implements Gateway
func (m *MercadoPago) CreatePreference(ctx context.Context, pref *PreferenceRequest) (*Preference, error) {
	payload, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create preference: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned non-2xx status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var out Preference
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode preference: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway response has no preference id")
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
