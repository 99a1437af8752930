// Package facilitator provides HTTP gateways to external x402 verification
// and settlement backends. Two wire variants exist: a signed variant that
// authenticates every request and addresses chains by numeric index, and a
// plain variant that posts unauthenticated JSON and keeps network names on
// the wire. Both are normalized behind the x402mcp.FacilitatorClient
// interface.
package facilitator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	x402mcp "github.com/payincom/402ok-mcp"
)

// Kind selects the wire variant a backend speaks.
type Kind string

const (
	// KindSigned is the authenticated variant with fixed /api/v6/x402
	// paths, per-request HMAC signatures and chain-index addressing.
	KindSigned Kind = "signed"

	// KindPlain is the unauthenticated variant with /verify and /settle
	// relative to the base URL.
	KindPlain Kind = "plain"
)

// DefaultTimeout bounds facilitator round trips when the config supplies
// neither a timeout nor an HTTP client.
const DefaultTimeout = 30 * time.Second

// Config describes one facilitator binding.
type Config struct {
	Kind    Kind
	BaseURL string

	// ChainID is the numeric chain identifier sent as chainIndex.
	// Signed backends only.
	ChainID int64

	// Credential bundle. Signed backends only.
	APIKey     string
	APISecret  string
	Passphrase string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// New builds the facilitator client for a binding.
func New(cfg Config) (x402mcp.FacilitatorClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("facilitator base URL must not be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	switch cfg.Kind {
	case KindSigned:
		if cfg.APIKey == "" || cfg.APISecret == "" || cfg.Passphrase == "" {
			return nil, fmt.Errorf("signed facilitator requires api key, secret and passphrase")
		}
		if cfg.ChainID == 0 {
			return nil, fmt.Errorf("signed facilitator requires a chain id")
		}
		return &signedClient{
			baseURL:    baseURL,
			httpClient: httpClient,
			chainIndex: strconv.FormatInt(cfg.ChainID, 10),
			apiKey:     cfg.APIKey,
			apiSecret:  cfg.APISecret,
			passphrase: cfg.Passphrase,
		}, nil
	case KindPlain:
		if cfg.APIKey != "" || cfg.APISecret != "" || cfg.Passphrase != "" {
			return nil, fmt.Errorf("plain facilitator does not take credentials")
		}
		return &plainClient{
			baseURL:    baseURL,
			httpClient: httpClient,
		}, nil
	default:
		return nil, fmt.Errorf("unknown facilitator kind %q", cfg.Kind)
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
