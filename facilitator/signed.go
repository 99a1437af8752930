package facilitator

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402mcp "github.com/payincom/402ok-mcp"
)

const signedPathPrefix = "/api/v6/x402/"

// timestampFormat is the ISO-8601 millisecond form the signed backend
// expects in OK-ACCESS-TIMESTAMP and in the signature pre-hash.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// signedClient speaks the authenticated wire variant. The backend addresses
// chains by numeric index and has no concept of named networks, so the
// network field is stripped from both the proof and the requirement and an
// outer chainIndex field carries the configured chain id instead.
type signedClient struct {
	baseURL    string
	httpClient *http.Client
	chainIndex string
	apiKey     string
	apiSecret  string
	passphrase string
}

type signedEnvelope struct {
	X402Version         int                    `json:"x402Version"`
	ChainIndex          string                 `json:"chainIndex"`
	PaymentPayload      map[string]interface{} `json:"paymentPayload"`
	PaymentRequirements map[string]interface{} `json:"paymentRequirements"`
}

// signedResponse is the backend's response envelope. A code other than "0"
// or an empty data array means the request was rejected.
type signedResponse struct {
	Code string            `json:"code"`
	Data []json.RawMessage `json:"data"`
	Msg  string            `json:"msg"`
}

func (c *signedClient) Verify(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.VerifyResponse, error) {
	respBody, err := c.post(ctx, "verify", payload, requirements)
	if err != nil {
		return nil, err
	}

	var verifyResponse x402mcp.VerifyResponse
	if err := json.Unmarshal(respBody, &verifyResponse); err != nil {
		return nil, &Error{Op: "verify", Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return &verifyResponse, nil
}

func (c *signedClient) Settle(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.SettleResponse, error) {
	respBody, err := c.post(ctx, "settle", payload, requirements)
	if err != nil {
		return nil, err
	}

	var settleResponse x402mcp.SettleResponse
	if err := json.Unmarshal(respBody, &settleResponse); err != nil {
		return nil, &Error{Op: "settle", Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return &settleResponse, nil
}

func (c *signedClient) post(ctx context.Context, action string, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (json.RawMessage, error) {
	requirementsMap, err := requirementsWithoutNetwork(requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to encode requirements: %w", err)
	}

	body, err := json.Marshal(signedEnvelope{
		X402Version:         x402mcp.X402Version,
		ChainIndex:          c.chainIndex,
		PaymentPayload:      withoutNetwork(payload.Raw),
		PaymentRequirements: requirementsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+signedPathPrefix+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}

	timestamp := time.Now().UTC().Format(timestampFormat)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, req.URL.Path, body))
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: action, StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var envelope signedResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, &Error{Op: action, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode envelope: %v", err)}
	}

	if envelope.Code != "0" || len(envelope.Data) == 0 {
		msg := envelope.Msg
		if msg == "" {
			if envelope.Code != "0" {
				msg = fmt.Sprintf("backend returned code %q", envelope.Code)
			} else {
				msg = "backend returned no result"
			}
		}
		return nil, &Error{Op: action, StatusCode: resp.StatusCode, Message: msg}
	}

	return envelope.Data[0], nil
}

// sign computes the per-request signature: base64 of HMAC-SHA256 over
// timestamp, uppercased method, request path and body, keyed by the API
// secret.
func (c *signedClient) sign(timestamp, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(http.MethodPost))
	mac.Write([]byte(path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func withoutNetwork(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "network" {
			continue
		}
		out[k] = v
	}
	return out
}

func requirementsWithoutNetwork(requirements *x402mcp.PaymentRequirements) (map[string]interface{}, error) {
	data, err := json.Marshal(requirements)
	if err != nil {
		return nil, err
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	delete(m, "network")
	return m, nil
}
