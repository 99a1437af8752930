package facilitator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	x402mcp "github.com/payincom/402ok-mcp"
)

// plainClient speaks the unauthenticated wire variant. The proof and the
// requirement are posted as-is, network field included, and the response
// body is the normalized result with no envelope around it.
type plainClient struct {
	baseURL    string
	httpClient *http.Client
}

type plainEnvelope struct {
	X402Version         int                          `json:"x402Version"`
	PaymentPayload      map[string]interface{}       `json:"paymentPayload"`
	PaymentRequirements *x402mcp.PaymentRequirements `json:"paymentRequirements"`
}

func (c *plainClient) Verify(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.VerifyResponse, error) {
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

func (c *plainClient) Settle(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.SettleResponse, error) {
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

func (c *plainClient) post(ctx context.Context, action string, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) ([]byte, error) {
	body, err := json.Marshal(plainEnvelope{
		X402Version:         x402mcp.X402Version,
		PaymentPayload:      payload.Raw,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	status, respBody, err := postJSON(ctx, c.httpClient, c.baseURL+"/"+action, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	if status != http.StatusOK {
		return nil, &Error{Op: action, StatusCode: status, Message: string(respBody)}
	}

	return respBody, nil
}
