package x402mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version stamped on every challenge and
// facilitator request produced by this package.
const X402Version = 1

// Metadata keys used to carry payment material on tool calls.
const (
	// PaymentMetaKey is the request metadata key holding the base64-encoded
	// payment proof supplied by the caller.
	PaymentMetaKey = "x402.payment"

	// PaymentResponseMetaKey is the result metadata key holding the
	// settlement confirmation attached after a successful settle.
	PaymentResponseMetaKey = "x402.payment-response"
)

// PaymentRequirements describes a single way a tool invocation can be paid
// for: which network, which asset, how much, and where the funds go.
type PaymentRequirements struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	MaxAmountRequired string        `json:"maxAmountRequired"`
	Resource          string        `json:"resource"`
	Description       string        `json:"description,omitempty"`
	MimeType          string        `json:"mimeType,omitempty"`
	PayTo             string        `json:"payTo"`
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds"`
	Asset             string        `json:"asset"`
	Extra             *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra carries the asset's signing-domain metadata clients need to
// construct a valid payment authorization.
type PaymentExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentRequired is the challenge body returned when a paid tool is called
// without a payment proof. Accepts lists one entry per payment option.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is a decoded payment proof. The proof is opaque to this
// package apart from the network field, which selects the payment option and
// facilitator. Raw holds every field as supplied by the caller so the proof
// can be forwarded to the facilitator without loss.
type PaymentPayload struct {
	Network string
	Raw     map[string]interface{}
}

// MarshalJSON emits the proof exactly as the caller supplied it.
func (p *PaymentPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Raw)
}

// DecodePaymentPayload decodes a base64-encoded JSON payment proof and
// extracts its network field. A proof without a non-empty string network is
// rejected.
func DecodePaymentPayload(encoded string) (*PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payment data: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid payment JSON: %w", err)
	}

	network, ok := raw["network"].(string)
	if !ok || network == "" {
		return nil, fmt.Errorf("payment proof missing network field")
	}

	return &PaymentPayload{Network: network, Raw: raw}, nil
}

// EncodePaymentPayload encodes a payment proof into the base64 JSON form
// carried in request metadata. Clients use it to attach proofs; servers never
// need it outside of tests.
func EncodePaymentPayload(fields map[string]interface{}) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// VerifyResponse is the normalized result of a facilitator verification.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the normalized result of a facilitator settlement.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// SettlementReceipt is the confirmation attached to result metadata under
// PaymentResponseMetaKey after a successful settlement.
type SettlementReceipt struct {
	Settled bool   `json:"settled"`
	TxHash  string `json:"txHash"`
}

// PaymentOption prices a tool on one network. Price is a decimal string in
// major units of the asset ("0.01" is one cent of a six-decimal stablecoin).
type PaymentOption struct {
	Price        string
	Network      string
	Asset        string
	AssetName    string
	AssetVersion string
	Description  string
}
