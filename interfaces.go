package x402mcp

import "context"

// FacilitatorClient is the gateway to an external payment backend. It
// verifies a payment proof against a requirement before execution and
// settles it afterwards. Implementations normalize whatever wire protocol
// their backend speaks into VerifyResponse and SettleResponse.
//
// A transport or protocol fault is returned as a non-nil error. A backend
// that answered but rejected the payment is not an error: it is
// IsValid=false or Success=false on the response.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*SettleResponse, error)
}

// ToolHandler executes a tool's business logic. Arguments have already been
// validated against the tool's input schema when the handler runs. A non-nil
// error reports an execution fault; tool-domain failures the caller should
// see in-band are returned as an error-flagged ToolResult instead.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*ToolResult, error)
