package x402mcp

import "encoding/json"

// ToolCall is a single inbound tool invocation: the tool name, its
// arguments, and the request metadata that may carry a payment proof.
type ToolCall struct {
	Name      string
	Arguments map[string]interface{}
	Meta      map[string]interface{}
}

// ToolResult represents a tool call result
type ToolResult struct {
	Content           []Content
	IsError           bool
	Meta              map[string]interface{}
	StructuredContent map[string]interface{}
}

// Content represents one content block of a tool result. Type selects which
// fields are meaningful: "text" uses Text, "image" uses Data and MimeType,
// "resource" uses URI plus Text or Data.
type Content struct {
	Type     string
	Text     string
	Data     []byte
	MimeType string
	URI      string
}

// ContentTypeText et al. are the content block types a handler may return.
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// TextResult builds a successful result with a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
	}
}

// JSONResult builds a successful result carrying v both as serialized text
// and as structured content.
func JSONResult(v map[string]interface{}) *ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("failed to serialize result: " + err.Error())
	}
	return &ToolResult{
		Content:           []Content{{Type: ContentTypeText, Text: string(data)}},
		StructuredContent: v,
	}
}

// ErrorResult builds an error-flagged result with a single text block.
// Use for tool-domain failures the caller should see in-band.
func ErrorResult(text string) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
		IsError: true,
	}
}

// paymentErrorResult renders a payment-lifecycle failure as a structured,
// error-flagged result so callers can distinguish failure modes by code.
func paymentErrorResult(code, message string, details map[string]interface{}) *ToolResult {
	body := map[string]interface{}{
		"error":   code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}

	data, _ := json.Marshal(body)
	return &ToolResult{
		Content:           []Content{{Type: ContentTypeText, Text: string(data)}},
		IsError:           true,
		StructuredContent: body,
	}
}

// paymentRequiredResult renders the 402 challenge listing every payment
// option of the tool.
func paymentRequiredResult(message string, accepts []PaymentRequirements) *ToolResult {
	required := PaymentRequired{
		X402Version: X402Version,
		Error:       message,
		Accepts:     accepts,
	}

	data, _ := json.Marshal(required)

	var structured map[string]interface{}
	_ = json.Unmarshal(data, &structured)

	return &ToolResult{
		Content:           []Content{{Type: ContentTypeText, Text: string(data)}},
		IsError:           true,
		StructuredContent: structured,
	}
}
