package x402mcp

import (
	"encoding/json"
	"fmt"
)

// ExtractPaymentFromMeta pulls the encoded payment proof out of request
// metadata. The second return is false when no proof is present; a present
// but non-string value is an error because callers must send the base64 form.
func ExtractPaymentFromMeta(meta map[string]interface{}) (string, bool, error) {
	if meta == nil {
		return "", false, nil
	}

	raw, ok := meta[PaymentMetaKey]
	if !ok {
		return "", false, nil
	}

	encoded, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a base64-encoded string", PaymentMetaKey)
	}

	return encoded, true, nil
}

// AttachPaymentToMeta returns a copy of meta with the encoded payment proof
// set. Client-side helper; the input map is not modified.
func AttachPaymentToMeta(meta map[string]interface{}, encoded string) map[string]interface{} {
	result := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		result[k] = v
	}
	result[PaymentMetaKey] = encoded
	return result
}

// attachReceiptToResult sets the settlement confirmation on a result's
// metadata, allocating the map if the handler returned none.
func attachReceiptToResult(result *ToolResult, receipt SettlementReceipt) *ToolResult {
	if result.Meta == nil {
		result.Meta = make(map[string]interface{})
	}
	result.Meta[PaymentResponseMetaKey] = receipt
	return result
}

// ExtractReceiptFromMeta pulls the settlement confirmation out of result
// metadata. Returns nil when no confirmation is present or it does not parse.
func ExtractReceiptFromMeta(meta map[string]interface{}) *SettlementReceipt {
	if meta == nil {
		return nil
	}

	raw, ok := meta[PaymentResponseMetaKey]
	if !ok {
		return nil
	}

	if receipt, ok := raw.(SettlementReceipt); ok {
		return &receipt
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var receipt SettlementReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil
	}

	return &receipt
}

// ExtractPaymentRequiredFromResult parses a 402 challenge out of an
// error-flagged tool result. Client-side helper: tries structured content
// first, then the first text block. Returns nil when the result is not a
// challenge.
func ExtractPaymentRequiredFromResult(result *ToolResult) *PaymentRequired {
	if result == nil || !result.IsError {
		return nil
	}

	if result.StructuredContent != nil {
		if pr := paymentRequiredFromObject(result.StructuredContent); pr != nil {
			return pr
		}
	}

	if len(result.Content) > 0 {
		first := result.Content[0]
		if first.Type == ContentTypeText && first.Text != "" {
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(first.Text), &parsed); err == nil {
				return paymentRequiredFromObject(parsed)
			}
		}
	}

	return nil
}

func paymentRequiredFromObject(obj map[string]interface{}) *PaymentRequired {
	if _, hasVersion := obj["x402Version"]; !hasVersion {
		return nil
	}

	accepts, ok := obj["accepts"].([]interface{})
	if !ok || len(accepts) == 0 {
		return nil
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil
	}

	var pr PaymentRequired
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil
	}

	return &pr
}
