// Package integration_test exercises the complete payment flow over the real
// MCP SSE transport: a client session calls a paid tool, receives the 402
// challenge, retries with a payment proof and gets the settlement receipt
// back in result metadata. The facilitator is mocked; the transport is not.
package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402mcp "github.com/payincom/402ok-mcp"
)

const (
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testAsset = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

type mockFacilitator struct {
	verifyCalls int
	settleCalls int
}

func (m *mockFacilitator) Verify(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.VerifyResponse, error) {
	m.verifyCalls++
	return &x402mcp.VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
}

func (m *mockFacilitator) Settle(ctx context.Context, payload *x402mcp.PaymentPayload, requirements *x402mcp.PaymentRequirements) (*x402mcp.SettleResponse, error) {
	m.settleCalls++
	return &x402mcp.SettleResponse{Success: true, TxHash: "0xintegration", Network: payload.Network}, nil
}

func newIntegrationServer(t *testing.T, fac x402mcp.FacilitatorClient) *x402mcp.Server {
	t.Helper()

	server := x402mcp.NewServer(
		x402mcp.WithName("integration-server"),
		x402mcp.WithVersion("test"),
		x402mcp.WithPayTo(testPayTo),
		x402mcp.WithBaseURL("https://tools.example.com"),
		x402mcp.WithFacilitator("base-sepolia", fac),
	)

	err := server.Register(&x402mcp.Tool{
		Name:        "ping",
		Description: "A free health check tool",
		Handler: func(ctx context.Context, args map[string]interface{}) (*x402mcp.ToolResult, error) {
			return x402mcp.TextResult("pong"), nil
		},
	})
	if err != nil {
		t.Fatalf("Failed to register ping: %v", err)
	}

	err = server.Register(&x402mcp.Tool{
		Name:        "get_weather",
		Description: "Get current weather for a city",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"city": {"type": "string"}},
			"required": ["city"]
		}`),
		Handler: func(ctx context.Context, args map[string]interface{}) (*x402mcp.ToolResult, error) {
			city, _ := args["city"].(string)
			return x402mcp.JSONResult(map[string]interface{}{
				"city":    city,
				"weather": "sunny",
			}), nil
		},
		Payments: []x402mcp.PaymentOption{
			{Price: "0.001", Network: "base-sepolia", Asset: testAsset, AssetName: "USDC", AssetVersion: "2"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to register get_weather: %v", err)
	}

	return server
}

func textOf(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("Expected content, got %+v", result)
	}
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSSEPaymentFlow(t *testing.T) {
	fac := &mockFacilitator{}
	server := newIntegrationServer(t, fac)

	sseHandler := server.SSEHandler()
	mux := http.NewServeMux()
	mux.Handle("/sse", sseHandler)
	mux.Handle("/messages", sseHandler)

	httpServer := httptest.NewServer(mux)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	transport := &mcpsdk.SSEClientTransport{
		Endpoint: httpServer.URL + "/sse",
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "integration-client",
		Version: "test",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		t.Fatalf("Failed to connect MCP client: %v", err)
	}
	defer session.Close()

	t.Run("free tool", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "ping",
			Arguments: map[string]interface{}{},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if result.IsError {
			t.Fatalf("Expected success, got %+v", result)
		}
		if textOf(t, result) != "pong" {
			t.Fatalf("Expected 'pong', got %q", textOf(t, result))
		}
	})

	t.Run("challenge without payment", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "get_weather",
			Arguments: map[string]interface{}{"city": "Lisbon"},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if !result.IsError {
			t.Fatal("Expected an error-flagged challenge")
		}

		var challenge x402mcp.PaymentRequired
		if err := json.Unmarshal([]byte(textOf(t, result)), &challenge); err != nil {
			t.Fatalf("Challenge did not parse: %v", err)
		}
		if challenge.X402Version != 1 {
			t.Fatalf("Expected x402Version 1, got %d", challenge.X402Version)
		}
		if challenge.Error != "_meta.x402.payment is required" {
			t.Fatalf("Unexpected challenge error: %q", challenge.Error)
		}
		if len(challenge.Accepts) != 1 {
			t.Fatalf("Expected one accepted option, got %d", len(challenge.Accepts))
		}
		if challenge.Accepts[0].MaxAmountRequired != "1000" {
			t.Fatalf("Expected maxAmountRequired '1000', got %q", challenge.Accepts[0].MaxAmountRequired)
		}
		if challenge.Accepts[0].Resource != "https://tools.example.com/mcp/tools/get_weather" {
			t.Fatalf("Unexpected resource: %q", challenge.Accepts[0].Resource)
		}
		if fac.verifyCalls != 0 || fac.settleCalls != 0 {
			t.Fatal("Challenge must not touch the facilitator")
		}
	})

	t.Run("paid call settles", func(t *testing.T) {
		encoded, err := x402mcp.EncodePaymentPayload(map[string]interface{}{
			"network":   "base-sepolia",
			"signature": "0xsig",
		})
		if err != nil {
			t.Fatalf("Failed to encode payment: %v", err)
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "get_weather",
			Arguments: map[string]interface{}{"city": "Lisbon"},
			Meta:      mcpsdk.Meta{x402mcp.PaymentMetaKey: encoded},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if result.IsError {
			t.Fatalf("Expected success, got %s", textOf(t, result))
		}

		var body map[string]interface{}
		if err := json.Unmarshal([]byte(textOf(t, result)), &body); err != nil {
			t.Fatalf("Result did not parse: %v", err)
		}
		if body["city"] != "Lisbon" || body["weather"] != "sunny" {
			t.Fatalf("Unexpected result body: %v", body)
		}

		if result.Meta == nil {
			t.Fatal("Expected result metadata carrying the receipt")
		}
		receipt := x402mcp.ExtractReceiptFromMeta(result.Meta.GetMeta())
		if receipt == nil {
			t.Fatalf("Expected a settlement receipt, got meta %+v", result.Meta)
		}
		if !receipt.Settled || receipt.TxHash != "0xintegration" {
			t.Fatalf("Unexpected receipt: %+v", receipt)
		}
		if fac.verifyCalls != 1 || fac.settleCalls != 1 {
			t.Fatalf("Expected one verify and one settle, got %d/%d", fac.verifyCalls, fac.settleCalls)
		}
	})

	t.Run("invalid payment", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "get_weather",
			Arguments: map[string]interface{}{"city": "Lisbon"},
			Meta:      mcpsdk.Meta{x402mcp.PaymentMetaKey: "!!!garbage!!!"},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if !result.IsError {
			t.Fatal("Expected an error-flagged result")
		}

		var body map[string]interface{}
		if err := json.Unmarshal([]byte(textOf(t, result)), &body); err != nil {
			t.Fatalf("Error body did not parse: %v", err)
		}
		if body["error"] != "invalid_payment" {
			t.Fatalf("Expected invalid_payment, got %v", body["error"])
		}
	})
}
