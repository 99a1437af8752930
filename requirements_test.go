package x402mcp

import "testing"

func TestAmountToAssetUnits(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"0.01", "10000"},
		{"0.1", "100000"},
		{"1", "1000000"},
		{"0.001", "1000"},
		{"2.5", "2500000"},
		{"0", "0"},
		// fractional atomic units are floored
		{"0.0000019", "1"},
		{"0.0000001", "0"},
	}

	for _, tc := range cases {
		got, err := AmountToAssetUnits(tc.price)
		if err != nil {
			t.Fatalf("AmountToAssetUnits(%q): unexpected error: %v", tc.price, err)
		}
		if got != tc.want {
			t.Errorf("AmountToAssetUnits(%q) = %q, want %q", tc.price, got, tc.want)
		}
	}
}

func TestAmountToAssetUnitsRejectsBadPrices(t *testing.T) {
	for _, price := range []string{"", "abc", "1.2.3", "-0.01", "$0.01"} {
		if _, err := AmountToAssetUnits(price); err == nil {
			t.Errorf("AmountToAssetUnits(%q): expected error", price)
		}
	}
}

func TestToolResourceURL(t *testing.T) {
	cases := []struct {
		baseURL string
		tool    string
		want    string
	}{
		{"https://api.example.com", "get_weather", "https://api.example.com/mcp/tools/get_weather"},
		{"https://api.example.com/", "get_weather", "https://api.example.com/mcp/tools/get_weather"},
		{"http://localhost:8402", "ping", "http://localhost:8402/mcp/tools/ping"},
	}

	for _, tc := range cases {
		if got := ToolResourceURL(tc.baseURL, tc.tool); got != tc.want {
			t.Errorf("ToolResourceURL(%q, %q) = %q, want %q", tc.baseURL, tc.tool, got, tc.want)
		}
	}
}

func TestNewPaymentRequirements(t *testing.T) {
	opt := PaymentOption{
		Price:        "0.01",
		Network:      "base-sepolia",
		Asset:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		AssetName:    "USDC",
		AssetVersion: "2",
	}

	reqs, err := NewPaymentRequirements(opt, "https://api.example.com/mcp/tools/echo", testPayTo, "Echo a message")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if reqs.Scheme != "exact" {
		t.Errorf("Expected scheme 'exact', got %q", reqs.Scheme)
	}
	if reqs.Network != "base-sepolia" {
		t.Errorf("Expected network 'base-sepolia', got %q", reqs.Network)
	}
	if reqs.MaxAmountRequired != "10000" {
		t.Errorf("Expected maxAmountRequired '10000', got %q", reqs.MaxAmountRequired)
	}
	if reqs.Resource != "https://api.example.com/mcp/tools/echo" {
		t.Errorf("Unexpected resource: %q", reqs.Resource)
	}
	if reqs.Description != "Echo a message" {
		t.Errorf("Expected fallback description, got %q", reqs.Description)
	}
	if reqs.MimeType != "application/json" {
		t.Errorf("Expected mimeType 'application/json', got %q", reqs.MimeType)
	}
	if reqs.MaxTimeoutSeconds != 300 {
		t.Errorf("Expected maxTimeoutSeconds 300, got %d", reqs.MaxTimeoutSeconds)
	}
	if reqs.Extra == nil || reqs.Extra.Name != "USDC" || reqs.Extra.Version != "2" {
		t.Errorf("Unexpected extra: %+v", reqs.Extra)
	}
}

func TestNewPaymentRequirementsOptionDescriptionWins(t *testing.T) {
	opt := PaymentOption{
		Price:       "0.01",
		Network:     "base-sepolia",
		Asset:       "0xasset",
		Description: "Priced per call",
	}

	reqs, err := NewPaymentRequirements(opt, "https://api.example.com/r", testPayTo, "fallback")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reqs.Description != "Priced per call" {
		t.Errorf("Expected option description, got %q", reqs.Description)
	}
	if reqs.Extra != nil {
		t.Errorf("Expected no extra without asset metadata, got %+v", reqs.Extra)
	}
}

func TestNewPaymentRequirementsDeterministic(t *testing.T) {
	opt := PaymentOption{Price: "0.25", Network: "base", Asset: "0xasset"}

	first, err := NewPaymentRequirements(opt, "https://a/r", testPayTo, "d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := NewPaymentRequirements(opt, "https://a/r", testPayTo, "d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if *first != *second {
		t.Fatalf("Expected identical requirements, got %+v and %+v", first, second)
	}
}
