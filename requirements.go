package x402mcp

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Defaults applied to every payment requirement this package constructs.
const (
	SchemeExact              = "exact"
	DefaultMimeType          = "application/json"
	DefaultMaxTimeoutSeconds = 300

	// assetUnitExponent converts major units to atomic units for the
	// six-decimal stablecoins this package prices in.
	assetUnitExponent = 6
)

// AmountToAssetUnits converts a decimal price in major units to an integer
// string in atomic units. Fractional atomic units are floored, never rounded
// up, so the caller is not charged more than the configured price.
func AmountToAssetUnits(price string) (string, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", price, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative price %q", price)
	}
	return d.Shift(assetUnitExponent).Floor().String(), nil
}

// ToolResourceURL forms the canonical resource identifier for a tool.
func ToolResourceURL(baseURL, toolName string) string {
	return strings.TrimRight(baseURL, "/") + "/mcp/tools/" + toolName
}

// NewPaymentRequirements constructs the requirement for one payment option
// against an explicit resource identifier. The requirement is deterministic:
// the same inputs always produce the same requirement, so the challenge sent
// to the caller and the requirement later submitted to the facilitator agree.
func NewPaymentRequirements(opt PaymentOption, resource, payTo, fallbackDescription string) (*PaymentRequirements, error) {
	amount, err := AmountToAssetUnits(opt.Price)
	if err != nil {
		return nil, err
	}

	description := opt.Description
	if description == "" {
		description = fallbackDescription
	}

	requirements := &PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           opt.Network,
		MaxAmountRequired: amount,
		Resource:          resource,
		Description:       description,
		MimeType:          DefaultMimeType,
		PayTo:             payTo,
		MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
		Asset:             opt.Asset,
	}

	if opt.AssetName != "" || opt.AssetVersion != "" {
		requirements.Extra = &PaymentExtra{
			Name:    opt.AssetName,
			Version: opt.AssetVersion,
		}
	}

	return requirements, nil
}

// BuildPaymentRequirements constructs the requirement for a tool's payment
// option, deriving the resource identifier from the server base URL and the
// tool name.
func BuildPaymentRequirements(opt PaymentOption, toolName, payTo, baseURL, fallbackDescription string) (*PaymentRequirements, error) {
	return NewPaymentRequirements(opt, ToolResourceURL(baseURL, toolName), payTo, fallbackDescription)
}
