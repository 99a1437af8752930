// Package config loads and validates the YAML configuration for the
// payment-gated MCP server. Values support ${ENV} expansion so credential
// bundles stay out of config files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	x402mcp "github.com/payincom/402ok-mcp"
	"github.com/payincom/402ok-mcp/facilitator"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the complete server configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Facilitators []FacilitatorConfig `yaml:"facilitators" validate:"dive"`
	Tools        []ToolConfig        `yaml:"tools" validate:"dive"`
}

// ServerConfig contains the serving surface and payment identity.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Listen    string `yaml:"listen"`
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	PayTo     string `yaml:"pay_to" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=json console"`
}

// FacilitatorConfig binds one network to a payment backend.
type FacilitatorConfig struct {
	Network        string `yaml:"network" validate:"required"`
	Kind           string `yaml:"kind" validate:"required,oneof=signed plain"`
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	ChainID        int64  `yaml:"chain_id"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	Passphrase     string `yaml:"passphrase"`
	TimeoutSeconds int    `yaml:"timeout_secs"`
}

// ToolConfig declares a gateway tool whose handler forwards arguments to an
// upstream HTTP endpoint. A tool without payments is free.
type ToolConfig struct {
	Name        string                 `yaml:"name" validate:"required"`
	Description string                 `yaml:"description"`
	InputSchema map[string]interface{} `yaml:"input_schema"`
	UpstreamURL string                 `yaml:"upstream_url" validate:"required,url"`
	Payments    []PaymentConfig        `yaml:"payments" validate:"dive"`
}

// PaymentConfig prices a tool on one network.
type PaymentConfig struct {
	Price        string `yaml:"price" validate:"required"`
	Network      string `yaml:"network" validate:"required"`
	Asset        string `yaml:"asset" validate:"required"`
	AssetName    string `yaml:"asset_name"`
	AssetVersion string `yaml:"asset_version"`
	Description  string `yaml:"description"`
}

// DefaultConfig returns the configuration defaults applied before the file
// is parsed over them.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "402ok-mcp",
			Version:   "dev",
			Listen:    ":8402",
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads, env-expands, parses and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags, facilitator credential rules and address
// shapes. Networks referenced by tool payments are deliberately not checked
// against the facilitator bindings: a missing binding surfaces per call as
// facilitator_not_configured, not at startup.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	bound := make(map[string]bool, len(c.Facilitators))
	for _, f := range c.Facilitators {
		if bound[f.Network] {
			return fmt.Errorf("duplicate facilitator binding for network %s", f.Network)
		}
		bound[f.Network] = true

		switch facilitator.Kind(f.Kind) {
		case facilitator.KindSigned:
			if f.ChainID == 0 {
				return fmt.Errorf("facilitator %s: signed backend requires chain_id", f.Network)
			}
			if f.APIKey == "" || f.APISecret == "" || f.Passphrase == "" {
				return fmt.Errorf("facilitator %s: signed backend requires api_key, api_secret and passphrase", f.Network)
			}
		case facilitator.KindPlain:
			if f.APIKey != "" || f.APISecret != "" || f.Passphrase != "" {
				return fmt.Errorf("facilitator %s: plain backend does not take credentials", f.Network)
			}
		}
	}

	var evm, sol bool
	for _, f := range c.Facilitators {
		if isSolanaNetwork(f.Network) {
			sol = true
		} else {
			evm = true
		}
	}
	for _, t := range c.Tools {
		for _, p := range t.Payments {
			if isSolanaNetwork(p.Network) {
				sol = true
			} else {
				evm = true
			}
		}
	}

	if evm && sol {
		return fmt.Errorf("pay_to cannot serve both EVM and Solana networks, split the deployment")
	}
	if sol {
		if _, err := solana.PublicKeyFromBase58(c.Server.PayTo); err != nil {
			return fmt.Errorf("pay_to is not a valid Solana address: %w", err)
		}
	} else if evm {
		if !common.IsHexAddress(c.Server.PayTo) {
			return fmt.Errorf("pay_to is not a valid EVM address: %s", c.Server.PayTo)
		}
	}

	for _, t := range c.Tools {
		for _, p := range t.Payments {
			if isSolanaNetwork(p.Network) {
				if _, err := solana.PublicKeyFromBase58(p.Asset); err != nil {
					return fmt.Errorf("tool %s: asset for %s is not a valid Solana address: %w", t.Name, p.Network, err)
				}
			} else if !common.IsHexAddress(p.Asset) {
				return fmt.Errorf("tool %s: asset for %s is not a valid EVM address: %s", t.Name, p.Network, p.Asset)
			}
		}
	}

	return nil
}

func isSolanaNetwork(network string) bool {
	return strings.HasPrefix(network, "solana")
}

// ClientConfig converts a binding into the facilitator client config.
func (f FacilitatorConfig) ClientConfig() facilitator.Config {
	return facilitator.Config{
		Kind:       facilitator.Kind(f.Kind),
		BaseURL:    f.BaseURL,
		ChainID:    f.ChainID,
		APIKey:     f.APIKey,
		APISecret:  f.APISecret,
		Passphrase: f.Passphrase,
		Timeout:    time.Duration(f.TimeoutSeconds) * time.Second,
	}
}

// PaymentOptions converts the tool's payment config into server options.
func (t ToolConfig) PaymentOptions() []x402mcp.PaymentOption {
	opts := make([]x402mcp.PaymentOption, 0, len(t.Payments))
	for _, p := range t.Payments {
		opts = append(opts, x402mcp.PaymentOption{
			Price:        p.Price,
			Network:      p.Network,
			Asset:        p.Asset,
			AssetName:    p.AssetName,
			AssetVersion: p.AssetVersion,
			Description:  p.Description,
		})
	}
	return opts
}

// InputSchemaJSON renders the YAML schema map as JSON for compilation.
func (t ToolConfig) InputSchemaJSON() (json.RawMessage, error) {
	if t.InputSchema == nil {
		return nil, nil
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to encode input schema: %w", t.Name, err)
	}
	return data, nil
}
