package x402mcp

import (
	"github.com/payincom/402ok-mcp/logger"
	"github.com/payincom/402ok-mcp/metrics"
)

// ServerOption configures the server
type ServerOption func(*Server)

// WithName sets the server name advertised to MCP clients.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version advertised to MCP clients.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithPayTo sets the payment recipient address used in every requirement.
func WithPayTo(payTo string) ServerOption {
	return func(s *Server) {
		s.payTo = payTo
	}
}

// WithBaseURL sets the public base URL used to derive resource identifiers.
func WithBaseURL(baseURL string) ServerOption {
	return func(s *Server) {
		s.baseURL = baseURL
	}
}

// WithFacilitator binds a facilitator client to a network. Payments on a
// network without a binding are rejected as facilitator_not_configured.
func WithFacilitator(network string, client FacilitatorClient) ServerOption {
	return func(s *Server) {
		s.facilitators[network] = client
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics sets the metrics recorder. Defaults to a no-op recorder.
func WithMetrics(rec metrics.Recorder) ServerOption {
	return func(s *Server) {
		s.metrics = rec
	}
}
