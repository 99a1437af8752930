package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	x402mcp "github.com/payincom/402ok-mcp"
	"github.com/payincom/402ok-mcp/config"
	"github.com/payincom/402ok-mcp/facilitator"
	"github.com/payincom/402ok-mcp/logger"
	"github.com/payincom/402ok-mcp/metrics"
)

const (
	upstreamTimeout = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func NewServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured tools over MCP SSE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewZapLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	recorder := metrics.NewPrometheusRecorder()

	opts := []x402mcp.ServerOption{
		x402mcp.WithName(cfg.Server.Name),
		x402mcp.WithVersion(cfg.Server.Version),
		x402mcp.WithPayTo(cfg.Server.PayTo),
		x402mcp.WithBaseURL(cfg.Server.BaseURL),
		x402mcp.WithLogger(log),
		x402mcp.WithMetrics(recorder),
	}

	for _, binding := range cfg.Facilitators {
		client, err := facilitator.New(binding.ClientConfig())
		if err != nil {
			return fmt.Errorf("facilitator %s: %w", binding.Network, err)
		}
		opts = append(opts, x402mcp.WithFacilitator(binding.Network, client))
	}

	server := x402mcp.NewServer(opts...)

	upstream := &http.Client{Timeout: upstreamTimeout}
	for _, tc := range cfg.Tools {
		schema, err := tc.InputSchemaJSON()
		if err != nil {
			return err
		}
		if err := server.Register(&x402mcp.Tool{
			Name:        tc.Name,
			Description: tc.Description,
			InputSchema: schema,
			Handler:     proxyHandler(upstream, tc.UpstreamURL),
			Payments:    tc.PaymentOptions(),
		}); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tc.Name, err)
		}
	}

	sseHandler := server.SSEHandler()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Any("/sse", echo.WrapHandler(sseHandler))
	e.Any("/messages", echo.WrapHandler(sseHandler))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Server.Listen); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info("server started", map[string]any{
		"listen":       cfg.Server.Listen,
		"tools":        len(cfg.Tools),
		"facilitators": len(cfg.Facilitators),
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down", map[string]any{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// proxyHandler forwards tool arguments to the upstream endpoint and returns
// its JSON response. A non-2xx upstream answer becomes an error-flagged
// result, so the payment for the call is never settled.
func proxyHandler(client *http.Client, upstreamURL string) x402mcp.ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (*x402mcp.ToolResult, error) {
		body, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("upstream request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read upstream response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return x402mcp.ErrorResult(fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(respBody))), nil
		}

		return x402mcp.TextResult(string(respBody)), nil
	}
}
