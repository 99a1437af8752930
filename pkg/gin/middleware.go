package gin

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	x402mcp "github.com/payincom/402ok-mcp"
)

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	CustomPaywallHTML string
	Resource          string
	ResourceRootURL   string
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithDescription is an option for the PaymentMiddleware to set the description.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType is an option for the PaymentMiddleware to set the mime type.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds is an option for the PaymentMiddleware to set the max timeout seconds.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithCustomPaywallHTML is an option for the PaymentMiddleware to set the custom paywall HTML.
func WithCustomPaywallHTML(customPaywallHTML string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.CustomPaywallHTML = customPaywallHTML
	}
}

// WithResource is an option for the PaymentMiddleware to set a fixed resource identifier.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL is an option for the PaymentMiddleware to derive the
// resource identifier from the request path.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = resourceRootURL
	}
}

// PaymentMiddleware guards a route with the x402 payment lifecycle: a
// request without a valid X-PAYMENT proof gets a 402 challenge, a verified
// request runs the handler with its response buffered, and settlement only
// happens after the handler succeeds. The settlement receipt travels back in
// the X-PAYMENT-RESPONSE header.
func PaymentMiddleware(opt x402mcp.PaymentOption, payTo string, client x402mcp.FacilitatorClient, opts ...Options) gin.HandlerFunc {
	options := &PaymentMiddlewareOptions{}
	for _, o := range opts {
		o(options)
	}

	return func(c *gin.Context) {
		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.Path
		}

		requirements, err := x402mcp.NewPaymentRequirements(opt, resource, payTo, options.Description)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402mcp.X402Version,
			})
			return
		}
		if options.MimeType != "" {
			requirements.MimeType = options.MimeType
		}
		if options.MaxTimeoutSeconds > 0 {
			requirements.MaxTimeoutSeconds = options.MaxTimeoutSeconds
		}

		userAgent := c.GetHeader("User-Agent")
		acceptHeader := c.GetHeader("Accept")
		isWebBrowser := strings.Contains(acceptHeader, "text/html") && strings.Contains(userAgent, "Mozilla")

		payment := c.GetHeader("X-PAYMENT")
		if payment == "" {
			if isWebBrowser {
				html := options.CustomPaywallHTML
				if html == "" {
					html = getPaywallHTML(options)
				}
				c.Abort()
				c.Data(http.StatusPaymentRequired, "text/html", []byte(html))
				return
			}

			abortPaymentRequired(c, "X-PAYMENT header is required", requirements)
			return
		}

		payload, err := x402mcp.DecodePaymentPayload(payment)
		if err != nil {
			abortPaymentRequired(c, err.Error(), requirements)
			return
		}

		if payload.Network != opt.Network {
			abortPaymentRequired(c, fmt.Sprintf("network %s is not accepted", payload.Network), requirements)
			return
		}

		verifyResponse, err := client.Verify(c.Request.Context(), payload, requirements)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402mcp.X402Version,
			})
			return
		}
		if !verifyResponse.IsValid {
			abortPaymentRequired(c, verifyResponse.InvalidReason, requirements)
			return
		}

		// Buffer the handler's response so settlement failures can still
		// replace it.
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &strings.Builder{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		// An aborted handler pays nothing; flush its buffered response as-is.
		if c.IsAborted() {
			c.Writer = writer.ResponseWriter
			c.Writer.WriteHeader(writer.statusCode)
			c.Writer.Write([]byte(writer.body.String()))
			return
		}

		settleResponse, err := client.Settle(c.Request.Context(), payload, requirements)
		if err != nil {
			c.Writer = writer.ResponseWriter
			abortPaymentRequired(c, fmt.Sprintf("settlement failed: %v", err), requirements)
			return
		}
		if !settleResponse.Success {
			reason := settleResponse.ErrorReason
			if reason == "" {
				reason = "settlement rejected"
			}
			c.Writer = writer.ResponseWriter
			abortPaymentRequired(c, fmt.Sprintf("settlement failed: %s", reason), requirements)
			return
		}

		receipt, err := encodeReceipt(x402mcp.SettlementReceipt{
			Settled: true,
			TxHash:  settleResponse.TxHash,
		})
		if err != nil {
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402mcp.X402Version,
			})
			return
		}

		c.Header("X-PAYMENT-RESPONSE", receipt)
		c.Writer = writer.ResponseWriter
		c.Writer.WriteHeader(writer.statusCode)
		c.Writer.Write([]byte(writer.body.String()))
	}
}

func abortPaymentRequired(c *gin.Context, message string, requirements *x402mcp.PaymentRequirements) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"error":       message,
		"accepts":     []*x402mcp.PaymentRequirements{requirements},
		"x402Version": x402mcp.X402Version,
	})
}

func encodeReceipt(receipt x402mcp.SettlementReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to encode settlement receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// responseWriter is a custom response writer that captures the response
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

// getPaywallHTML is the default paywall HTML for the PaymentMiddleware.
func getPaywallHTML(_ *PaymentMiddlewareOptions) string {
	return "<html><body>Payment Required</body></html>"
}
