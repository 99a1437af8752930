package x402mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// paymentRequiredMessage is the error string on challenges for calls that
// arrived without a payment proof.
const paymentRequiredMessage = "_meta.x402.payment is required"

// Dispatch runs one tool call through the payment lifecycle. Free tools
// validate and execute directly. Paid tools go through challenge, verify,
// execute, settle; the call advances forward only and any failed stage
// terminates it. Verification always precedes execution, settlement happens
// at most once and only after an execution that did not fail.
//
// Payment lifecycle failures are reported as error-flagged results so the
// caller can see them in-band. Only unknown tools and argument violations
// are returned as Go errors.
func (s *Server) Dispatch(ctx context.Context, call ToolCall) (*ToolResult, error) {
	tool, ok := s.registry.Get(call.Name)
	if !ok {
		s.log.Warn("unknown tool called", map[string]any{"tool": call.Name})
		return nil, NewPaymentError(ErrCodeToolNotFound, fmt.Sprintf("tool %s not found", call.Name), nil)
	}

	if len(tool.Payments) == 0 {
		if err := s.registry.ValidateArguments(call.Name, call.Arguments); err != nil {
			return nil, err
		}
		return s.executeHandler(ctx, uuid.NewString(), tool, call.Arguments, ""), nil
	}

	return s.dispatchPaid(ctx, tool, call)
}

func (s *Server) dispatchPaid(ctx context.Context, tool *Tool, call ToolCall) (*ToolResult, error) {
	callID := uuid.NewString()

	encoded, present, err := ExtractPaymentFromMeta(call.Meta)
	if !present {
		s.log.Info("payment required", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
		})
		s.metrics.IncCounter("payment_required", map[string]string{"network": ""})
		return s.challenge(tool)
	}
	if err != nil {
		s.log.Warn("malformed payment metadata", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("invalid_payment", map[string]string{"network": ""})
		return paymentErrorResult(ErrCodeInvalidPayment, err.Error(), nil), nil
	}

	payload, err := DecodePaymentPayload(encoded)
	if err != nil {
		s.log.Warn("invalid payment payload", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("invalid_payment", map[string]string{"network": ""})
		return paymentErrorResult(ErrCodeInvalidPayment, err.Error(), nil), nil
	}

	labels := map[string]string{"network": payload.Network}

	opt, ok := tool.PaymentOptionFor(payload.Network)
	if !ok {
		supported := make([]string, 0, len(tool.Payments))
		for _, o := range tool.Payments {
			supported = append(supported, o.Network)
		}
		s.log.Warn("unsupported payment network", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": payload.Network,
		})
		s.metrics.IncCounter("unsupported_network", labels)
		return paymentErrorResult(ErrCodeUnsupportedNetwork,
			fmt.Sprintf("network %s is not accepted for tool %s", payload.Network, tool.Name),
			map[string]interface{}{"supported": supported}), nil
	}

	client, ok := s.facilitators[opt.Network]
	if !ok {
		s.log.Error("no facilitator configured", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
		})
		s.metrics.IncCounter("facilitator_not_configured", labels)
		return paymentErrorResult(ErrCodeFacilitatorNotConfigured,
			fmt.Sprintf("no facilitator configured for network %s", opt.Network), nil), nil
	}

	requirements, err := BuildPaymentRequirements(opt, tool.Name, s.payTo, s.baseURL, tool.Description)
	if err != nil {
		s.log.Error("failed to build payment requirements", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("payment_processing_error", labels)
		return paymentErrorResult(ErrCodePaymentProcessingError,
			fmt.Sprintf("failed to build payment requirements: %v", err), nil), nil
	}

	start := time.Now()
	verifyResp, err := client.Verify(ctx, payload, requirements)
	s.metrics.ObserveLatency("verify", time.Since(start), labels)
	if err != nil {
		s.log.Error("payment verification error", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("payment_processing_error", labels)
		return paymentErrorResult(ErrCodePaymentProcessingError,
			fmt.Sprintf("payment verification error: %v", err), nil), nil
	}
	if !verifyResp.IsValid {
		reason := verifyResp.InvalidReason
		if reason == "" {
			reason = "payment verification failed"
		}
		s.log.Warn("payment rejected", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
			"reason":  reason,
		})
		s.metrics.IncCounter("verification_failed", labels)
		return paymentErrorResult(ErrCodeVerificationFailed, "payment verification failed",
			map[string]interface{}{"invalidReason": reason}), nil
	}

	s.metrics.IncCounter("verified", labels)
	s.log.Debug("payment verified", map[string]any{
		"call_id": callID,
		"tool":    tool.Name,
		"network": opt.Network,
		"payer":   verifyResp.Payer,
	})

	if err := s.registry.ValidateArguments(tool.Name, call.Arguments); err != nil {
		return nil, err
	}

	hctx := HookContext{
		ToolName:     tool.Name,
		Arguments:    call.Arguments,
		Requirements: requirements,
		Payload:      payload,
	}

	for _, hook := range s.hooks.beforeExecution {
		proceed, err := hook(hctx)
		if err != nil {
			s.metrics.IncCounter("execution_failed", labels)
			return paymentErrorResult(ErrCodeExecutionFailed,
				fmt.Sprintf("execution blocked: %v", err), nil), nil
		}
		if !proceed {
			s.metrics.IncCounter("execution_failed", labels)
			return paymentErrorResult(ErrCodeExecutionFailed, "execution blocked by hook", nil), nil
		}
	}

	result := s.executeHandler(ctx, callID, tool, call.Arguments, opt.Network)

	for _, hook := range s.hooks.afterExecution {
		if err := hook(AfterExecutionContext{HookContext: hctx, Result: result}); err != nil {
			s.log.Warn("after execution hook failed", map[string]any{
				"call_id": callID,
				"tool":    tool.Name,
				"error":   err.Error(),
			})
		}
	}

	if result.IsError {
		s.log.Info("tool returned error, skipping settlement", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
		})
		return result, nil
	}

	start = time.Now()
	settleResp, err := client.Settle(ctx, payload, requirements)
	s.metrics.ObserveLatency("settle", time.Since(start), labels)
	if err != nil {
		s.log.Error("payment settlement error", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("settlement_failed", labels)
		return paymentErrorResult(ErrCodeSettlementFailed,
			fmt.Sprintf("payment settlement error: %v", err), nil), nil
	}
	if !settleResp.Success {
		reason := settleResp.ErrorReason
		if reason == "" {
			reason = "settlement rejected"
		}
		s.log.Error("payment settlement rejected", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"network": opt.Network,
			"reason":  reason,
		})
		s.metrics.IncCounter("settlement_failed", labels)
		return paymentErrorResult(ErrCodeSettlementFailed, "payment settlement failed",
			map[string]interface{}{"errorReason": reason}), nil
	}

	s.metrics.IncCounter("settled", labels)
	s.log.Info("payment settled", map[string]any{
		"call_id": callID,
		"tool":    tool.Name,
		"network": opt.Network,
		"tx_hash": settleResp.TxHash,
		"payer":   settleResp.Payer,
	})

	for _, hook := range s.hooks.afterSettlement {
		if err := hook(SettlementContext{HookContext: hctx, Settlement: settleResp}); err != nil {
			s.log.Warn("after settlement hook failed", map[string]any{
				"call_id": callID,
				"tool":    tool.Name,
				"error":   err.Error(),
			})
		}
	}

	return attachReceiptToResult(result, SettlementReceipt{
		Settled: true,
		TxHash:  settleResp.TxHash,
	}), nil
}

// challenge builds the 402 result listing one requirement per payment
// option. The requirements here and the one later submitted to the
// facilitator come from the same builder, so they always agree.
func (s *Server) challenge(tool *Tool) (*ToolResult, error) {
	accepts := make([]PaymentRequirements, 0, len(tool.Payments))
	for _, opt := range tool.Payments {
		requirements, err := BuildPaymentRequirements(opt, tool.Name, s.payTo, s.baseURL, tool.Description)
		if err != nil {
			return paymentErrorResult(ErrCodePaymentProcessingError,
				fmt.Sprintf("failed to build payment requirements: %v", err), nil), nil
		}
		accepts = append(accepts, *requirements)
	}
	return paymentRequiredResult(paymentRequiredMessage, accepts), nil
}

func (s *Server) executeHandler(ctx context.Context, callID string, tool *Tool, args map[string]interface{}, network string) *ToolResult {
	start := time.Now()
	result, err := tool.Handler(ctx, args)
	s.metrics.ObserveLatency("execute", time.Since(start), map[string]string{"network": network})

	if err != nil {
		s.log.Error("tool execution failed", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
			"error":   err.Error(),
		})
		s.metrics.IncCounter("execution_failed", map[string]string{"network": network})
		return paymentErrorResult(ErrCodeExecutionFailed, err.Error(), nil)
	}
	if result == nil {
		s.log.Error("tool returned no result", map[string]any{
			"call_id": callID,
			"tool":    tool.Name,
		})
		s.metrics.IncCounter("execution_failed", map[string]string{"network": network})
		return paymentErrorResult(ErrCodeExecutionFailed, "tool returned no result", nil)
	}

	return result
}
