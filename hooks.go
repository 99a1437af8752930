package x402mcp

// HookContext is provided to server-side hooks. Requirements and Payload are
// nil for free tools.
type HookContext struct {
	ToolName     string
	Arguments    map[string]interface{}
	Requirements *PaymentRequirements
	Payload      *PaymentPayload
}

// BeforeExecutionHook is called after a payment verifies and before the tool
// handler runs. Returning false or an error aborts execution; the payment is
// not settled.
type BeforeExecutionHook func(hctx HookContext) (bool, error)

// AfterExecutionContext extends HookContext with the handler's result.
type AfterExecutionContext struct {
	HookContext
	Result *ToolResult
}

// AfterExecutionHook is called after the tool handler returns. Hook errors
// are logged and do not fail the call.
type AfterExecutionHook func(hctx AfterExecutionContext) error

// SettlementContext extends HookContext with the settlement result.
type SettlementContext struct {
	HookContext
	Settlement *SettleResponse
}

// AfterSettlementHook is called after a successful settlement. Hook errors
// are logged and do not fail the call.
type AfterSettlementHook func(hctx SettlementContext) error

type serverHooks struct {
	beforeExecution []BeforeExecutionHook
	afterExecution  []AfterExecutionHook
	afterSettlement []AfterSettlementHook
}
