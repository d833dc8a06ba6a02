package morgana

import "errors"

// Sentinel errors for the five-kind taxonomy in SPEC_FULL.md § 7. Callers
// recover the kind with errors.Is; every returned error from a pipeline
// stage wraps one of these with %w so the Supervisor/Manager can react
// without type-asserting on concrete error types from every package.
var (
	// ErrPolicyViolation marks a Guard denial. User-visible moderation
	// message; turn ends Idle.
	ErrPolicyViolation = errors.New("morgana: policy violation")

	// ErrClassificationFailed marks a classifier parse or provider error.
	// Pipeline continues with a fallback to the "other" intent rather than
	// surfacing this to the user, but it is still recorded for metrics/logs.
	ErrClassificationFailed = errors.New("morgana: classification failed")

	// ErrAgentFailure marks any exception inside an agent or tool call.
	ErrAgentFailure = errors.New("morgana: agent failure")

	// ErrProviderUnavailable marks an LLM or MCP transport error surviving
	// retries. Handled identically to ErrAgentFailure by the Supervisor.
	ErrProviderUnavailable = errors.New("morgana: provider unavailable")

	// ErrInvariantViolation marks an unrecognized message kind, a missing
	// provider registration, or any other condition that should never
	// happen in a correct build. The owning component restarts fresh.
	ErrInvariantViolation = errors.New("morgana: invariant violation")
)

// ErrCapabilityUnknown names the case where no agent is registered for a
// classified intent (§ 4.5, S5). The Router does not return it: it answers
// that case with router.NotFoundResponse and a nil error.
var ErrCapabilityUnknown = errors.New("morgana: capability unknown")

// ErrConversationNotFound is returned when an operation targets a
// conversationId with no live Manager and resume was not requested.
var ErrConversationNotFound = errors.New("morgana: conversation not found")
