package types

// TurnStatus is the outcome of one processed turn, as reported to the caller.
type TurnStatus string

const (
	// TurnStatusSuccess means the turn produced a normal answer.
	TurnStatusSuccess TurnStatus = "success"
	// TurnStatusDegraded means a tool or store failed but a safe fallback
	// answer was still produced.
	TurnStatusDegraded TurnStatus = "degraded"
	// TurnStatusError means the turn could only produce an error message
	// (e.g. the requested service is not connected).
	TurnStatusError TurnStatus = "error"
)

// String returns the string representation of the turn status
func (s TurnStatus) String() string {
	return string(s)
}

// TurnState tracks the lifecycle of a single turn through the pipeline.
// Transitions: Received → Routed → {DirectAnswer | ToolDispatched} →
// {Succeeded | Degraded | Failed} → Recorded.
type TurnState string

const (
	TurnStateReceived       TurnState = "RECEIVED"
	TurnStateRouted         TurnState = "ROUTED"
	TurnStateDirectAnswer   TurnState = "DIRECT_ANSWER"
	TurnStateToolDispatched TurnState = "TOOL_DISPATCHED"
	TurnStateSucceeded      TurnState = "SUCCEEDED"
	TurnStateDegraded       TurnState = "DEGRADED"
	TurnStateFailed         TurnState = "FAILED"
	TurnStateRecorded       TurnState = "RECORDED"
)

// ResultStatus is the status field of a structured service-agent result.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
	ResultStatusPartial ResultStatus = "partial"
)

// IsValid checks if the result status is valid
func (s ResultStatus) IsValid() bool {
	switch s {
	case ResultStatusSuccess, ResultStatusError, ResultStatusPartial:
		return true
	default:
		return false
	}
}

// String returns the string representation of the result status
func (s ResultStatus) String() string {
	return string(s)
}
