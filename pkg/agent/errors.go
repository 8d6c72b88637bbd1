package agent

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrToolTimeout means the bounded wait for the agent run was exceeded.
	// Safe to retry on the user's next message; never retried server-side.
	ErrToolTimeout = goerr.New("tool call timed out")

	// ErrToolExecution means the backing API call or agent run failed.
	// Logged in full, surfaced to the user as a short apology.
	ErrToolExecution = goerr.New("tool execution failed")
)
