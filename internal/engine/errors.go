package engine

import (
	"fmt"
)

// ModelInvocationError reports that the language model call for an agent
// failed. It aborts the execution.
type ModelInvocationError struct {
	AgentID   string
	AgentName string
	Err       error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed for agent %q: %v", e.AgentName, e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

// ResponseParseError reports that a model response held no parseable JSON
// object. The invoker recovers from it locally.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string {
	if e.Err == nil {
		return "no JSON object found in model response"
	}
	return fmt.Sprintf("no JSON object found in model response: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}
