package engine

import (
	"fmt"
)

// AdvisoryKind classifies a recovered anomaly. Advisories never fail an
// execution; they are logged and attached to execution updates.
type AdvisoryKind string

const (
	AdvisoryMissingOutput     AdvisoryKind = "missing_output"
	AdvisoryUndeclaredOutput  AdvisoryKind = "undeclared_output"
	AdvisoryGraphCycle        AdvisoryKind = "graph_cycle"
	AdvisoryUnknownConnection AdvisoryKind = "unknown_connection"
	AdvisoryUnresolvedInput   AdvisoryKind = "unresolved_input"
	AdvisoryUnusedInput       AdvisoryKind = "unused_input"
	AdvisoryParseFailure      AdvisoryKind = "parse_failure"
)

// Advisory is a non-fatal finding about one agent or the graph.
type Advisory struct {
	Kind    AdvisoryKind `json:"kind"`
	AgentID string       `json:"agent_id,omitempty"`
	Subject string       `json:"subject,omitempty"`
	Detail  string       `json:"detail"`
}

func (a Advisory) String() string {
	if a.Subject == "" {
		return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
	}
	return fmt.Sprintf("%s %q: %s", a.Kind, a.Subject, a.Detail)
}
