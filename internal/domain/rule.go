package domain

import "time"

// RuleConfig defines an explanation rule.
// A rule is a CEL boolean expression over a scored feature vector; when it
// holds, its Reason is attached to the score response. Rules never change a
// decision or risk level.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Reason reported when the expression holds
	Reason string `json:"reason"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	ProcessUs int64  `json:"processUs"`
}
