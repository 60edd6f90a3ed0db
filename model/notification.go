package model

import "context"

// Notification kinds.
const (
	NotifyStepAssigned = "step_assigned"
	NotifyStepOutcome  = "step_outcome"
	NotifyEscalation   = "escalation"
)

// Notification is a message to one or more users about a workflow.
type Notification struct {
	Kind         string   `json:"kind"`
	Recipients   []string `json:"recipients"`
	Channels     []string `json:"channels"`
	InstanceID   string   `json:"instanceId"`
	WorkflowID   string   `json:"workflowId"`
	WorkflowName string   `json:"workflowName"`
	DocumentID   string   `json:"documentId"`
	Collection   string   `json:"collection"`
	DocumentName string   `json:"documentTitle"`
	StepIndex    int      `json:"stepIndex"`
	StepName     string   `json:"stepName"`
	Outcome      string   `json:"outcome,omitempty"`
}

// Notifier delivers notifications. Delivery is best-effort: callers log
// failures and never roll back workflow state because of them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
