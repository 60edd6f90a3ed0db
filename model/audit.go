package model

import "time"

// Audit actions.
const (
	AuditWorkflowStarted   = "workflow_started"
	AuditStepStarted       = "step_started"
	AuditStepSkipped       = "step_skipped"
	AuditApproved          = "approved"
	AuditRejected          = "rejected"
	AuditCommented         = "commented"
	AuditStepCompleted     = "step_completed"
	AuditWorkflowCompleted = "workflow_completed"
	AuditWorkflowCancelled = "workflow_cancelled"
	AuditSLAExceeded       = "sla_exceeded"
	AuditEscalated         = "escalated"
)

// AuditLogEntry is one immutable record in the audit trail. Timestamp is
// always assigned by the audit logger, never by the caller.
type AuditLogEntry struct {
	ID             string         `json:"id"`
	InstanceID     string         `json:"instanceId"`
	WorkflowID     string         `json:"workflow"`
	WorkflowName   string         `json:"workflowName"`
	Document       DocumentRef    `json:"document"`
	Step           *StepRef       `json:"step,omitempty"`
	User           string         `json:"user,omitempty"`
	Action         string         `json:"action"`
	Timestamp      time.Time      `json:"timestamp"`
	Comment        string         `json:"comment,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	NewStatus      string         `json:"newStatus,omitempty"`
	DurationMS     *int64         `json:"duration,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// DocumentRef identifies the document an audit entry refers to.
type DocumentRef struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Title      string `json:"title"`
}

// StepRef identifies the step an audit entry refers to.
type StepRef struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
}

// AuditFilters narrows audit queries.
type AuditFilters struct {
	InstanceID string
	DocumentID string
	Collection string
	Action     string
	Limit      int
}
