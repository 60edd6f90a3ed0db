package model

import (
	"strconv"
	"time"
)

// Step status constants.
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusRejected   = "rejected"
	StepStatusSkipped    = "skipped"
)

// Workflow outcomes.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Decision actions submitted by assignees.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionComment = "comment"
)

// ValidDecision reports whether action is approve, reject or comment.
func ValidDecision(action string) bool {
	switch action {
	case DecisionApprove, DecisionReject, DecisionComment:
		return true
	}
	return false
}

// InstanceKey returns the key identifying the workflow instance of a document.
// The document ID is length-prefixed so distinct (document, collection) pairs
// never share a key.
func InstanceKey(documentID, collection string) string {
	return strconv.Itoa(len(documentID)) + ":" + documentID + "/" + collection
}

// WorkflowInstance is the mutable state of one workflow run for one document.
type WorkflowInstance struct {
	ID          string      `json:"id"`
	WorkflowID  string      `json:"workflowId"`
	DocumentID  string      `json:"documentId"`
	Collection  string      `json:"collection"`
	CurrentStep int         `json:"currentStep"`
	IsActive    bool        `json:"isActive"`
	Outcome     string      `json:"outcome,omitempty"`
	Steps       []StepState `json:"stepStatus"`
	StartedAt   time.Time   `json:"startDate"`
	UpdatedAt   time.Time   `json:"lastUpdated"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Version     int         `json:"version"`
}

// Key returns the instance key.
func (w *WorkflowInstance) Key() string {
	return InstanceKey(w.DocumentID, w.Collection)
}

// Clone returns a deep copy so callers can mutate without affecting stored
// state.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *w
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Steps = make([]StepState, len(w.Steps))
	for i, s := range w.Steps {
		cp.Steps[i] = s.clone()
	}
	return &cp
}

// StepState is the runtime state of one step of an instance.
type StepState struct {
	StepID      string     `json:"stepId"`
	Status      string     `json:"status"`
	Round       int        `json:"round"`
	Assignees   []string   `json:"assignees"`
	Approvals   []Approval `json:"approvals"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	SLAExceeded bool       `json:"slaExceeded,omitempty"`
	Escalated   bool       `json:"escalated,omitempty"`
}

func (s StepState) clone() StepState {
	cp := s
	cp.Assignees = append([]string(nil), s.Assignees...)
	cp.Approvals = append([]Approval(nil), s.Approvals...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// IsAssigned reports whether userID is in the step's frozen assignee set.
func (s *StepState) IsAssigned(userID string) bool {
	for _, a := range s.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// CurrentApprovals returns the approvals recorded in the step's current round.
func (s *StepState) CurrentApprovals() []Approval {
	var out []Approval
	for _, a := range s.Approvals {
		if a.Round == s.Round {
			out = append(out, a)
		}
	}
	return out
}

// Approval is a single decision recorded against a step.
type Approval struct {
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowStatus is the read-only view of an instance returned to callers.
type WorkflowStatus struct {
	InstanceID            string      `json:"instanceId"`
	WorkflowID            string      `json:"id"`
	Name                  string      `json:"name"`
	CurrentStep           int         `json:"currentStep"`
	CurrentStepName       string      `json:"currentStepName,omitempty"`
	IsActive              bool        `json:"isActive"`
	Outcome               string      `json:"outcome,omitempty"`
	RequireAllApprovals   bool        `json:"requireAllApprovals"`
	AllowParallelApproval bool        `json:"allowParallelApproval"`
	StepStatus            []StepState `json:"stepStatus"`
	StartDate             time.Time   `json:"startDate"`
	LastUpdated           time.Time   `json:"lastUpdated"`
}

// StatusProjection is the result of a status query.
type StatusProjection struct {
	HasWorkflow bool            `json:"hasWorkflow"`
	Workflow    *WorkflowStatus `json:"workflow,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// TriggerResult reports the outcome of a trigger request.
type TriggerResult struct {
	// Matched is false when no active workflow applies to the document.
	Matched  bool
	Instance *WorkflowInstance
	// Created is false when an active instance already existed and the
	// trigger was a no-op.
	Created bool
}

// InstanceFilters narrows instance listings.
type InstanceFilters struct {
	WorkflowID string
	Collection string
	ActiveOnly bool
	Limit      int
}
