package audit

import (
	"time"

	"github.com/pitabwire/signoff/model"
)

// Event is one of the audit record variants below. Each variant fills the
// fields of the persisted entry that apply to its action.
type Event interface {
	Action() string
	fill(e *model.AuditLogEntry)
}

// WorkflowStarted is recorded when an instance is created.
type WorkflowStarted struct{}

// StepStarted is recorded when a step becomes in_progress. The first
// assignee is recorded as the entry's user.
type StepStarted struct {
	Step      model.StepRef
	Round     int
	Assignees []string
	// From is the step status before it started; pending when empty.
	From string
}

// StepSkipped is recorded when a step is passed over, either because it
// resolved to no assignees or because its conditions did not hold.
type StepSkipped struct {
	Step   model.StepRef
	Reason string
}

// Skip reasons.
const (
	ReasonNoAssignees      = "no_assignees"
	ReasonConditionsNotMet = "conditions_not_met"
)

// Decision is recorded for every approve, reject or comment submission.
// Verb is the submitted decision (approve, reject or comment).
type Decision struct {
	Step    model.StepRef
	User    string
	Verb    string
	Comment string
	Round   int
}

// StepCompleted is recorded when a step reaches completed or rejected.
// PreviousStatus and NewStatus carry the document status when the step
// wrote one.
type StepCompleted struct {
	Step           model.StepRef
	Status         string
	Duration       time.Duration
	PreviousStatus string
	NewStatus      string
}

// WorkflowCompleted is recorded when an instance finishes with an outcome.
type WorkflowCompleted struct {
	Outcome  string
	Duration time.Duration
}

// WorkflowCancelled is recorded when an instance is cancelled.
type WorkflowCancelled struct {
	User   string
	Reason string
}

// SLAExceeded is recorded once per step round when its SLA lapses.
type SLAExceeded struct {
	Step    model.StepRef
	Hours   int
	Overdue time.Duration
}

// Escalated is recorded when an overdue step is escalated.
type Escalated struct {
	Step model.StepRef
	To   string
}

func (WorkflowStarted) Action() string   { return model.AuditWorkflowStarted }
func (StepStarted) Action() string       { return model.AuditStepStarted }
func (StepSkipped) Action() string       { return model.AuditStepSkipped }
func (WorkflowCompleted) Action() string { return model.AuditWorkflowCompleted }
func (WorkflowCancelled) Action() string { return model.AuditWorkflowCancelled }
func (SLAExceeded) Action() string       { return model.AuditSLAExceeded }
func (Escalated) Action() string         { return model.AuditEscalated }
func (StepCompleted) Action() string     { return model.AuditStepCompleted }

// Action maps the submitted decision to approved, rejected or commented.
func (d Decision) Action() string {
	switch d.Verb {
	case model.DecisionApprove:
		return model.AuditApproved
	case model.DecisionReject:
		return model.AuditRejected
	default:
		return model.AuditCommented
	}
}

func (WorkflowStarted) fill(e *model.AuditLogEntry) {
	e.NewStatus = "active"
}

func (s StepStarted) fill(e *model.AuditLogEntry) {
	step := s.Step
	e.Step = &step
	if len(s.Assignees) > 0 {
		e.User = s.Assignees[0]
	}
	e.PreviousStatus = s.From
	if e.PreviousStatus == "" {
		e.PreviousStatus = model.StepStatusPending
	}
	e.NewStatus = model.StepStatusInProgress
	e.Metadata = map[string]any{
		"assignees": append([]string(nil), s.Assignees...),
		"round":     s.Round,
	}
}

func (s StepSkipped) fill(e *model.AuditLogEntry) {
	step := s.Step
	e.Step = &step
	e.PreviousStatus = model.StepStatusPending
	e.NewStatus = model.StepStatusSkipped
	e.Metadata = map[string]any{"reason": s.Reason}
}

func (d Decision) fill(e *model.AuditLogEntry) {
	step := d.Step
	e.Step = &step
	e.User = d.User
	e.Comment = d.Comment
	e.Metadata = map[string]any{"round": d.Round}
}

func (s StepCompleted) fill(e *model.AuditLogEntry) {
	step := s.Step
	e.Step = &step
	e.PreviousStatus = s.PreviousStatus
	e.NewStatus = s.NewStatus
	e.DurationMS = millis(s.Duration)
	e.Metadata = map[string]any{"status": s.Status}
}

func (w WorkflowCompleted) fill(e *model.AuditLogEntry) {
	e.PreviousStatus = "active"
	e.NewStatus = w.Outcome
	e.DurationMS = millis(w.Duration)
}

func (w WorkflowCancelled) fill(e *model.AuditLogEntry) {
	e.User = w.User
	e.Comment = w.Reason
	e.PreviousStatus = "active"
	e.NewStatus = model.OutcomeCancelled
}

func (s SLAExceeded) fill(e *model.AuditLogEntry) {
	step := s.Step
	e.Step = &step
	e.Metadata = map[string]any{
		"slaHours":  s.Hours,
		"overdueMs": s.Overdue.Milliseconds(),
	}
}

func (s Escalated) fill(e *model.AuditLogEntry) {
	step := s.Step
	e.Step = &step
	e.User = s.To
	e.Metadata = map[string]any{"escalatedTo": s.To}
}

func millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
