package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/model"
)

// Decision is an approve, reject or comment submission by an assignee.
type Decision struct {
	DocumentID string
	Collection string
	StepIndex  int
	UserID     string
	Action     string
	Comment    string
}

// Submit records a decision against the instance's current step. Checks run
// in order: unknown instance, inactive workflow, wrong step, unassigned
// user. A rejection completes the step at once; approvals complete it when
// the workflow's completion policy is met.
func (e *Engine) Submit(ctx context.Context, d Decision) (err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.submit",
		observability.AttrDocumentID.String(d.DocumentID),
		observability.AttrCollection.String(d.Collection),
		attribute.Int("workflow.step_index", d.StepIndex),
		attribute.String("workflow.action", d.Action),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if fields := missing("documentId", d.DocumentID, "collectionSlug", d.Collection, "userId", d.UserID, "action", d.Action); len(fields) > 0 {
		return model.NewMissingFieldsError(fields...)
	}
	if !model.ValidDecision(d.Action) {
		return model.NewBadRequestError(fmt.Sprintf("action must be approve, reject or comment, got %q", d.Action))
	}

	// 1. The document only feeds audit titles and later step conditions.
	doc := e.documentOrEmpty(ctx, d.Collection, d.DocumentID)

	// 2. Serialize against other operations on this document.
	unlock, err := e.lock(ctx, model.InstanceKey(d.DocumentID, d.Collection))
	if err != nil {
		return err
	}
	defer unlock()

	// 3. Validate against current state.
	inst, err := e.store.Get(ctx, d.DocumentID, d.Collection)
	if err != nil {
		if model.ErrorCode(err) == model.ErrNotFound {
			return model.NewNotFoundError("No workflow found for this document")
		}
		return e.boundaryError(err, "loading instance")
	}
	if !inst.IsActive {
		return model.NewWorkflowInactiveError()
	}
	if d.StepIndex < 0 || d.StepIndex >= len(inst.Steps) {
		return model.NewInvalidStepError(fmt.Sprintf("step %d does not exist", d.StepIndex))
	}
	if d.StepIndex != inst.CurrentStep || inst.Steps[d.StepIndex].Status != model.StepStatusInProgress {
		return model.NewInvalidStepError(fmt.Sprintf("step %d is not the current step", d.StepIndex))
	}
	def, ok := e.registry.GetWorkflow(inst.WorkflowID)
	if !ok || len(def.Steps) != len(inst.Steps) {
		return model.NewWorkflowNotFoundError()
	}
	st := &inst.Steps[d.StepIndex]
	if !st.IsAssigned(d.UserID) {
		return model.NewNotAssignedError()
	}

	// 4. Record the decision.
	tx := newTransition(def, &inst, doc, false)
	st.Approvals = append(st.Approvals, model.Approval{
		UserID:    d.UserID,
		Action:    d.Action,
		Comment:   d.Comment,
		Round:     st.Round,
		Timestamp: e.now().UTC(),
	})
	tx.record(audit.Decision{
		Step:    stepRef(def.Steps[d.StepIndex], d.StepIndex),
		User:    d.UserID,
		Verb:    d.Action,
		Comment: d.Comment,
		Round:   st.Round,
	})
	tx.after(func() { e.metrics.RecordDecision(def.ID, d.Action) })

	// 5. Evaluate the completion policy.
	if d.Action != model.DecisionComment && stepComplete(def.Settings, st, d.Action) {
		e.completeStep(ctx, tx, d.StepIndex, d.Action == model.DecisionApprove)
	}

	if err := e.commit(ctx, tx); err != nil {
		return err
	}

	e.logger.Info("decision recorded",
		zap.String("instance_id", inst.ID),
		zap.Int("step_index", d.StepIndex),
		zap.String("user_id", d.UserID),
		zap.String("action", d.Action),
		zap.Bool("workflow_active", inst.IsActive),
	)

	unlock()
	e.dispatch(ctx, tx)
	return nil
}

// stepComplete reports whether the step's current round is decided. Any
// rejection decides it. Otherwise a single approval suffices unless all
// approvals are required, in which case every assignee must have approved;
// repeat approvals by the same user count once.
func stepComplete(settings model.WorkflowSettings, st *model.StepState, action string) bool {
	if action == model.DecisionReject {
		return true
	}
	if !settings.RequireAllApprovals {
		return true
	}

	approved := make(map[string]bool)
	for _, a := range st.CurrentApprovals() {
		if a.Action == model.DecisionApprove && st.IsAssigned(a.UserID) {
			approved[a.UserID] = true
		}
	}
	return len(approved) >= len(st.Assignees)
}
