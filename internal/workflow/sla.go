package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/model"
)

// ProcessSLA checks every active instance for an overdue current step. An
// overdue step is recorded once per round; steps configured to auto-escalate
// notify their escalation target. Assignees are never changed. It returns
// the number of instances updated.
func (e *Engine) ProcessSLA(ctx context.Context, now time.Time) (updated int, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.sla_sweep")
	defer func() { observability.EndSpanWithError(span, err) }()

	active, err := e.store.List(ctx, model.InstanceFilters{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list active workflows: %w", err)
	}

	for _, inst := range active {
		def, ok := e.registry.GetWorkflow(inst.WorkflowID)
		if !ok || !slaDue(def, &inst, now) {
			continue
		}
		changed, err := e.processSLA(ctx, inst.DocumentID, inst.Collection, now)
		if err != nil {
			// Log and continue processing other instances.
			e.logger.Warn("sla check failed",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
			continue
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

// processSLA re-validates an instance under its lock, since it may have
// advanced after the sweep listed it.
func (e *Engine) processSLA(ctx context.Context, documentID, collection string, now time.Time) (bool, error) {
	unlock, err := e.lock(ctx, model.InstanceKey(documentID, collection))
	if err != nil {
		return false, err
	}
	defer unlock()

	inst, err := e.store.Get(ctx, documentID, collection)
	if err != nil {
		return false, err
	}
	def, ok := e.registry.GetWorkflow(inst.WorkflowID)
	if !ok || !slaDue(def, &inst, now) {
		return false, nil
	}

	idx := inst.CurrentStep
	step := def.Steps[idx]
	st := &inst.Steps[idx]
	ref := stepRef(step, idx)

	doc := e.documentOrEmpty(ctx, collection, documentID)
	tx := newTransition(def, &inst, doc, false)

	st.SLAExceeded = true
	tx.record(audit.SLAExceeded{
		Step:    ref,
		Hours:   step.SLA.Hours,
		Overdue: now.Sub(*st.StartedAt) - slaWindow(step.SLA),
	})
	tx.after(func() { e.metrics.RecordSLAExceeded(def.ID, step.ID) })

	if step.SLA.AutoEscalate && step.SLA.EscalateTo != "" && !st.Escalated {
		st.Escalated = true
		tx.record(audit.Escalated{Step: ref, To: step.SLA.EscalateTo})
		tx.notify(e.notification(tx, model.NotifyEscalation, idx, []string{step.SLA.EscalateTo}, ""))
		tx.after(func() { e.metrics.RecordEscalation(def.ID, step.ID) })
	}

	if err := e.commit(ctx, tx); err != nil {
		return false, err
	}

	e.logger.Info("step sla exceeded",
		zap.String("instance_id", inst.ID),
		zap.String("step_id", step.ID),
		zap.Bool("escalated", st.Escalated),
	)

	unlock()
	e.dispatch(ctx, tx)
	return true, nil
}

func slaDue(def model.WorkflowDefinition, inst *model.WorkflowInstance, now time.Time) bool {
	if !inst.IsActive || inst.CurrentStep < 0 || inst.CurrentStep >= len(def.Steps) || inst.CurrentStep >= len(inst.Steps) {
		return false
	}
	step := def.Steps[inst.CurrentStep]
	st := inst.Steps[inst.CurrentStep]
	if step.SLA == nil || !step.SLA.Enabled || step.SLA.Hours <= 0 {
		return false
	}
	if st.Status != model.StepStatusInProgress || st.SLAExceeded || st.StartedAt == nil {
		return false
	}
	return now.Sub(*st.StartedAt) > slaWindow(step.SLA)
}

func slaWindow(sla *model.SLA) time.Duration {
	return time.Duration(sla.Hours) * time.Hour
}
