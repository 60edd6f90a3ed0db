package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/assignee"
	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/internal/condition"
	"github.com/pitabwire/signoff/internal/definition"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/model"
)

// Options tunes engine behavior.
type Options struct {
	// EnforceStepConditions skips steps whose enabled conditions do not hold
	// for the document.
	EnforceStepConditions bool
	// ResolveTimeout bounds a single assignee resolution.
	ResolveTimeout time.Duration
	// LockTimeout bounds the wait for the per-instance lock.
	LockTimeout time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		EnforceStepConditions: true,
		ResolveTimeout:        5 * time.Second,
		LockTimeout:           10 * time.Second,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOptions replaces the engine options.
func WithOptions(o Options) EngineOption {
	return func(e *Engine) { e.opts = o }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// WithClock replaces the engine clock. For testing.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine drives workflow instances through their steps. All mutations of an
// instance happen under its per-key lock.
type Engine struct {
	registry  *definition.Registry
	store     InstanceStore
	locker    Locker
	audit     *audit.Logger
	resolver  *assignee.Resolver
	documents model.DocumentStore
	notifier  model.Notifier
	logger    *zap.Logger
	metrics   Recorder
	opts      Options
	now       func() time.Time
}

// NewEngine creates a new workflow engine.
func NewEngine(
	registry *definition.Registry,
	store InstanceStore,
	locker Locker,
	auditLog *audit.Logger,
	resolver *assignee.Resolver,
	documents model.DocumentStore,
	notifier model.Notifier,
	logger *zap.Logger,
	options ...EngineOption,
) *Engine {
	e := &Engine{
		registry:  registry,
		store:     store,
		locker:    locker,
		audit:     auditLog,
		resolver:  resolver,
		documents: documents,
		notifier:  notifier,
		logger:    logger,
		metrics:   nopRecorder{},
		opts:      DefaultOptions(),
		now:       time.Now,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Trigger starts a workflow for the document if an applicable active
// workflow exists and no instance is active for the document yet.
func (e *Engine) Trigger(ctx context.Context, documentID, collection string) (res model.TriggerResult, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.trigger",
		observability.AttrDocumentID.String(documentID),
		observability.AttrCollection.String(collection),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	return e.trigger(ctx, documentID, collection, false)
}

// HandleDocumentEvent is the document lifecycle hook. It triggers the
// applicable workflow only when that workflow has auto_start enabled.
func (e *Engine) HandleDocumentEvent(ctx context.Context, collection, documentID, operation string) (res model.TriggerResult, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.document_event",
		observability.AttrDocumentID.String(documentID),
		observability.AttrCollection.String(collection),
		attribute.String("document.operation", operation),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	switch operation {
	case "create", "update":
	default:
		return model.TriggerResult{}, model.NewBadRequestError(
			fmt.Sprintf("unsupported document operation %q", operation),
		)
	}
	return e.trigger(ctx, documentID, collection, true)
}

func (e *Engine) trigger(ctx context.Context, documentID, collection string, autoStartOnly bool) (model.TriggerResult, error) {
	if documentID == "" || collection == "" {
		return model.TriggerResult{}, model.NewMissingFieldsError(missing(
			"documentId", documentID, "collectionSlug", collection,
		)...)
	}

	// 1. Load the document and match a workflow before taking the lock.
	doc, err := e.documents.FindDocument(ctx, collection, documentID)
	if model.ErrorCode(err) == model.ErrNotFound {
		e.logger.Debug("trigger for unknown document",
			zap.String("document_id", documentID),
			zap.String("collection", collection),
		)
		e.metrics.RecordTrigger("", "no_document")
		return model.TriggerResult{Matched: false}, nil
	}
	if err != nil {
		return model.TriggerResult{}, e.boundaryError(err, "loading document")
	}

	def, ok := e.registry.FindApplicable(collection, doc)
	if !ok || (autoStartOnly && !def.Settings.AutoStart) {
		e.metrics.RecordTrigger("", "no_workflow")
		return model.TriggerResult{Matched: false}, nil
	}

	// 2. Serialize against other operations on this document.
	unlock, err := e.lock(ctx, model.InstanceKey(documentID, collection))
	if err != nil {
		return model.TriggerResult{}, err
	}
	defer unlock()

	// 3. An active instance makes the trigger a no-op.
	existing, err := e.store.Get(ctx, documentID, collection)
	if err == nil && existing.IsActive {
		e.metrics.RecordTrigger(def.ID, "already_active")
		return model.TriggerResult{Matched: true, Instance: &existing, Created: false}, nil
	}
	if err != nil && model.ErrorCode(err) != model.ErrNotFound {
		return model.TriggerResult{}, e.boundaryError(err, "loading instance")
	}

	// 4. Build the instance with every step pending.
	now := e.now().UTC()
	inst := &model.WorkflowInstance{
		ID:         uuid.New().String(),
		WorkflowID: def.ID,
		DocumentID: documentID,
		Collection: collection,
		IsActive:   true,
		Steps:      make([]model.StepState, len(def.Steps)),
		StartedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	for i, step := range def.Steps {
		inst.Steps[i] = model.StepState{StepID: step.ID, Status: model.StepStatusPending}
	}

	tx := newTransition(def, inst, doc, true)
	tx.record(audit.WorkflowStarted{})

	// 5. Enter the first step; skips and completion cascade from here.
	e.startStep(ctx, tx, 0)

	// 6. Persist audit then state.
	if err := e.commit(ctx, tx); err != nil {
		return model.TriggerResult{}, err
	}

	e.logger.Info("workflow started",
		zap.String("instance_id", inst.ID),
		zap.String("workflow_id", def.ID),
		zap.String("document_id", documentID),
		zap.String("collection", collection),
	)
	e.metrics.RecordTrigger(def.ID, "started")

	unlock()
	e.dispatch(ctx, tx)

	return model.TriggerResult{Matched: true, Instance: inst, Created: true}, nil
}

// Cancel deactivates an active instance.
func (e *Engine) Cancel(ctx context.Context, documentID, collection, userID, reason string) (err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.cancel",
		observability.AttrDocumentID.String(documentID),
		observability.AttrCollection.String(collection),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if documentID == "" || collection == "" {
		return model.NewMissingFieldsError(missing(
			"documentId", documentID, "collectionSlug", collection,
		)...)
	}

	unlock, err := e.lock(ctx, model.InstanceKey(documentID, collection))
	if err != nil {
		return err
	}
	defer unlock()

	inst, err := e.store.Get(ctx, documentID, collection)
	if err != nil {
		return e.boundaryError(err, "loading instance")
	}
	if !inst.IsActive {
		return model.NewWorkflowInactiveError()
	}
	def, ok := e.registry.GetWorkflow(inst.WorkflowID)
	if !ok {
		return model.NewWorkflowNotFoundError()
	}

	doc := e.documentOrEmpty(ctx, collection, documentID)
	tx := newTransition(def, &inst, doc, false)

	now := e.now().UTC()
	inst.IsActive = false
	inst.Outcome = model.OutcomeCancelled
	inst.CompletedAt = &now
	tx.record(audit.WorkflowCancelled{User: userID, Reason: reason})
	tx.after(func() { e.metrics.RecordCompletion(def.ID, model.OutcomeCancelled, now.Sub(inst.StartedAt)) })

	if err := e.commit(ctx, tx); err != nil {
		return err
	}
	e.logger.Info("workflow cancelled",
		zap.String("instance_id", inst.ID),
		zap.String("document_id", documentID),
		zap.String("user_id", userID),
	)
	return nil
}

// startStep enters the step at index, skipping steps that resolve to no
// assignees or whose conditions do not hold. Running past the last step
// completes the workflow as approved.
func (e *Engine) startStep(ctx context.Context, tx *transition, index int) {
	for {
		if index >= len(tx.def.Steps) {
			e.completeWorkflow(tx, model.OutcomeApproved)
			return
		}

		step := tx.def.Steps[index]
		st := &tx.inst.Steps[index]
		tx.inst.CurrentStep = index
		from := st.Status

		if e.opts.EnforceStepConditions && step.Conditions != nil && step.Conditions.Enabled &&
			!condition.All(step.Conditions.Rules, tx.doc) {
			e.skipStep(tx, index, audit.ReasonConditionsNotMet)
			index++
			continue
		}

		assignees := e.resolveAssignees(ctx, step)
		if len(assignees) == 0 {
			e.skipStep(tx, index, audit.ReasonNoAssignees)
			index++
			continue
		}

		now := e.now().UTC()
		st.Status = model.StepStatusInProgress
		st.Round++
		st.Assignees = assignees
		st.StartedAt = &now
		st.CompletedAt = nil
		st.SLAExceeded = false
		st.Escalated = false

		tx.record(audit.StepStarted{Step: stepRef(step, index), Round: st.Round, Assignees: assignees, From: from})

		if tx.def.Settings.Notifications.Enabled() {
			tx.notify(e.notification(tx, model.NotifyStepAssigned, index, assignees, ""))
		}
		return
	}
}

func (e *Engine) skipStep(tx *transition, index int, reason string) {
	now := e.now().UTC()
	st := &tx.inst.Steps[index]
	st.Status = model.StepStatusSkipped
	st.Assignees = nil
	st.CompletedAt = &now
	tx.record(audit.StepSkipped{Step: stepRef(tx.def.Steps[index], index), Reason: reason})
}

// completeStep closes the step at index with the decision outcome and
// applies the step's effects.
func (e *Engine) completeStep(ctx context.Context, tx *transition, index int, approved bool) {
	step := tx.def.Steps[index]
	st := &tx.inst.Steps[index]
	now := e.now().UTC()

	effects := step.Actions.RejectEffects()
	docStatus := step.Actions.StatusOnReject
	st.Status = model.StepStatusRejected
	if approved {
		effects = step.Actions.ApproveEffects()
		docStatus = step.Actions.StatusOnApprove
		st.Status = model.StepStatusCompleted
	}
	st.CompletedAt = &now

	var duration time.Duration
	if st.StartedAt != nil {
		duration = now.Sub(*st.StartedAt)
	}

	completed := audit.StepCompleted{Step: stepRef(step, index), Status: st.Status, Duration: duration}
	if model.HasEffect(effects, model.EffectUpdateStatus) && docStatus != "" {
		if prev, ok := e.updateDocumentStatus(ctx, tx, docStatus); ok {
			completed.PreviousStatus = prev
			completed.NewStatus = docStatus
		}
	}
	tx.record(completed)
	tx.after(func() { e.metrics.RecordStepDuration(tx.def.ID, step.ID, duration) })

	if model.HasEffect(effects, model.EffectNotify) {
		outcome := model.OutcomeRejected
		if approved {
			outcome = model.OutcomeApproved
		}
		tx.notify(e.notification(tx, model.NotifyStepOutcome, index, st.Assignees, outcome))
	}

	switch {
	case approved && (model.HasEffect(effects, model.EffectComplete) || index == len(tx.def.Steps)-1):
		e.completeWorkflow(tx, model.OutcomeApproved)
	case approved:
		e.startStep(ctx, tx, index+1)
	case model.HasEffect(effects, model.EffectPreviousStep) && index > 0:
		e.startStep(ctx, tx, index-1)
	default:
		e.completeWorkflow(tx, model.OutcomeRejected)
	}
}

func (e *Engine) completeWorkflow(tx *transition, outcome string) {
	now := e.now().UTC()
	tx.inst.IsActive = false
	tx.inst.Outcome = outcome
	tx.inst.CompletedAt = &now

	duration := now.Sub(tx.inst.StartedAt)
	tx.record(audit.WorkflowCompleted{Outcome: outcome, Duration: duration})
	tx.after(func() { e.metrics.RecordCompletion(tx.def.ID, outcome, duration) })
}

func (e *Engine) resolveAssignees(ctx context.Context, step model.StepDefinition) []string {
	rctx, cancel := context.WithTimeout(ctx, e.opts.ResolveTimeout)
	defer cancel()

	ids, err := e.resolver.ResolveStep(rctx, step)
	if err != nil {
		e.logger.Warn("assignee resolution failed, treating as empty",
			zap.String("step_id", step.ID),
			zap.Error(err),
		)
		return nil
	}
	return ids
}

func (e *Engine) updateDocumentStatus(ctx context.Context, tx *transition, status string) (string, bool) {
	updater, ok := e.documents.(model.DocumentUpdater)
	if !ok {
		return "", false
	}
	prev, err := updater.UpdateStatus(ctx, tx.inst.Collection, tx.inst.DocumentID, status)
	if err != nil {
		e.logger.Warn("document status update failed",
			zap.String("document_id", tx.inst.DocumentID),
			zap.String("collection", tx.inst.Collection),
			zap.String("status", status),
			zap.Error(err),
		)
		return "", false
	}
	return prev, true
}

func (e *Engine) notification(tx *transition, kind string, index int, recipients []string, outcome string) model.Notification {
	step := tx.def.Steps[index]
	return model.Notification{
		Kind:         kind,
		Recipients:   append([]string(nil), recipients...),
		Channels:     tx.def.Settings.Notifications.Channels(),
		InstanceID:   tx.inst.ID,
		WorkflowID:   tx.def.ID,
		WorkflowName: tx.def.Name,
		DocumentID:   tx.inst.DocumentID,
		Collection:   tx.inst.Collection,
		DocumentName: tx.subject.Document.Title,
		StepIndex:    index,
		StepName:     step.Name,
		Outcome:      outcome,
	}
}

// commit writes the transition's audit entries and then the instance.
func (e *Engine) commit(ctx context.Context, tx *transition) error {
	tx.inst.UpdatedAt = e.now().UTC()

	if err := e.audit.Append(ctx, tx.subject, tx.events...); err != nil {
		e.logger.Error("audit append failed",
			zap.String("instance_id", tx.inst.ID),
			zap.Error(err),
		)
		return model.NewStorageUnavailableError()
	}

	var err error
	if tx.create {
		err = e.store.Create(ctx, *tx.inst)
	} else {
		err = e.store.Update(ctx, *tx.inst)
	}
	if err != nil {
		return e.boundaryError(err, "persisting instance")
	}
	if !tx.create {
		tx.inst.Version++
	}

	for _, fn := range tx.afterCommit {
		fn()
	}
	return nil
}

// dispatch sends queued notifications. It runs after the lock is released;
// failures are logged and never affect workflow state.
func (e *Engine) dispatch(ctx context.Context, tx *transition) {
	if e.notifier == nil {
		return
	}
	for _, n := range tx.notifications {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.metrics.RecordNotificationFailure(n.Kind)
			e.logger.Warn("notification failed",
				zap.String("kind", n.Kind),
				zap.String("instance_id", n.InstanceID),
				zap.Strings("recipients", n.Recipients),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, e.opts.LockTimeout)
	defer cancel()

	unlock, err := e.locker.Lock(lctx, key)
	if err != nil {
		e.logger.Error("acquiring instance lock failed", zap.String("key", key), zap.Error(err))
		return nil, model.NewStorageUnavailableError()
	}
	return unlock, nil
}

func (e *Engine) documentOrEmpty(ctx context.Context, collection, documentID string) model.Document {
	doc, err := e.documents.FindDocument(ctx, collection, documentID)
	if err != nil {
		e.logger.Warn("document lookup failed",
			zap.String("document_id", documentID),
			zap.String("collection", collection),
			zap.Error(err),
		)
		return model.Document{}
	}
	return doc
}

// boundaryError passes ErrorEnvelopes through and hides everything else
// behind STORAGE_UNAVAILABLE.
func (e *Engine) boundaryError(err error, op string) error {
	if _, ok := err.(*model.ErrorEnvelope); ok {
		return err
	}
	e.logger.Error(op+" failed", zap.Error(err))
	return model.NewStorageUnavailableError()
}

func stepRef(step model.StepDefinition, index int) model.StepRef {
	return model.StepRef{Index: index, ID: step.ID, Name: step.Name, Type: step.Type}
}

// missing returns the names of empty values from name/value pairs.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}
