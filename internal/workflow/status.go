package workflow

import (
	"context"

	"github.com/pitabwire/signoff/model"
)

// Status projects the latest instance of a document into a read-only view.
// It never mutates state and does not take the instance lock; the store
// returns a consistent snapshot.
func (e *Engine) Status(ctx context.Context, documentID, collection string) (model.StatusProjection, error) {
	if documentID == "" || collection == "" {
		return model.StatusProjection{}, model.NewMissingFieldsError(missing(
			"documentId", documentID, "collection", collection,
		)...)
	}

	inst, err := e.store.Get(ctx, documentID, collection)
	if err != nil {
		if model.ErrorCode(err) == model.ErrNotFound {
			return model.StatusProjection{
				HasWorkflow: false,
				Message:     "No active workflow found for this document",
			}, nil
		}
		return model.StatusProjection{}, e.boundaryError(err, "loading instance")
	}

	def, ok := e.registry.GetWorkflow(inst.WorkflowID)
	if !ok {
		return model.StatusProjection{HasWorkflow: false, Message: "Workflow not found"}, nil
	}

	view := &model.WorkflowStatus{
		InstanceID:            inst.ID,
		WorkflowID:            def.ID,
		Name:                  def.Name,
		CurrentStep:           inst.CurrentStep,
		IsActive:              inst.IsActive,
		Outcome:               inst.Outcome,
		RequireAllApprovals:   def.Settings.RequireAllApprovals,
		AllowParallelApproval: def.Settings.AllowParallelApproval,
		StepStatus:            inst.Steps,
		StartDate:             inst.StartedAt,
		LastUpdated:           inst.UpdatedAt,
	}
	if inst.CurrentStep >= 0 && inst.CurrentStep < len(def.Steps) {
		view.CurrentStepName = def.Steps[inst.CurrentStep].Name
	}

	return model.StatusProjection{HasWorkflow: true, Workflow: view}, nil
}

// List returns instances matching filters.
func (e *Engine) List(ctx context.Context, filters model.InstanceFilters) ([]model.WorkflowInstance, error) {
	instances, err := e.store.List(ctx, filters)
	if err != nil {
		return nil, e.boundaryError(err, "listing instances")
	}
	return instances, nil
}

// AuditTrail returns the audit entries of a document's workflows in append
// order.
func (e *Engine) AuditTrail(ctx context.Context, documentID, collection string) ([]model.AuditLogEntry, error) {
	entries, err := e.audit.List(ctx, model.AuditFilters{DocumentID: documentID, Collection: collection})
	if err != nil {
		return nil, e.boundaryError(err, "listing audit entries")
	}
	return entries, nil
}
