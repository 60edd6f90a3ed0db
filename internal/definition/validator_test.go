package definition

import (
	"testing"

	"github.com/pitabwire/signoff/model"
)

func validWorkflow() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		ID:        "wf",
		Name:      "Workflow",
		IsActive:  true,
		AppliesTo: []model.AppliesTo{{Collection: "posts"}},
		Steps: []model.StepDefinition{
			{
				ID:        "review",
				Name:      "Review",
				Type:      model.StepTypeReview,
				Order:     1,
				Assignees: model.Assignees{Type: model.AssigneeTypeRoles, Roles: []string{"reviewer"}},
			},
		},
	}
}

func validate(wfs ...model.WorkflowDefinition) []VError {
	return NewValidator().Validate([]model.CatalogFile{{Workflows: wfs}})
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidator_valid(t *testing.T) {
	if errs := validate(validWorkflow()); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidator_testdata_catalog_is_valid(t *testing.T) {
	files, err := NewLoader().LoadAll([]string{"testdata/catalog"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if errs := NewValidator().Validate(files); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidator_duplicate_workflow_id(t *testing.T) {
	errs := validate(validWorkflow(), validWorkflow())
	if !hasCode(errs, "DUPLICATE") {
		t.Errorf("expected DUPLICATE, got %v", errs)
	}
}

func TestValidator_unknown_step_type(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Type = "vote"
	if errs := validate(wf); !hasCode(errs, "INVALID") {
		t.Errorf("expected INVALID, got %v", errs)
	}
}

func TestValidator_assignee_payload_required(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Assignees = model.Assignees{Type: model.AssigneeTypeDepartment}
	errs := validate(wf)
	if len(errs) != 1 || errs[0].Path != "files[0].workflows[0].steps[0].assignees.department" {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestValidator_unknown_operator(t *testing.T) {
	wf := validWorkflow()
	wf.AppliesTo[0].Condition = &model.Condition{Field: "amount", Operator: "between"}
	if errs := validate(wf); !hasCode(errs, "INVALID") {
		t.Errorf("expected INVALID, got %v", errs)
	}
}

func TestValidator_sla_hours(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].SLA = &model.SLA{Enabled: true, AutoEscalate: true}
	errs := validate(wf)
	if len(errs) != 2 {
		t.Errorf("expected hours and escalate_to errors, got %v", errs)
	}
}

func TestValidator_unknown_effects(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Actions = model.StepActions{
		OnApprove: []string{model.EffectEnd},
		OnReject:  []string{model.EffectComplete},
	}
	if errs := validate(wf); len(errs) != 2 {
		t.Errorf("expected two effect errors, got %v", errs)
	}
}

func TestValidator_duplicate_order(t *testing.T) {
	wf := validWorkflow()
	second := wf.Steps[0]
	second.ID = "review-2"
	wf.Steps = append(wf.Steps, second)
	if errs := validate(wf); !hasCode(errs, "DUPLICATE") {
		t.Errorf("expected DUPLICATE, got %v", errs)
	}
}

func TestValidator_zero_steps_allowed(t *testing.T) {
	wf := validWorkflow()
	wf.Steps = nil
	if errs := validate(wf); len(errs) != 0 {
		t.Errorf("a workflow without steps is valid, got %v", errs)
	}
}
