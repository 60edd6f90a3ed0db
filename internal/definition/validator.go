package definition

import (
	"fmt"

	"github.com/pitabwire/signoff/internal/condition"
	"github.com/pitabwire/signoff/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var validStepTypes = map[string]bool{
	model.StepTypeApproval:    true,
	model.StepTypeReview:      true,
	model.StepTypeSignOff:     true,
	model.StepTypeCommentOnly: true,
}

var validApproveEffects = map[string]bool{
	model.EffectNextStep:     true,
	model.EffectComplete:     true,
	model.EffectNotify:       true,
	model.EffectUpdateStatus: true,
}

var validRejectEffects = map[string]bool{
	model.EffectEnd:          true,
	model.EffectPreviousStep: true,
	model.EffectNotify:       true,
	model.EffectUpdateStatus: true,
}

// Validator checks catalog files structurally.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all catalog files. Workflow IDs must be unique across
// files.
func (v *Validator) Validate(files []model.CatalogFile) []VError {
	var errs []VError
	seen := make(map[string]string)

	for i, f := range files {
		prefix := fmt.Sprintf("files[%d]", i)
		if f.SourceFile != "" {
			prefix = f.SourceFile
		}
		for j, wf := range f.Workflows {
			wp := fmt.Sprintf("%s.workflows[%d]", prefix, j)
			if prev, dup := seen[wf.ID]; dup && wf.ID != "" {
				errs = append(errs, VError{Path: wp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("workflow id %q already defined at %s", wf.ID, prev)})
			}
			seen[wf.ID] = wp
			errs = append(errs, v.validateWorkflow(wp, wf)...)
		}
	}
	return errs
}

func (v *Validator) validateWorkflow(prefix string, wf model.WorkflowDefinition) []VError {
	var errs []VError

	if wf.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if wf.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if len(wf.AppliesTo) == 0 {
		errs = append(errs, VError{Path: prefix + ".applies_to", Code: "REQUIRED", Message: "at least one applies_to entry is required"})
	}
	for i, at := range wf.AppliesTo {
		ap := fmt.Sprintf("%s.applies_to[%d]", prefix, i)
		if at.Collection == "" {
			errs = append(errs, VError{Path: ap + ".collection", Code: "REQUIRED", Message: "collection is required"})
		}
		if at.Condition != nil {
			errs = append(errs, validateCondition(ap+".condition", *at.Condition)...)
		}
	}

	orders := make(map[int]string)
	stepIDs := make(map[string]bool)
	for i, step := range wf.Steps {
		sp := fmt.Sprintf("%s.steps[%d]", prefix, i)
		if prev, dup := orders[step.Order]; dup {
			errs = append(errs, VError{Path: sp + ".order", Code: "DUPLICATE", Message: fmt.Sprintf("order %d already used by step %q", step.Order, prev)})
		}
		orders[step.Order] = step.ID
		if step.ID != "" && stepIDs[step.ID] {
			errs = append(errs, VError{Path: sp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("step id %q is not unique", step.ID)})
		}
		stepIDs[step.ID] = true
		errs = append(errs, v.validateStep(sp, step)...)
	}

	return errs
}

func (v *Validator) validateStep(prefix string, step model.StepDefinition) []VError {
	var errs []VError

	if step.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if step.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if !validStepTypes[step.Type] {
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID", Message: fmt.Sprintf("unknown step type %q", step.Type)})
	}

	rule, err := step.Assignees.Rule()
	if err != nil {
		errs = append(errs, VError{Path: prefix + ".assignees.type", Code: "INVALID", Message: err.Error()})
	} else {
		switch r := rule.(type) {
		case model.UsersRule:
			if len(r.UserIDs) == 0 {
				errs = append(errs, VError{Path: prefix + ".assignees.users", Code: "REQUIRED", Message: "users rule needs at least one user"})
			}
		case model.RolesRule:
			if len(r.Roles) == 0 {
				errs = append(errs, VError{Path: prefix + ".assignees.roles", Code: "REQUIRED", Message: "roles rule needs at least one role"})
			}
		case model.DepartmentRule:
			if r.Department == "" {
				errs = append(errs, VError{Path: prefix + ".assignees.department", Code: "REQUIRED", Message: "department rule needs a department"})
			}
		}
	}

	if step.Conditions != nil {
		for i, c := range step.Conditions.Rules {
			errs = append(errs, validateCondition(fmt.Sprintf("%s.conditions.rules[%d]", prefix, i), c)...)
		}
	}

	if step.SLA != nil && step.SLA.Enabled {
		if step.SLA.Hours <= 0 {
			errs = append(errs, VError{Path: prefix + ".sla.hours", Code: "INVALID", Message: "sla hours must be positive"})
		}
		if step.SLA.AutoEscalate && step.SLA.EscalateTo == "" {
			errs = append(errs, VError{Path: prefix + ".sla.escalate_to", Code: "REQUIRED", Message: "escalate_to is required when auto_escalate is set"})
		}
	}

	for i, e := range step.Actions.OnApprove {
		if !validApproveEffects[e] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.actions.on_approve[%d]", prefix, i), Code: "INVALID", Message: fmt.Sprintf("unknown approve effect %q", e)})
		}
	}
	for i, e := range step.Actions.OnReject {
		if !validRejectEffects[e] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.actions.on_reject[%d]", prefix, i), Code: "INVALID", Message: fmt.Sprintf("unknown reject effect %q", e)})
		}
	}

	return errs
}

func validateCondition(path string, c model.Condition) []VError {
	var errs []VError
	if c.Field == "" {
		errs = append(errs, VError{Path: path + ".field", Code: "REQUIRED", Message: "field is required"})
	}
	if !condition.Known(c.Operator) {
		errs = append(errs, VError{Path: path + ".operator", Code: "INVALID", Message: fmt.Sprintf("unknown operator %q", c.Operator)})
	}
	return errs
}
