package model

// CatalogFile is the root structure of a definition file. Each file declares
// one or more approval workflows.
type CatalogFile struct {
	Version   string               `yaml:"version"   json:"version"`
	Workflows []WorkflowDefinition `yaml:"workflows" json:"workflows"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Step types.
const (
	StepTypeApproval    = "approval"
	StepTypeReview      = "review"
	StepTypeSignOff     = "sign_off"
	StepTypeCommentOnly = "comment_only"
)

// Effects permitted in StepActions.OnApprove.
const (
	EffectNextStep     = "next_step"
	EffectComplete     = "complete"
	EffectNotify       = "notify"
	EffectUpdateStatus = "update_status"
)

// Effects permitted in StepActions.OnReject.
const (
	EffectEnd          = "end"
	EffectPreviousStep = "previous_step"
)

// WorkflowDefinition is the template for an approval process. It is immutable
// once loaded into the registry.
type WorkflowDefinition struct {
	ID          string           `yaml:"id"          json:"id"`
	Name        string           `yaml:"name"        json:"name"`
	Description string           `yaml:"description" json:"description,omitempty"`
	IsActive    bool             `yaml:"is_active"   json:"is_active"`
	AppliesTo   []AppliesTo      `yaml:"applies_to"  json:"applies_to"`
	Steps       []StepDefinition `yaml:"steps"       json:"steps"`
	Settings    WorkflowSettings `yaml:"settings"    json:"settings"`
}

// AppliesTo binds a workflow to a collection, optionally gated on a document
// field condition.
type AppliesTo struct {
	Collection string     `yaml:"collection" json:"collection"`
	Condition  *Condition `yaml:"condition"  json:"condition,omitempty"`
}

// Condition operators.
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpGreater    = "greater_than"
	OpLess       = "less_than"
	OpContains   = "contains"
	OpNotContain = "not_contains"
	OpEmpty      = "is_empty"
	OpNotEmpty   = "is_not_empty"
)

// Condition is a single predicate over a document field. Field may be a
// dotted path into nested objects.
type Condition struct {
	Field    string `yaml:"field"    json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value"    json:"value,omitempty"`
}

// WorkflowSettings holds per-workflow behavior switches.
type WorkflowSettings struct {
	AutoStart             bool                 `yaml:"auto_start"              json:"auto_start"`
	RequireAllApprovals   bool                 `yaml:"require_all_approvals"   json:"require_all_approvals"`
	AllowParallelApproval bool                 `yaml:"allow_parallel_approval" json:"allow_parallel_approval"`
	Notifications         NotificationSettings `yaml:"notifications"           json:"notifications"`
}

// NotificationSettings selects the channels used for assignee notifications.
type NotificationSettings struct {
	Email bool `yaml:"email"  json:"email"`
	InApp bool `yaml:"in_app" json:"in_app"`
}

// Enabled reports whether any channel is switched on.
func (n NotificationSettings) Enabled() bool {
	return n.Email || n.InApp
}

// Channels lists the enabled channel names.
func (n NotificationSettings) Channels() []string {
	var out []string
	if n.Email {
		out = append(out, "email")
	}
	if n.InApp {
		out = append(out, "in_app")
	}
	return out
}

// StepDefinition describes one stage of a workflow. Steps are stored sorted
// by Order; the position in WorkflowDefinition.Steps is the step index.
type StepDefinition struct {
	ID          string          `yaml:"id"          json:"id"`
	Name        string          `yaml:"name"        json:"name"`
	Description string          `yaml:"description" json:"description,omitempty"`
	Type        string          `yaml:"type"        json:"type"`
	Order       int             `yaml:"order"       json:"order"`
	Assignees   Assignees       `yaml:"assignees"   json:"assignees"`
	Conditions  *StepConditions `yaml:"conditions"  json:"conditions,omitempty"`
	SLA         *SLA            `yaml:"sla"         json:"sla,omitempty"`
	Actions     StepActions     `yaml:"actions"     json:"actions"`
}

// StepConditions gates a step on document fields. All rules must hold.
type StepConditions struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Rules   []Condition `yaml:"rules"   json:"rules"`
}

// SLA declares the expected completion time of a step.
type SLA struct {
	Enabled      bool   `yaml:"enabled"       json:"enabled"`
	Hours        int    `yaml:"hours"         json:"hours"`
	AutoEscalate bool   `yaml:"auto_escalate" json:"auto_escalate"`
	EscalateTo   string `yaml:"escalate_to"   json:"escalate_to,omitempty"`
}

// StepActions lists the effects applied when a step completes.
type StepActions struct {
	OnApprove       []string `yaml:"on_approve"        json:"on_approve,omitempty"`
	OnReject        []string `yaml:"on_reject"         json:"on_reject,omitempty"`
	StatusOnApprove string   `yaml:"status_on_approve" json:"status_on_approve,omitempty"`
	StatusOnReject  string   `yaml:"status_on_reject"  json:"status_on_reject,omitempty"`
}

// ApproveEffects returns OnApprove, defaulting to next_step.
func (a StepActions) ApproveEffects() []string {
	if len(a.OnApprove) == 0 {
		return []string{EffectNextStep}
	}
	return a.OnApprove
}

// RejectEffects returns OnReject, defaulting to end.
func (a StepActions) RejectEffects() []string {
	if len(a.OnReject) == 0 {
		return []string{EffectEnd}
	}
	return a.OnReject
}

// HasEffect reports whether effect appears in effects.
func HasEffect(effects []string, effect string) bool {
	for _, e := range effects {
		if e == effect {
			return true
		}
	}
	return false
}
