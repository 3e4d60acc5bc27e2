package types

// Action result statuses.
const (
	ActionStatusSuccess = "success"
	ActionStatusError   = "error"
)

// Action tracking keys inside a materialized action definition.
const (
	ActionFieldExecuted     = "action_executed"
	ActionFieldExecutedAt   = "executed_datetime"
	ActionFieldEnabled      = "action_enabled"
	ActionFieldTemplateUUID = "action_template_uuid"
	ActionFieldTemplateEUID = "action_template_euid"
	ActionFieldTemplateCode = "action_template_code"
)

// ActionDefinition is one materialized action: the action template's
// definition payload plus runtime tracking fields.
type ActionDefinition map[string]any

// ActionGroups holds an instance's materialized actions, keyed by group name
// ("<type>_actions") then action key.
type ActionGroups map[string]map[string]ActionDefinition

// ActionResult is the outcome of one dispatched action.
type ActionResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool { return r.Status == ActionStatusSuccess }
