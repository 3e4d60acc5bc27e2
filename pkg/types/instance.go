package types

import "time"

// Instance statuses used by the engine itself. Applications may set any
// status value; these are the defaults the engine stamps.
const (
	InstanceStatusCreated   = "created"
	InstanceStatusActive    = "active"
	InstanceStatusCompleted = "completed"
)

// Instance is a concrete object created from a template. The type-hierarchy
// fields are denormalized from the template at creation time so instances
// remain queryable even as templates evolve.
type Instance struct {
	// UUID is the surrogate row ID (UUID v7).
	UUID string `json:"uuid"`

	// EUID is the checksummed public identifier, prefixed by the owning
	// template's instance_prefix.
	EUID string `json:"euid"`

	Name string `json:"name"`

	// Discriminator tags the instance variant (e.g. "container_instance").
	Discriminator string `json:"discriminator"`

	// Denormalized from the template at creation time.
	Category string `json:"category"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Version  string `json:"version"`

	// TemplateUUID and TemplateEUID reference the owning template.
	TemplateUUID string `json:"template_uuid"`
	TemplateEUID string `json:"template_euid"`

	// Properties is the instance payload: template defaults deep-merged
	// under caller-supplied values.
	Properties map[string]any `json:"properties,omitempty"`

	// ActionGroups holds materialized action definitions keyed by group then
	// action key.
	ActionGroups ActionGroups `json:"action_groups,omitempty"`

	Status      string `json:"status"`
	IsSingleton bool   `json:"is_singleton"`
	IsDeleted   bool   `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
