package types

import "time"

// Template statuses.
const (
	TemplateStatusActive  = "active"
	TemplateStatusRetired = "retired"
)

// Template is a blueprint for creating instances. Templates are seeded from
// configuration documents or created administratively, and are never
// physically removed.
type Template struct {
	// UUID is the surrogate row ID (UUID v7).
	UUID string `json:"uuid"`

	// EUID is the checksummed public identifier (GT prefix).
	EUID string `json:"euid"`

	Name string `json:"name"`

	// Discriminator tags the template variant within the single polymorphic
	// table (e.g. "container_template").
	Discriminator string `json:"discriminator"`

	// Composite key. Unique among live templates.
	Category string `json:"category"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Version  string `json:"version"`

	// InstancePrefix is the EUID prefix stamped on instances created from
	// this template. Uppercase letters only; the prefix counter must be
	// provisioned before use.
	InstancePrefix string `json:"instance_prefix"`

	// InstanceDiscriminator tags instances created from this template. When
	// empty, the factory derives it from Discriminator.
	InstanceDiscriminator string `json:"instance_discriminator,omitempty"`

	// PayloadSchema is an optional JSON Schema applied to instance
	// properties at creation time.
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`

	// DefaultProperties are merged under caller-supplied properties.
	DefaultProperties map[string]any `json:"default_properties,omitempty"`

	// DefaultStatus is the status stamped on new instances ("created" when
	// empty).
	DefaultStatus string `json:"default_status,omitempty"`

	// ActionImports maps action keys to action template codes. Imports are
	// materialized into instance action groups at creation time.
	ActionImports map[string]string `json:"action_imports,omitempty"`

	// Layouts declare children to auto-create with each instance.
	Layouts []InstantiationLayout `json:"instantiation_layouts,omitempty"`

	Status      string `json:"status"`
	IsSingleton bool   `json:"is_singleton"`
	IsDeleted   bool   `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Code returns the template's composite key.
func (t *Template) Code() TemplateCode {
	return TemplateCode{Category: t.Category, Type: t.Type, Subtype: t.Subtype, Version: t.Version}
}
