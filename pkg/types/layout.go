package types

import (
	"encoding/json"
	"fmt"
)

// DefaultRelationship is the relationship type used by cascading child
// creation when a layout does not name one.
const DefaultRelationship = "contains"

// DefaultNamePattern names cascade-created children when neither the layout
// nor the child entry carries a pattern. {index} is 1-based.
const DefaultNamePattern = "{parent_name}_{child_subtype}_{index}"

// InstantiationLayout declares child objects to auto-create alongside an
// instance of the owning template.
type InstantiationLayout struct {
	// RelationshipType is the lineage edge type for created children.
	// Defaults to "contains".
	RelationshipType string `json:"relationship_type"`

	// NamePattern is the layout-level child name pattern. Child entries may
	// override it.
	NamePattern string `json:"name_pattern,omitempty"`

	// ChildTemplates lists the children to create.
	ChildTemplates []ChildTemplate `json:"child_templates"`
}

// ChildTemplate is one entry in a layout's child list. In configuration it
// is written either as a bare template-code string or as an object with
// template_code, count, and name_pattern.
type ChildTemplate struct {
	TemplateCode string `json:"template_code"`
	Count        int    `json:"count"`
	NamePattern  string `json:"name_pattern,omitempty"`
}

// childTemplateObject mirrors ChildTemplate for object-form decoding without
// recursing into the custom unmarshaler.
type childTemplateObject struct {
	TemplateCode string `json:"template_code"`
	Count        int    `json:"count"`
	NamePattern  string `json:"name_pattern"`
}

// UnmarshalJSON accepts both the string form ("category/type/subtype/1.0")
// and the object form ({"template_code": ..., "count": ...}).
// A missing count defaults to 1; count below 1 is an error.
func (c *ChildTemplate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if _, err := ParseCode(s); err != nil {
			return err
		}
		*c = ChildTemplate{TemplateCode: NormalizeCode(s), Count: 1}
		return nil
	}

	var obj childTemplateObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("child template entry: %w", err)
	}
	if _, err := ParseCode(obj.TemplateCode); err != nil {
		return err
	}
	if obj.Count == 0 {
		obj.Count = 1
	}
	if obj.Count < 1 {
		return fmt.Errorf("%w: child template count must be >= 1, got %d", ErrInvalidData, obj.Count)
	}
	*c = ChildTemplate{
		TemplateCode: NormalizeCode(obj.TemplateCode),
		Count:        obj.Count,
		NamePattern:  obj.NamePattern,
	}
	return nil
}

// MarshalJSON always emits the object form so stored layouts are uniform.
func (c ChildTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(childTemplateObject{
		TemplateCode: c.TemplateCode,
		Count:        c.Count,
		NamePattern:  c.NamePattern,
	})
}

// UnmarshalJSON fills in the default relationship type for layouts that do
// not declare one.
func (l *InstantiationLayout) UnmarshalJSON(data []byte) error {
	type alias InstantiationLayout
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.RelationshipType == "" {
		a.RelationshipType = DefaultRelationship
	}
	*l = InstantiationLayout(a)
	return nil
}
