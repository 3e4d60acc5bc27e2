package types

import "time"

// LineageEdge is a directed relationship between two instances
// (parent -> child). The edge set forms a DAG under cascading creation;
// applications linking pre-existing instances are responsible for keeping it
// acyclic beyond the self-reference check.
type LineageEdge struct {
	// UUID is the surrogate row ID (UUID v7).
	UUID string `json:"uuid"`

	// EUID is the checksummed public identifier (GL prefix).
	EUID string `json:"euid"`

	// Name defaults to "<parent EUID>-><child EUID>".
	Name string `json:"name"`

	// RelationshipType defaults to "contains" for cascade-created edges and
	// "generic" for manual links. Unique per live (parent, child, type).
	RelationshipType string `json:"relationship_type"`

	ParentUUID string `json:"parent_uuid"`
	ChildUUID  string `json:"child_uuid"`

	// ParentType and ChildType cache the endpoint discriminators for
	// traversal filtering without joins.
	ParentType string `json:"parent_type,omitempty"`
	ChildType  string `json:"child_type,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`

	Status    string `json:"status"`
	IsDeleted bool   `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenericRelationship is the relationship type for manually linked edges.
const GenericRelationship = "generic"
