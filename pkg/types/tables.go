package types

// Core table names.
const (
	TableTemplates = "templates"
	TableInstances = "instances"
	TableEdges     = "lineage_edges"
	TableAudit     = "audit_log"
)

// CoreTableNames lists the four core tables in backup/restore order.
var CoreTableNames = []string{
	TableTemplates,
	TableInstances,
	TableEdges,
	TableAudit,
}

// Core EUID prefixes provisioned at schema initialization. Template-declared
// instance prefixes are provisioned at seed time.
const (
	PrefixTemplate = "GT"
	PrefixInstance = "GX"
	PrefixEdge     = "GL"
	PrefixAudit    = "AL"
	PrefixAction   = "XX"
)

// CorePrefixes lists the prefixes every store provisions on Init.
var CorePrefixes = []string{
	PrefixTemplate,
	PrefixInstance,
	PrefixEdge,
	PrefixAudit,
	PrefixAction,
}
