// Package sqlite implements the persistence boundary for the Tapestry
// engine: the relational store, the per-prefix identifier registry, and the
// audit recorder that wraps every mutation.
// See docs/ARCHITECTURE.md § Persistence Boundary.
package sqlite

// Schema DDL for the four core tables plus the identifier counter registry.
// Soft delete is a flag, never a physical DELETE; uniqueness invariants that
// only apply to live rows use partial unique indexes.
const (
	createTemplates = `CREATE TABLE IF NOT EXISTS templates (
    uuid TEXT PRIMARY KEY,
    euid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    discriminator TEXT NOT NULL,
    category TEXT NOT NULL,
    type TEXT NOT NULL,
    subtype TEXT NOT NULL,
    version TEXT NOT NULL,
    instance_prefix TEXT NOT NULL,
    instance_discriminator TEXT,
    payload_schema TEXT,
    default_properties TEXT,
    default_status TEXT,
    action_imports TEXT,
    instantiation_layouts TEXT,
    status TEXT NOT NULL,
    is_singleton INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createInstances = `CREATE TABLE IF NOT EXISTS instances (
    uuid TEXT PRIMARY KEY,
    euid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    discriminator TEXT NOT NULL,
    category TEXT NOT NULL,
    type TEXT NOT NULL,
    subtype TEXT NOT NULL,
    version TEXT NOT NULL,
    template_uuid TEXT NOT NULL REFERENCES templates(uuid),
    template_euid TEXT NOT NULL,
    properties TEXT,
    action_groups TEXT,
    status TEXT NOT NULL,
    is_singleton INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createEdges = `CREATE TABLE IF NOT EXISTS lineage_edges (
    uuid TEXT PRIMARY KEY,
    euid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    relationship_type TEXT NOT NULL DEFAULT 'contains',
    parent_uuid TEXT NOT NULL REFERENCES instances(uuid),
    child_uuid TEXT NOT NULL REFERENCES instances(uuid),
    parent_type TEXT,
    child_type TEXT,
    properties TEXT,
    status TEXT NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createAudit = `CREATE TABLE IF NOT EXISTS audit_log (
    uuid TEXT PRIMARY KEY,
    euid TEXT NOT NULL,
    table_name TEXT NOT NULL,
    row_uuid TEXT NOT NULL,
    row_euid TEXT NOT NULL,
    column_name TEXT,
    old_value TEXT,
    new_value TEXT,
    operation TEXT NOT NULL,
    actor TEXT,
    deleted_record TEXT,
    changed_at TEXT NOT NULL
);`

	createCounters = `CREATE TABLE IF NOT EXISTS euid_counters (
    prefix TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);`
)

// Index DDL. The two partial unique indexes are the storage-level authority
// for the singleton and edge-triple invariants; engine-level checks are
// advisory fast paths.
const (
	idxTemplatesCodeLive = `CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_code_live
    ON templates(category, type, subtype, version) WHERE is_deleted = 0;`
	idxInstancesSingletonLive = `CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_singleton_live
    ON instances(category, type, subtype, version) WHERE is_singleton = 1 AND is_deleted = 0;`
	idxEdgesTripleLive = `CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_triple_live
    ON lineage_edges(parent_uuid, child_uuid, relationship_type) WHERE is_deleted = 0;`
	idxInstancesTemplate = `CREATE INDEX IF NOT EXISTS idx_instances_template ON instances(template_uuid);`
	idxInstancesStatus   = `CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status);`
	idxEdgesParent       = `CREATE INDEX IF NOT EXISTS idx_edges_parent ON lineage_edges(parent_uuid);`
	idxEdgesChild        = `CREATE INDEX IF NOT EXISTS idx_edges_child ON lineage_edges(child_uuid);`
	idxAuditRow          = `CREATE INDEX IF NOT EXISTS idx_audit_row ON audit_log(row_euid);`
	idxAuditTable        = `CREATE INDEX IF NOT EXISTS idx_audit_table ON audit_log(table_name);`
)

// schemaDDL lists CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createTemplates,
	createInstances,
	createEdges,
	createAudit,
	createCounters,
}

// indexDDL lists CREATE INDEX statements.
var indexDDL = []string{
	idxTemplatesCodeLive,
	idxInstancesSingletonLive,
	idxEdgesTripleLive,
	idxInstancesTemplate,
	idxInstancesStatus,
	idxEdgesParent,
	idxEdgesChild,
	idxAuditRow,
	idxAuditTable,
}

// dropDDL removes all tables for Reset, children first.
var dropDDL = []string{
	`DROP TABLE IF EXISTS audit_log;`,
	`DROP TABLE IF EXISTS lineage_edges;`,
	`DROP TABLE IF EXISTS instances;`,
	`DROP TABLE IF EXISTS templates;`,
	`DROP TABLE IF EXISTS euid_counters;`,
}
