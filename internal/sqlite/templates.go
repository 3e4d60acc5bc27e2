package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/tapestry/pkg/types"
)

const templateColumnsSQL = `uuid, euid, name, discriminator, category, type, subtype, version,
 instance_prefix, instance_discriminator, payload_schema, default_properties, default_status,
 action_imports, instantiation_layouts, status, is_singleton, is_deleted, created_at, updated_at`

// InsertTemplate persists a new template. The surrogate UUID, the GT
// identifier, and timestamps are assigned here; the recorder logs the
// insert. A live template with the same composite key fails with
// ErrTemplateIntegrity.
func (t *Tx) InsertTemplate(tmpl *types.Template) error {
	if tmpl.Name == "" {
		return types.ErrInvalidName
	}
	if tmpl.Discriminator == "" {
		tmpl.Discriminator = "generic_template"
	}
	if tmpl.Status == "" {
		tmpl.Status = types.TemplateStatusActive
	}
	tmpl.UUID = newUUID()
	id, err := t.NextEUID(types.PrefixTemplate)
	if err != nil {
		return err
	}
	tmpl.EUID = id
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	args, err := templateArgs(tmpl)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO templates (`+templateColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return translateConstraint(err)
	}

	t.templateMutated = true
	return t.recordInsert(types.TableTemplates, tmpl.UUID, tmpl.EUID)
}

// templateArgs returns the insert/update argument list in column order.
func templateArgs(tmpl *types.Template) ([]any, error) {
	schema, err := jsonColumn(tmpl.PayloadSchema)
	if err != nil {
		return nil, err
	}
	defaults, err := jsonColumn(tmpl.DefaultProperties)
	if err != nil {
		return nil, err
	}
	imports, err := jsonColumn(tmpl.ActionImports)
	if err != nil {
		return nil, err
	}
	var layouts any
	if len(tmpl.Layouts) > 0 {
		if layouts, err = jsonColumn(tmpl.Layouts); err != nil {
			return nil, err
		}
	}
	return []any{
		tmpl.UUID, tmpl.EUID, tmpl.Name, tmpl.Discriminator,
		tmpl.Category, tmpl.Type, tmpl.Subtype, tmpl.Version,
		tmpl.InstancePrefix, nullable(tmpl.InstanceDiscriminator),
		schema, defaults, nullable(tmpl.DefaultStatus), imports, layouts,
		tmpl.Status, boolColumn(tmpl.IsSingleton), boolColumn(tmpl.IsDeleted),
		timeColumn(tmpl.CreatedAt), timeColumn(tmpl.UpdatedAt),
	}, nil
}

// templateColumns serializes the mutable columns for audit diffing.
func templateColumns(tmpl *types.Template) map[string]string {
	cols := map[string]string{
		"name":                   tmpl.Name,
		"discriminator":          tmpl.Discriminator,
		"category":               tmpl.Category,
		"type":                   tmpl.Type,
		"subtype":                tmpl.Subtype,
		"version":                tmpl.Version,
		"instance_prefix":        tmpl.InstancePrefix,
		"instance_discriminator": tmpl.InstanceDiscriminator,
		"payload_schema":         jsonString(tmpl.PayloadSchema),
		"default_properties":     jsonString(tmpl.DefaultProperties),
		"default_status":         tmpl.DefaultStatus,
		"action_imports":         jsonString(tmpl.ActionImports),
		"status":                 tmpl.Status,
		"is_singleton":           boolString(tmpl.IsSingleton),
		"is_deleted":             boolString(tmpl.IsDeleted),
	}
	if len(tmpl.Layouts) > 0 {
		cols["instantiation_layouts"] = jsonString(tmpl.Layouts)
	} else {
		cols["instantiation_layouts"] = ""
	}
	return cols
}

func scanTemplate(row interface{ Scan(...any) error }) (*types.Template, error) {
	var tmpl types.Template
	var instanceDiscriminator, defaultStatus sql.NullString
	var schema, defaults, imports, layouts []byte
	var isSingleton, isDeleted int
	var createdAt, updatedAt string

	err := row.Scan(&tmpl.UUID, &tmpl.EUID, &tmpl.Name, &tmpl.Discriminator,
		&tmpl.Category, &tmpl.Type, &tmpl.Subtype, &tmpl.Version,
		&tmpl.InstancePrefix, &instanceDiscriminator, &schema, &defaults, &defaultStatus,
		&imports, &layouts, &tmpl.Status, &isSingleton, &isDeleted, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning template: %w", err)
	}

	tmpl.InstanceDiscriminator = instanceDiscriminator.String
	tmpl.DefaultStatus = defaultStatus.String
	if err := unmarshalColumn(schema, &tmpl.PayloadSchema); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(defaults, &tmpl.DefaultProperties); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(imports, &tmpl.ActionImports); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(layouts, &tmpl.Layouts); err != nil {
		return nil, err
	}
	tmpl.IsSingleton = isSingleton == 1
	tmpl.IsDeleted = isDeleted == 1
	if tmpl.CreatedAt, err = parseTimeColumn(createdAt); err != nil {
		return nil, err
	}
	if tmpl.UpdatedAt, err = parseTimeColumn(updatedAt); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetTemplate fetches a template by surrogate UUID, soft-deleted rows
// included. Returns ErrNotFound when absent.
func (t *Tx) GetTemplate(uuid string) (*types.Template, error) {
	if uuid == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+templateColumnsSQL+` FROM templates WHERE uuid = ?`, uuid)
	return scanTemplate(row)
}

// GetTemplateByEUID fetches a template by identifier, soft-deleted rows
// included so history stays reachable by identifier.
func (t *Tx) GetTemplateByEUID(id string) (*types.Template, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+templateColumnsSQL+` FROM templates WHERE euid = ?`, id)
	return scanTemplate(row)
}

// GetTemplateByCode fetches the live template for a composite key. Absence
// is ErrTemplateNotFound; more than one live row (prevented by the partial
// unique index) is ErrTemplateIntegrity.
func (t *Tx) GetTemplateByCode(code types.TemplateCode) (*types.Template, error) {
	rows, err := t.tx.Query(`SELECT `+templateColumnsSQL+` FROM templates
		 WHERE category = ? AND type = ? AND subtype = ? AND version = ? AND is_deleted = 0`,
		code.Category, code.Type, code.Subtype, code.Version)
	if err != nil {
		return nil, fmt.Errorf("querying template %s: %w", code, err)
	}
	defer rows.Close()

	var found []*types.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, code)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d live templates for %s", types.ErrTemplateIntegrity, len(found), code)
	}
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	Category       string
	Type           string
	Status         string
	IncludeDeleted bool
}

// ListTemplates returns templates matching the filter, live only unless
// IncludeDeleted is set, ordered by identifier.
func (t *Tx) ListTemplates(f TemplateFilter) ([]*types.Template, error) {
	query := `SELECT ` + templateColumnsSQL + ` FROM templates WHERE 1=1`
	var args []any
	if !f.IncludeDeleted {
		query += ` AND is_deleted = 0`
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY euid`

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// UpdateTemplate persists mutable-field changes and records one audit entry
// per changed column. Writing identical values records nothing.
func (t *Tx) UpdateTemplate(tmpl *types.Template) error {
	current, err := t.GetTemplate(tmpl.UUID)
	if err != nil {
		return err
	}

	diffs := diffColumns(templateColumns(current), templateColumns(tmpl))
	if len(diffs) == 0 {
		return nil
	}

	tmpl.UpdatedAt = time.Now().UTC()
	args, err := templateArgs(tmpl)
	if err != nil {
		return err
	}
	// Shift the column-ordered args into SET form: skip uuid, append the
	// WHERE key.
	_, err = t.tx.Exec(`UPDATE templates SET euid = ?, name = ?, discriminator = ?, category = ?,
		 type = ?, subtype = ?, version = ?, instance_prefix = ?, instance_discriminator = ?,
		 payload_schema = ?, default_properties = ?, default_status = ?, action_imports = ?,
		 instantiation_layouts = ?, status = ?, is_singleton = ?, is_deleted = ?,
		 created_at = ?, updated_at = ? WHERE uuid = ?`,
		append(args[1:], tmpl.UUID)...)
	if err != nil {
		return translateConstraint(err)
	}

	t.templateMutated = true
	return t.recordUpdate(types.TableTemplates, tmpl.UUID, tmpl.EUID, diffs)
}

// SoftDeleteTemplate marks a template deleted and records a DELETE entry
// with a full snapshot. The row is never physically removed.
func (t *Tx) SoftDeleteTemplate(uuid string) error {
	tmpl, err := t.GetTemplate(uuid)
	if err != nil {
		return err
	}
	if tmpl.IsDeleted {
		return nil
	}

	now := time.Now().UTC()
	if _, err := t.tx.Exec(
		`UPDATE templates SET is_deleted = 1, updated_at = ? WHERE uuid = ?`,
		timeColumn(now), uuid); err != nil {
		return fmt.Errorf("soft-deleting template: %w", err)
	}

	t.templateMutated = true
	return t.recordDelete(types.TableTemplates, tmpl.UUID, tmpl.EUID, tmpl)
}
