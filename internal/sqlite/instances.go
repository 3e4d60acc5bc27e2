package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/tapestry/pkg/types"
)

const instanceColumnsSQL = `uuid, euid, name, discriminator, category, type, subtype, version,
 template_uuid, template_euid, properties, action_groups, status, is_singleton, is_deleted,
 created_at, updated_at`

// InsertInstance persists a new instance, stamping its identifier from the
// given prefix counter. For singleton templates a live instance with the
// same composite key fails with ErrSingletonConflict; the pre-check here is
// an advisory fast path and the partial unique index is the authority, so
// two racing callers cannot both slip through.
func (t *Tx) InsertInstance(inst *types.Instance, prefix string) error {
	if inst.Name == "" {
		return types.ErrInvalidName
	}
	if inst.IsSingleton {
		var one int
		err := t.tx.QueryRow(
			`SELECT 1 FROM instances WHERE category = ? AND type = ? AND subtype = ? AND version = ?
			 AND is_singleton = 1 AND is_deleted = 0`,
			inst.Category, inst.Type, inst.Subtype, inst.Version).Scan(&one)
		if err == nil {
			return fmt.Errorf("%w: %s/%s/%s/%s", types.ErrSingletonConflict,
				inst.Category, inst.Type, inst.Subtype, inst.Version)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking singleton: %w", err)
		}
	}

	inst.UUID = newUUID()
	id, err := t.NextEUID(prefix)
	if err != nil {
		return err
	}
	inst.EUID = id
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	args, err := instanceArgs(inst)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO instances (`+instanceColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return translateConstraint(err)
	}
	return t.recordInsert(types.TableInstances, inst.UUID, inst.EUID)
}

func instanceArgs(inst *types.Instance) ([]any, error) {
	properties, err := jsonColumn(inst.Properties)
	if err != nil {
		return nil, err
	}
	var groups any
	if len(inst.ActionGroups) > 0 {
		if groups, err = jsonColumn(inst.ActionGroups); err != nil {
			return nil, err
		}
	}
	return []any{
		inst.UUID, inst.EUID, inst.Name, inst.Discriminator,
		inst.Category, inst.Type, inst.Subtype, inst.Version,
		inst.TemplateUUID, inst.TemplateEUID, properties, groups,
		inst.Status, boolColumn(inst.IsSingleton), boolColumn(inst.IsDeleted),
		timeColumn(inst.CreatedAt), timeColumn(inst.UpdatedAt),
	}, nil
}

func instanceColumns(inst *types.Instance) map[string]string {
	groups := ""
	if len(inst.ActionGroups) > 0 {
		groups = jsonString(inst.ActionGroups)
	}
	return map[string]string{
		"name":          inst.Name,
		"discriminator": inst.Discriminator,
		"category":      inst.Category,
		"type":          inst.Type,
		"subtype":       inst.Subtype,
		"version":       inst.Version,
		"template_uuid": inst.TemplateUUID,
		"template_euid": inst.TemplateEUID,
		"properties":    jsonString(inst.Properties),
		"action_groups": groups,
		"status":        inst.Status,
		"is_singleton":  boolString(inst.IsSingleton),
		"is_deleted":    boolString(inst.IsDeleted),
	}
}

func scanInstance(row interface{ Scan(...any) error }) (*types.Instance, error) {
	var inst types.Instance
	var properties, groups []byte
	var isSingleton, isDeleted int
	var createdAt, updatedAt string

	err := row.Scan(&inst.UUID, &inst.EUID, &inst.Name, &inst.Discriminator,
		&inst.Category, &inst.Type, &inst.Subtype, &inst.Version,
		&inst.TemplateUUID, &inst.TemplateEUID, &properties, &groups,
		&inst.Status, &isSingleton, &isDeleted, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning instance: %w", err)
	}

	if err := unmarshalColumn(properties, &inst.Properties); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(groups, &inst.ActionGroups); err != nil {
		return nil, err
	}
	inst.IsSingleton = isSingleton == 1
	inst.IsDeleted = isDeleted == 1
	if inst.CreatedAt, err = parseTimeColumn(createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = parseTimeColumn(updatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetInstance fetches an instance by surrogate UUID, soft-deleted rows
// included.
func (t *Tx) GetInstance(uuid string) (*types.Instance, error) {
	if uuid == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+instanceColumnsSQL+` FROM instances WHERE uuid = ?`, uuid)
	return scanInstance(row)
}

// GetInstanceByEUID fetches an instance by identifier, soft-deleted rows
// included.
func (t *Tx) GetInstanceByEUID(id string) (*types.Instance, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+instanceColumnsSQL+` FROM instances WHERE euid = ?`, id)
	return scanInstance(row)
}

// LiveInstanceForTemplate returns the most recently created live instance of
// a template, or ErrNotFound.
func (t *Tx) LiveInstanceForTemplate(templateUUID string) (*types.Instance, error) {
	row := t.tx.QueryRow(`SELECT `+instanceColumnsSQL+` FROM instances
		 WHERE template_uuid = ? AND is_deleted = 0 ORDER BY created_at DESC, euid DESC LIMIT 1`,
		templateUUID)
	return scanInstance(row)
}

// InstanceFilter narrows ListInstances.
type InstanceFilter struct {
	Category       string
	Type           string
	Subtype        string
	Status         string
	TemplateUUID   string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ListInstances returns instances matching the filter, live only unless
// IncludeDeleted is set, ordered by identifier.
func (t *Tx) ListInstances(f InstanceFilter) ([]*types.Instance, error) {
	query := `SELECT ` + instanceColumnsSQL + ` FROM instances WHERE 1=1`
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
	if f.Subtype != "" {
		query += ` AND subtype = ?`
		args = append(args, f.Subtype)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.TemplateUUID != "" {
		query += ` AND template_uuid = ?`
		args = append(args, f.TemplateUUID)
	}
	query += ` ORDER BY euid`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	defer rows.Close()

	var instances []*types.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// UpdateInstance persists mutable-field changes, recording one audit entry
// per changed column. Writing identical values records nothing.
func (t *Tx) UpdateInstance(inst *types.Instance) error {
	current, err := t.GetInstance(inst.UUID)
	if err != nil {
		return err
	}

	diffs := diffColumns(instanceColumns(current), instanceColumns(inst))
	if len(diffs) == 0 {
		return nil
	}

	inst.UpdatedAt = time.Now().UTC()
	args, err := instanceArgs(inst)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`UPDATE instances SET euid = ?, name = ?, discriminator = ?, category = ?,
		 type = ?, subtype = ?, version = ?, template_uuid = ?, template_euid = ?,
		 properties = ?, action_groups = ?, status = ?, is_singleton = ?, is_deleted = ?,
		 created_at = ?, updated_at = ? WHERE uuid = ?`,
		append(args[1:], inst.UUID)...)
	if err != nil {
		return translateConstraint(err)
	}
	return t.recordUpdate(types.TableInstances, inst.UUID, inst.EUID, diffs)
}

// SoftDeleteInstance marks an instance deleted and records a DELETE entry
// with a full snapshot.
func (t *Tx) SoftDeleteInstance(uuid string) error {
	inst, err := t.GetInstance(uuid)
	if err != nil {
		return err
	}
	if inst.IsDeleted {
		return nil
	}

	now := time.Now().UTC()
	if _, err := t.tx.Exec(
		`UPDATE instances SET is_deleted = 1, updated_at = ? WHERE uuid = ?`,
		timeColumn(now), uuid); err != nil {
		return fmt.Errorf("soft-deleting instance: %w", err)
	}
	return t.recordDelete(types.TableInstances, inst.UUID, inst.EUID, inst)
}

// CountRows returns live and deleted row counts for one core table.
func (t *Tx) CountRows(table string) (live, deleted int, err error) {
	switch table {
	case types.TableTemplates, types.TableInstances, types.TableEdges:
		err = t.tx.QueryRow(`SELECT
			 COUNT(*) FILTER (WHERE is_deleted = 0),
			 COUNT(*) FILTER (WHERE is_deleted = 1) FROM ` + table).Scan(&live, &deleted)
	case types.TableAudit:
		err = t.tx.QueryRow(`SELECT COUNT(*), 0 FROM audit_log`).Scan(&live, &deleted)
	default:
		err = fmt.Errorf("%w: unknown table %q", types.ErrInvalidData, table)
	}
	return live, deleted, err
}
