package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/loomworks/tapestry/pkg/types"
)

// The audit recorder is invoked by every mutating operation in this package.
// Entries are append-only: nothing in the engine updates or deletes
// audit_log rows.

// columnDiff is one changed column in an update.
type columnDiff struct {
	column   string
	oldValue string
	newValue string
}

// diffColumns compares two serialized column maps and returns the changed
// columns in stable order. Identical values produce no diff.
func diffColumns(oldCols, newCols map[string]string) []columnDiff {
	var diffs []columnDiff
	for column, newValue := range newCols {
		if oldValue, ok := oldCols[column]; !ok || oldValue != newValue {
			diffs = append(diffs, columnDiff{column: column, oldValue: oldCols[column], newValue: newValue})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].column < diffs[j].column })
	return diffs
}

// recordInsert writes one INSERT entry for a new row.
func (t *Tx) recordInsert(table, rowUUID, rowEUID string) error {
	return t.insertAuditRow(&types.AuditEntry{
		TableName: table,
		RowUUID:   rowUUID,
		RowEUID:   rowEUID,
		Operation: types.OpInsert,
	})
}

// recordUpdate writes one UPDATE entry per changed column.
func (t *Tx) recordUpdate(table, rowUUID, rowEUID string, diffs []columnDiff) error {
	for _, d := range diffs {
		entry := &types.AuditEntry{
			TableName: table,
			RowUUID:   rowUUID,
			RowEUID:   rowEUID,
			Column:    d.column,
			OldValue:  d.oldValue,
			NewValue:  d.newValue,
			Operation: types.OpUpdate,
		}
		if err := t.insertAuditRow(entry); err != nil {
			return err
		}
	}
	return nil
}

// recordDelete writes one DELETE entry carrying a full serialized snapshot
// of the pre-delete row.
func (t *Tx) recordDelete(table, rowUUID, rowEUID string, snapshot any) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("serializing delete snapshot: %w", err)
	}
	return t.insertAuditRow(&types.AuditEntry{
		TableName:     table,
		RowUUID:       rowUUID,
		RowEUID:       rowEUID,
		Operation:     types.OpDelete,
		DeletedRecord: raw,
	})
}

func (t *Tx) insertAuditRow(entry *types.AuditEntry) error {
	entry.UUID = newUUID()
	id, err := t.NextEUID(types.PrefixAudit)
	if err != nil {
		return err
	}
	entry.EUID = id
	entry.Actor = t.Actor()
	entry.ChangedAt = time.Now().UTC()

	var deleted any
	if len(entry.DeletedRecord) > 0 {
		deleted = string(entry.DeletedRecord)
	}
	_, err = t.tx.Exec(
		`INSERT INTO audit_log (uuid, euid, table_name, row_uuid, row_euid, column_name,
		 old_value, new_value, operation, actor, deleted_record, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UUID, entry.EUID, entry.TableName, entry.RowUUID, entry.RowEUID,
		nullable(entry.Column), nullable(entry.OldValue), nullable(entry.NewValue),
		entry.Operation, entry.Actor, deleted, entry.ChangedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// nullable maps the empty string to NULL so absent columns stay NULL in the
// audit table.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// AuditFor returns the audit entries for one row identifier, oldest first.
func (t *Tx) AuditFor(rowEUID string) ([]*types.AuditEntry, error) {
	rows, err := t.tx.Query(
		`SELECT uuid, euid, table_name, row_uuid, row_euid, column_name,
		 old_value, new_value, operation, actor, deleted_record, changed_at
		 FROM audit_log WHERE row_euid = ? ORDER BY changed_at, euid`, rowEUID)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// AuditForTable returns all audit entries for one table, oldest first.
func (t *Tx) AuditForTable(table string) ([]*types.AuditEntry, error) {
	rows, err := t.tx.Query(
		`SELECT uuid, euid, table_name, row_uuid, row_euid, column_name,
		 old_value, new_value, operation, actor, deleted_record, changed_at
		 FROM audit_log WHERE table_name = ? ORDER BY changed_at, euid`, table)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var column, oldValue, newValue, actor, deleted sql.NullString
		var changedAt string
		if err := rows.Scan(&e.UUID, &e.EUID, &e.TableName, &e.RowUUID, &e.RowEUID,
			&column, &oldValue, &newValue, &e.Operation, &actor, &deleted, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Column = column.String
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		e.Actor = actor.String
		if deleted.Valid {
			e.DeletedRecord = json.RawMessage(deleted.String)
		}
		ts, err := time.Parse(time.RFC3339Nano, changedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		e.ChangedAt = ts
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
