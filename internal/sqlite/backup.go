// JSONL backup and restore for the core tables, using the temp-file, fsync,
// rename pattern so a crash mid-write never leaves a truncated dump.
package sqlite

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loomworks/tapestry/pkg/types"
)

const countersFile = "euid_counters.jsonl"

// counterRecord is one euid_counters row in a dump.
type counterRecord struct {
	Prefix string `json:"prefix"`
	Value  int64  `json:"value"`
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(stage string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", stage, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Backup dumps the core tables and the identifier counters to JSONL files
// under dir, one file per table, soft-deleted rows included. The dump is a
// complete logical copy: Restore against an empty database reproduces every
// row and counter.
func (s *Store) Backup(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating backup dir: %w", err)
	}
	return s.WithTx(func(tx *Tx) error {
		dumps := []struct {
			file    string
			records func() ([]json.RawMessage, error)
		}{
			{types.TableTemplates + ".jsonl", tx.dumpTemplates},
			{types.TableInstances + ".jsonl", tx.dumpInstances},
			{types.TableEdges + ".jsonl", tx.dumpEdges},
			{types.TableAudit + ".jsonl", tx.dumpAudit},
			{countersFile, tx.dumpCounters},
		}
		for _, d := range dumps {
			records, err := d.records()
			if err != nil {
				return err
			}
			if err := writeJSONL(filepath.Join(dir, d.file), records); err != nil {
				return err
			}
		}
		s.logger.Info("backup written", "dir", dir)
		return nil
	})
}

func marshalRecords[T any](items []T) ([]json.RawMessage, error) {
	records := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("serializing record: %w", err)
		}
		records = append(records, raw)
	}
	return records, nil
}

func (t *Tx) dumpTemplates() ([]json.RawMessage, error) {
	templates, err := t.ListTemplates(TemplateFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	return marshalRecords(templates)
}

func (t *Tx) dumpInstances() ([]json.RawMessage, error) {
	instances, err := t.ListInstances(InstanceFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	return marshalRecords(instances)
}

func (t *Tx) dumpEdges() ([]json.RawMessage, error) {
	rows, err := t.tx.Query(`SELECT ` + edgeColumnsSQL + ` FROM lineage_edges ORDER BY euid`)
	if err != nil {
		return nil, fmt.Errorf("dumping edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.LineageEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return marshalRecords(edges)
}

func (t *Tx) dumpAudit() ([]json.RawMessage, error) {
	rows, err := t.tx.Query(
		`SELECT uuid, euid, table_name, row_uuid, row_euid, column_name,
		 old_value, new_value, operation, actor, deleted_record, changed_at
		 FROM audit_log ORDER BY changed_at, euid`)
	if err != nil {
		return nil, fmt.Errorf("dumping audit log: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, err
	}
	return marshalRecords(entries)
}

func (t *Tx) dumpCounters() ([]json.RawMessage, error) {
	rows, err := t.tx.Query(`SELECT prefix, value FROM euid_counters ORDER BY prefix`)
	if err != nil {
		return nil, fmt.Errorf("dumping counters: %w", err)
	}
	defer rows.Close()

	var counters []counterRecord
	for rows.Next() {
		var c counterRecord
		if err := rows.Scan(&c.Prefix, &c.Value); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return marshalRecords(counters)
}

// Restore loads a JSONL dump produced by Backup into an empty schema,
// preserving every identifier and timestamp. The caller decides whether to
// Reset first; restoring over existing rows fails on the primary keys.
func (s *Store) Restore(dir string) error {
	err := s.WithTx(func(tx *Tx) error {
		if err := restoreFile(dir, types.TableTemplates, tx.restoreTemplate); err != nil {
			return err
		}
		if err := restoreFile(dir, types.TableInstances, tx.restoreInstance); err != nil {
			return err
		}
		if err := restoreFile(dir, types.TableEdges, tx.restoreEdge); err != nil {
			return err
		}
		if err := restoreFile(dir, types.TableAudit, tx.restoreAuditEntry); err != nil {
			return err
		}

		countersPath := filepath.Join(dir, countersFile)
		records, err := readJSONL(countersPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, raw := range records {
			var c counterRecord
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("parsing counter record: %w", err)
			}
			if err := tx.ProvisionPrefix(c.Prefix, c.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("restore complete", "dir", dir)
	return nil
}

// restoreFile decodes one table's dump and applies fn per record. A missing
// file means the dump has no rows for that table.
func restoreFile[T any](dir, table string, fn func(*T) error) error {
	records, err := readJSONL(filepath.Join(dir, table+".jsonl"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, raw := range records {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("parsing %s record: %w", table, err)
		}
		if err := fn(&item); err != nil {
			return err
		}
	}
	return nil
}

// The restore inserts bypass the recorder and keep stored identifiers and
// timestamps, since the dump already carries the full audit history.

func (t *Tx) restoreTemplate(tmpl *types.Template) error {
	args, err := templateArgs(tmpl)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO templates (`+templateColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("restoring template %s: %w", tmpl.EUID, translateConstraint(err))
	}
	t.templateMutated = true
	return nil
}

func (t *Tx) restoreInstance(inst *types.Instance) error {
	args, err := instanceArgs(inst)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO instances (`+instanceColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("restoring instance %s: %w", inst.EUID, translateConstraint(err))
	}
	return nil
}

func (t *Tx) restoreEdge(edge *types.LineageEdge) error {
	args, err := edgeArgs(edge)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO lineage_edges (`+edgeColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("restoring edge %s: %w", edge.EUID, translateConstraint(err))
	}
	return nil
}

func (t *Tx) restoreAuditEntry(entry *types.AuditEntry) error {
	var deleted any
	if len(entry.DeletedRecord) > 0 {
		deleted = string(entry.DeletedRecord)
	}
	_, err := t.tx.Exec(
		`INSERT INTO audit_log (uuid, euid, table_name, row_uuid, row_euid, column_name,
		 old_value, new_value, operation, actor, deleted_record, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UUID, entry.EUID, entry.TableName, entry.RowUUID, entry.RowEUID,
		nullable(entry.Column), nullable(entry.OldValue), nullable(entry.NewValue),
		entry.Operation, entry.Actor, deleted, entry.ChangedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("restoring audit entry %s: %w", entry.EUID, err)
	}
	return nil
}
