package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/tapestry/pkg/types"
)

const edgeColumnsSQL = `uuid, euid, name, relationship_type, parent_uuid, child_uuid,
 parent_type, child_type, properties, status, is_deleted, created_at, updated_at`

// InsertEdge persists a new lineage edge. Self-referential edges are
// rejected, and a live edge with the same (parent, child, relationship)
// triple fails with ErrDuplicateEdge. The pre-check is an advisory fast
// path; the partial unique index is the authority.
func (t *Tx) InsertEdge(edge *types.LineageEdge) error {
	if edge.ParentUUID == "" || edge.ChildUUID == "" {
		return types.ErrInvalidID
	}
	if edge.ParentUUID == edge.ChildUUID {
		return fmt.Errorf("%w: %s", types.ErrSelfReference, edge.ParentUUID)
	}
	if edge.RelationshipType == "" {
		edge.RelationshipType = types.GenericRelationship
	}

	var one int
	err := t.tx.QueryRow(
		`SELECT 1 FROM lineage_edges WHERE parent_uuid = ? AND child_uuid = ?
		 AND relationship_type = ? AND is_deleted = 0`,
		edge.ParentUUID, edge.ChildUUID, edge.RelationshipType).Scan(&one)
	if err == nil {
		return fmt.Errorf("%w: %s -> %s (%s)", types.ErrDuplicateEdge,
			edge.ParentUUID, edge.ChildUUID, edge.RelationshipType)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking edge: %w", err)
	}

	edge.UUID = newUUID()
	id, err := t.NextEUID(types.PrefixEdge)
	if err != nil {
		return err
	}
	edge.EUID = id
	now := time.Now().UTC()
	edge.CreatedAt = now
	edge.UpdatedAt = now

	args, err := edgeArgs(edge)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT INTO lineage_edges (`+edgeColumnsSQL+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return translateConstraint(err)
	}
	return t.recordInsert(types.TableEdges, edge.UUID, edge.EUID)
}

func edgeArgs(edge *types.LineageEdge) ([]any, error) {
	properties, err := jsonColumn(edge.Properties)
	if err != nil {
		return nil, err
	}
	return []any{
		edge.UUID, edge.EUID, edge.Name, edge.RelationshipType,
		edge.ParentUUID, edge.ChildUUID,
		nullable(edge.ParentType), nullable(edge.ChildType),
		properties, edge.Status, boolColumn(edge.IsDeleted),
		timeColumn(edge.CreatedAt), timeColumn(edge.UpdatedAt),
	}, nil
}

func edgeColumns(edge *types.LineageEdge) map[string]string {
	return map[string]string{
		"name":              edge.Name,
		"relationship_type": edge.RelationshipType,
		"parent_uuid":       edge.ParentUUID,
		"child_uuid":        edge.ChildUUID,
		"parent_type":       edge.ParentType,
		"child_type":        edge.ChildType,
		"properties":        jsonString(edge.Properties),
		"status":            edge.Status,
		"is_deleted":        boolString(edge.IsDeleted),
	}
}

func scanEdge(row interface{ Scan(...any) error }) (*types.LineageEdge, error) {
	var edge types.LineageEdge
	var parentType, childType sql.NullString
	var properties []byte
	var isDeleted int
	var createdAt, updatedAt string

	err := row.Scan(&edge.UUID, &edge.EUID, &edge.Name, &edge.RelationshipType,
		&edge.ParentUUID, &edge.ChildUUID, &parentType, &childType,
		&properties, &edge.Status, &isDeleted, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning edge: %w", err)
	}

	edge.ParentType = parentType.String
	edge.ChildType = childType.String
	if err := unmarshalColumn(properties, &edge.Properties); err != nil {
		return nil, err
	}
	edge.IsDeleted = isDeleted == 1
	if edge.CreatedAt, err = parseTimeColumn(createdAt); err != nil {
		return nil, err
	}
	if edge.UpdatedAt, err = parseTimeColumn(updatedAt); err != nil {
		return nil, err
	}
	return &edge, nil
}

// GetEdge fetches an edge by surrogate UUID, soft-deleted rows included.
func (t *Tx) GetEdge(uuid string) (*types.LineageEdge, error) {
	if uuid == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+edgeColumnsSQL+` FROM lineage_edges WHERE uuid = ?`, uuid)
	return scanEdge(row)
}

// GetEdgeByEUID fetches an edge by identifier, soft-deleted rows included.
func (t *Tx) GetEdgeByEUID(id string) (*types.LineageEdge, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	row := t.tx.QueryRow(`SELECT `+edgeColumnsSQL+` FROM lineage_edges WHERE euid = ?`, id)
	return scanEdge(row)
}

// EdgesFrom returns the live edges whose parent is the given instance,
// optionally filtered by relationship type.
func (t *Tx) EdgesFrom(parentUUID, relationship string) ([]*types.LineageEdge, error) {
	return t.queryEdges(`parent_uuid = ?`, parentUUID, relationship)
}

// EdgesTo returns the live edges whose child is the given instance,
// optionally filtered by relationship type.
func (t *Tx) EdgesTo(childUUID, relationship string) ([]*types.LineageEdge, error) {
	return t.queryEdges(`child_uuid = ?`, childUUID, relationship)
}

func (t *Tx) queryEdges(where, uuid, relationship string) ([]*types.LineageEdge, error) {
	query := `SELECT ` + edgeColumnsSQL + ` FROM lineage_edges WHERE ` + where + ` AND is_deleted = 0`
	args := []any{uuid}
	if relationship != "" {
		query += ` AND relationship_type = ?`
		args = append(args, relationship)
	}
	query += ` ORDER BY euid`

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
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
	return edges, rows.Err()
}

// ChildrenOf returns the live instances reachable from parent over live
// edges, optionally filtered by relationship type.
func (t *Tx) ChildrenOf(parentUUID, relationship string) ([]*types.Instance, error) {
	return t.queryLinked(
		`JOIN lineage_edges e ON e.child_uuid = i.uuid WHERE e.parent_uuid = ?`,
		parentUUID, relationship)
}

// ParentsOf returns the live instances from which child is reachable over
// live edges, optionally filtered by relationship type.
func (t *Tx) ParentsOf(childUUID, relationship string) ([]*types.Instance, error) {
	return t.queryLinked(
		`JOIN lineage_edges e ON e.parent_uuid = i.uuid WHERE e.child_uuid = ?`,
		childUUID, relationship)
}

func (t *Tx) queryLinked(join, uuid, relationship string) ([]*types.Instance, error) {
	query := `SELECT ` + prefixColumns("i", instanceColumnsSQL) + ` FROM instances i ` + join +
		` AND e.is_deleted = 0 AND i.is_deleted = 0`
	args := []any{uuid}
	if relationship != "" {
		query += ` AND e.relationship_type = ?`
		args = append(args, relationship)
	}
	query += ` ORDER BY i.euid`

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("traversing lineage: %w", err)
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

// UpdateEdge persists mutable-field changes, recording one audit entry per
// changed column.
func (t *Tx) UpdateEdge(edge *types.LineageEdge) error {
	current, err := t.GetEdge(edge.UUID)
	if err != nil {
		return err
	}

	diffs := diffColumns(edgeColumns(current), edgeColumns(edge))
	if len(diffs) == 0 {
		return nil
	}

	edge.UpdatedAt = time.Now().UTC()
	args, err := edgeArgs(edge)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`UPDATE lineage_edges SET euid = ?, name = ?, relationship_type = ?,
		 parent_uuid = ?, child_uuid = ?, parent_type = ?, child_type = ?, properties = ?,
		 status = ?, is_deleted = ?, created_at = ?, updated_at = ? WHERE uuid = ?`,
		append(args[1:], edge.UUID)...)
	if err != nil {
		return translateConstraint(err)
	}
	return t.recordUpdate(types.TableEdges, edge.UUID, edge.EUID, diffs)
}

// SoftDeleteEdge marks an edge deleted and records a DELETE entry with a
// full snapshot. Deleting an edge never touches its endpoints.
func (t *Tx) SoftDeleteEdge(uuid string) error {
	edge, err := t.GetEdge(uuid)
	if err != nil {
		return err
	}
	if edge.IsDeleted {
		return nil
	}

	now := time.Now().UTC()
	if _, err := t.tx.Exec(
		`UPDATE lineage_edges SET is_deleted = 1, updated_at = ? WHERE uuid = ?`,
		timeColumn(now), uuid); err != nil {
		return fmt.Errorf("soft-deleting edge: %w", err)
	}
	return t.recordDelete(types.TableEdges, edge.UUID, edge.EUID, edge)
}
