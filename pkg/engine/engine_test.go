package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/euid"
	"github.com/loomworks/tapestry/pkg/types"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := types.Config{DataDir: t.TempDir(), Actor: "tester"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	return New(store, logger)
}

func seedTemplates(t *testing.T, e *Engine, templates ...*types.Template) {
	t.Helper()
	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		for _, tmpl := range templates {
			if err := tx.ProvisionPrefix(tmpl.InstancePrefix, 0); err != nil {
				return err
			}
			if err := tx.InsertTemplate(tmpl); err != nil {
				return err
			}
		}
		return nil
	}))
}

func rackTemplate() *types.Template {
	return &types.Template{
		Name:           "rack",
		Category:       "lab",
		Type:           "container",
		Subtype:        "rack",
		Version:        "1.0",
		InstancePrefix: "RK",
		Layouts: []types.InstantiationLayout{{
			RelationshipType: types.DefaultRelationship,
			ChildTemplates: []types.ChildTemplate{
				{TemplateCode: "lab/container/plate/1.0", Count: 1},
				{TemplateCode: "lab/container/tube/1.0", Count: 3},
			},
		}},
	}
}

func plateTemplate() *types.Template {
	return &types.Template{
		Name:           "plate",
		Category:       "lab",
		Type:           "container",
		Subtype:        "plate",
		Version:        "1.0",
		InstancePrefix: "PX",
		DefaultProperties: map[string]any{
			"wells": float64(96),
		},
	}
}

func tubeTemplate() *types.Template {
	return &types.Template{
		Name:           "tube",
		Category:       "lab",
		Type:           "container",
		Subtype:        "tube",
		Version:        "1.0",
		InstancePrefix: "TB",
	}
}

func TestCreateInstanceCascades(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, rackTemplate(), plateTemplate(), tubeTemplate())

	rack, err := e.CreateInstance(CreateRequest{
		TemplateCode: "lab/container/rack/1.0",
		Name:         "RACK-001",
	})
	require.NoError(t, err)
	assert.True(t, euid.Validate(rack.EUID))
	assert.Equal(t, "lab", rack.Category)
	assert.Equal(t, "rack", rack.Subtype)

	children, err := e.ChildrenOf(rack.EUID, types.DefaultRelationship)
	require.NoError(t, err)
	require.Len(t, children, 4)

	bySubtype := map[string][]string{}
	for _, c := range children {
		bySubtype[c.Subtype] = append(bySubtype[c.Subtype], c.Name)
	}
	assert.Equal(t, []string{"RACK-001_plate_1"}, bySubtype["plate"])
	assert.ElementsMatch(t,
		[]string{"RACK-001_tube_1", "RACK-001_tube_2", "RACK-001_tube_3"},
		bySubtype["tube"])
}

func TestCreateInstanceSkipChildren(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, rackTemplate(), plateTemplate(), tubeTemplate())

	rack, err := e.CreateInstance(CreateRequest{
		TemplateCode: "lab/container/rack/1.0",
		Name:         "RACK-002",
		SkipChildren: true,
	})
	require.NoError(t, err)

	children, err := e.ChildrenOf(rack.EUID, "")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestCascadeRollsBackOnSchemaFailure(t *testing.T) {
	e := setupEngine(t)
	tube := tubeTemplate()
	tube.PayloadSchema = map[string]any{
		"type":     "object",
		"required": []any{"volume_ul"},
		"properties": map[string]any{
			"volume_ul": map[string]any{"type": "number"},
		},
	}
	seedTemplates(t, e, rackTemplate(), plateTemplate(), tube)

	_, err := e.CreateInstance(CreateRequest{
		TemplateCode: "lab/container/rack/1.0",
		Name:         "RACK-003",
	})
	require.ErrorIs(t, err, types.ErrSchemaValidation)

	// Nothing from the failed cascade is visible: no instances, no edges.
	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		instances, err := tx.ListInstances(sqlite.InstanceFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Empty(t, instances)

		live, _, err := tx.CountRows(types.TableEdges)
		require.NoError(t, err)
		assert.Zero(t, live)
		return nil
	}))
}

func TestPropertyMergeAndValidation(t *testing.T) {
	e := setupEngine(t)
	plate := plateTemplate()
	plate.DefaultProperties = map[string]any{
		"wells": float64(96),
		"labels": map[string]any{
			"vendor": "acme",
			"lot":    "A1",
		},
	}
	plate.PayloadSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"wells": map[string]any{"type": "number"},
		},
	}
	seedTemplates(t, e, plate)

	inst, err := e.CreateInstance(CreateRequest{
		TemplateCode: "lab/container/plate/1.0",
		Name:         "PLATE-001",
		Properties: map[string]any{
			"labels": map[string]any{"lot": "B7"},
			"note":   "rush order",
		},
	})
	require.NoError(t, err)

	// Caller keys win; untouched nested defaults survive.
	labels := inst.Properties["labels"].(map[string]any)
	assert.Equal(t, "B7", labels["lot"])
	assert.Equal(t, "acme", labels["vendor"])
	assert.Equal(t, float64(96), inst.Properties["wells"])
	assert.Equal(t, "rush order", inst.Properties["note"])

	// A schema violation names the offending field.
	_, err = e.CreateInstance(CreateRequest{
		TemplateCode: "lab/container/plate/1.0",
		Name:         "PLATE-002",
		Properties:   map[string]any{"wells": "ninety-six"},
	})
	require.ErrorIs(t, err, types.ErrSchemaValidation)
	assert.Contains(t, err.Error(), "wells")
}

func TestLayoutCycleDetected(t *testing.T) {
	e := setupEngine(t)
	a := &types.Template{
		Name: "a", Category: "lab", Type: "loop", Subtype: "a", Version: "1.0",
		InstancePrefix: "QA",
		Layouts: []types.InstantiationLayout{{
			RelationshipType: types.DefaultRelationship,
			ChildTemplates:   []types.ChildTemplate{{TemplateCode: "lab/loop/b/1.0", Count: 1}},
		}},
	}
	b := &types.Template{
		Name: "b", Category: "lab", Type: "loop", Subtype: "b", Version: "1.0",
		InstancePrefix: "QB",
		Layouts: []types.InstantiationLayout{{
			RelationshipType: types.DefaultRelationship,
			ChildTemplates:   []types.ChildTemplate{{TemplateCode: "lab/loop/a/1.0", Count: 1}},
		}},
	}
	seedTemplates(t, e, a, b)

	_, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/loop/a/1.0", Name: "LOOP"})
	require.ErrorIs(t, err, types.ErrLayoutCycle)
}

func TestLinkInstances(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, plateTemplate())

	first, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)
	second, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P2"})
	require.NoError(t, err)

	edge, err := e.LinkInstances(first.EUID, second.EUID, "")
	require.NoError(t, err)
	assert.Equal(t, types.GenericRelationship, edge.RelationshipType)
	assert.Equal(t, first.EUID+"->"+second.EUID, edge.Name)
	assert.True(t, euid.Validate(edge.EUID))

	_, err = e.LinkInstances(first.EUID, second.EUID, "")
	assert.ErrorIs(t, err, types.ErrDuplicateEdge)

	_, err = e.LinkInstances(first.EUID, first.EUID, "")
	assert.ErrorIs(t, err, types.ErrSelfReference)
}

func TestGetOrCreateSingleton(t *testing.T) {
	e := setupEngine(t)
	queue := &types.Template{
		Name: "work queue", Category: "ops", Type: "queue", Subtype: "default", Version: "1.0",
		InstancePrefix: "WQ", IsSingleton: true,
	}
	seedTemplates(t, e, queue, plateTemplate())

	first, created, err := e.GetOrCreateSingleton(CreateRequest{
		TemplateCode: "ops/queue/default/1.0", Name: "queue",
	})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := e.GetOrCreateSingleton(CreateRequest{
		TemplateCode: "ops/queue/default/1.0", Name: "queue",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.EUID, again.EUID)

	// A non-singleton template is rejected.
	_, _, err = e.GetOrCreateSingleton(CreateRequest{
		TemplateCode: "lab/container/plate/1.0", Name: "plate",
	})
	assert.ErrorIs(t, err, types.ErrInvalidData)

	// A soft-deleted singleton is never resurrected; a fresh instance with a
	// new identifier is created.
	require.NoError(t, e.SoftDeleteInstance(first.EUID))
	replacement, created, err := e.GetOrCreateSingleton(CreateRequest{
		TemplateCode: "ops/queue/default/1.0", Name: "queue",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.EUID, replacement.EUID)
}

func TestResolverNeverServesDeletedTemplates(t *testing.T) {
	e := setupEngine(t)
	tmpl := plateTemplate()
	seedTemplates(t, e, tmpl)

	_, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)

	require.NoError(t, e.SoftDeleteTemplate(tmpl.EUID))

	_, err = e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P2"})
	assert.ErrorIs(t, err, types.ErrTemplateNotFound)

	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		_, err := e.resolver.ResolveEUID(tx, tmpl.EUID)
		assert.ErrorIs(t, err, types.ErrTemplateNotFound)
		return nil
	}))
}

func TestFilterMembersAndExport(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, rackTemplate(), plateTemplate(), tubeTemplate())

	rack, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/rack/1.0", Name: "R1"})
	require.NoError(t, err)

	tubes, err := e.FilterMembers(rack.EUID, DirectionChildren, MemberCriteria{Subtype: "tube"})
	require.NoError(t, err)
	assert.Len(t, tubes, 3)

	plates, err := e.FilterMembers(rack.EUID, DirectionChildren, MemberCriteria{
		Subtype:    "plate",
		Properties: map[string]any{"wells": float64(96)},
	})
	require.NoError(t, err)
	assert.Len(t, plates, 1)

	graph, err := e.Export(rack.EUID, 2)
	require.NoError(t, err)
	assert.Equal(t, rack.EUID, graph.Root)
	assert.Len(t, graph.Nodes, 5)
	require.Len(t, graph.Edges, 4)
	for _, edge := range graph.Edges {
		// Viewer convention: edges point child -> parent.
		assert.Equal(t, rack.EUID, edge.To)
		assert.Equal(t, types.DefaultRelationship, edge.Relationship)
	}
	for _, node := range graph.Nodes {
		assert.NotEmpty(t, node.Color)
	}

	// Parents traversal from a child finds the rack.
	parents, err := e.ParentsOf(graph.Edges[0].From, "")
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, rack.EUID, parents[0].EUID)
}

func actionTemplates() []*types.Template {
	sanitize := &types.Template{
		Name: "sanitize", Category: "action", Type: "maintenance", Subtype: "sanitize", Version: "1.0",
		InstancePrefix: "XX",
		DefaultProperties: map[string]any{
			"method": "uv",
		},
	}
	plate := plateTemplate()
	plate.ActionImports = map[string]string{"sanitize": "action/maintenance/sanitize/1.0"}
	return []*types.Template{sanitize, plate}
}

func TestActionMaterialization(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, actionTemplates()...)

	inst, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)

	def, ok := inst.ActionGroups["maintenance_actions"]["sanitize"]
	require.True(t, ok)
	assert.Equal(t, "uv", def["method"])
	assert.Equal(t, "0", def[types.ActionFieldExecuted])
	assert.Equal(t, "1", def[types.ActionFieldEnabled])
	assert.Equal(t, "action/maintenance/sanitize/1.0", def[types.ActionFieldTemplateCode])
	assert.NotEmpty(t, def[types.ActionFieldTemplateEUID])
}

func TestExecuteAction(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, actionTemplates()...)
	e.Register("sanitize", func(inst *types.Instance, def types.ActionDefinition, captured map[string]any) (types.ActionResult, error) {
		inst.Status = types.InstanceStatusActive
		return types.ActionResult{
			Status: types.ActionStatusSuccess,
			Data:   map[string]any{"method": def["method"], "operator": captured["operator"]},
		}, nil
	})

	inst, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)

	result, err := e.ExecuteAction(inst.EUID, "maintenance_actions", "sanitize", map[string]any{"operator": "pat"})
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, "uv", result.Data["method"])

	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		got, err := tx.GetInstanceByEUID(inst.EUID)
		require.NoError(t, err)
		assert.Equal(t, types.InstanceStatusActive, got.Status)

		def := got.ActionGroups["maintenance_actions"]["sanitize"]
		assert.Equal(t, "1", def[types.ActionFieldExecuted])
		history := def[types.ActionFieldExecutedAt].([]any)
		assert.Len(t, history, 1)

		// A successful dispatch leaves one action record behind.
		records, err := tx.ListInstances(sqlite.InstanceFilter{Category: "action"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Contains(t, records[0].EUID, "XX-")
		assert.Equal(t, inst.EUID, records[0].Properties["target_euid"])
		assert.Equal(t, "tester", records[0].Properties["actor"])
		return nil
	}))
}

func TestExecuteActionFailures(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, actionTemplates()...)

	inst, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)

	_, err = e.ExecuteAction(inst.EUID, "maintenance_actions", "sterilize", nil)
	assert.ErrorIs(t, err, types.ErrUnknownAction)

	boom := errors.New("centrifuge jammed")
	e.Register("sterilize", func(*types.Instance, types.ActionDefinition, map[string]any) (types.ActionResult, error) {
		return types.ActionResult{}, boom
	})
	_, err = e.ExecuteAction(inst.EUID, "maintenance_actions", "sterilize", nil)
	assert.ErrorIs(t, err, types.ErrUnknownAction) // instance has no such action

	e.Register("sanitize", func(inst *types.Instance, _ types.ActionDefinition, _ map[string]any) (types.ActionResult, error) {
		inst.Status = "half-done"
		return types.ActionResult{}, boom
	})
	_, err = e.ExecuteAction(inst.EUID, "maintenance_actions", "sanitize", nil)
	require.ErrorIs(t, err, types.ErrActionHandlerFailure)

	e.Register("sanitize", func(*types.Instance, types.ActionDefinition, map[string]any) (types.ActionResult, error) {
		panic("handler bug")
	})
	_, err = e.ExecuteAction(inst.EUID, "maintenance_actions", "sanitize", nil)
	require.ErrorIs(t, err, types.ErrActionHandlerFailure)

	// Failed dispatches roll back: status untouched, tracking untouched, no
	// action records.
	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		got, err := tx.GetInstanceByEUID(inst.EUID)
		require.NoError(t, err)
		assert.Equal(t, types.InstanceStatusCreated, got.Status)
		assert.Equal(t, "0", got.ActionGroups["maintenance_actions"]["sanitize"][types.ActionFieldExecuted])

		records, err := tx.ListInstances(sqlite.InstanceFilter{Category: "action"})
		require.NoError(t, err)
		assert.Empty(t, records)
		return nil
	}))
}

func TestUpdateStatusAuditsSingleColumn(t *testing.T) {
	e := setupEngine(t)
	seedTemplates(t, e, plateTemplate())

	inst, err := e.CreateInstance(CreateRequest{TemplateCode: "lab/container/plate/1.0", Name: "P1"})
	require.NoError(t, err)

	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		inst.Status = types.InstanceStatusActive
		return tx.UpdateInstance(inst)
	}))

	require.NoError(t, e.store.WithTx(func(tx *sqlite.Tx) error {
		entries, err := tx.AuditFor(inst.EUID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, types.OpUpdate, entries[1].Operation)
		assert.Equal(t, "status", entries[1].Column)
		assert.Equal(t, types.InstanceStatusCreated, entries[1].OldValue)
		assert.Equal(t, types.InstanceStatusActive, entries[1].NewValue)
		return nil
	}))
}
