package sqlite

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/tapestry/pkg/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := types.Config{DataDir: t.TempDir(), Actor: "tester"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTemplate(subtype string) *types.Template {
	return &types.Template{
		Name:           "sample " + subtype,
		Category:       "lab",
		Type:           "container",
		Subtype:        subtype,
		Version:        "1.0",
		InstancePrefix: "CX",
		DefaultProperties: map[string]any{
			"capacity": float64(96),
		},
	}
}

func insertTemplate(t *testing.T, store *Store, tmpl *types.Template) {
	t.Helper()
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		if err := tx.ProvisionPrefix(tmpl.InstancePrefix, 0); err != nil {
			return err
		}
		return tx.InsertTemplate(tmpl)
	}))
}

func TestTemplateLifecycle(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	assert.Equal(t, "GT-13", tmpl.EUID)
	assert.NotEmpty(t, tmpl.UUID)
	assert.Equal(t, "generic_template", tmpl.Discriminator)
	assert.Equal(t, types.TemplateStatusActive, tmpl.Status)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		got, err := tx.GetTemplateByCode(tmpl.Code())
		require.NoError(t, err)
		assert.Equal(t, tmpl.UUID, got.UUID)
		assert.Equal(t, map[string]any{"capacity": float64(96)}, got.DefaultProperties)

		entries, err := tx.AuditFor(tmpl.EUID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, types.OpInsert, entries[0].Operation)
		assert.Equal(t, "tester", entries[0].Actor)
		return nil
	}))
}

func TestTemplateUpdateAuditsPerColumn(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		tmpl.Name = "renamed plate"
		tmpl.Status = types.TemplateStatusRetired
		return tx.UpdateTemplate(tmpl)
	}))

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		entries, err := tx.AuditFor(tmpl.EUID)
		require.NoError(t, err)
		require.Len(t, entries, 3) // insert + one per changed column

		columns := map[string]bool{}
		for _, e := range entries[1:] {
			assert.Equal(t, types.OpUpdate, e.Operation)
			columns[e.Column] = true
		}
		assert.True(t, columns["name"])
		assert.True(t, columns["status"])
		return nil
	}))

	// Writing identical values records nothing.
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.UpdateTemplate(tmpl)
	}))
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		entries, err := tx.AuditFor(tmpl.EUID)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
		return nil
	}))
}

func TestTemplateSoftDelete(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.SoftDeleteTemplate(tmpl.UUID)
	}))

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		_, err := tx.GetTemplateByCode(tmpl.Code())
		assert.ErrorIs(t, err, types.ErrTemplateNotFound)

		// Still reachable by identifier.
		got, err := tx.GetTemplateByEUID(tmpl.EUID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)

		live, err := tx.ListTemplates(TemplateFilter{})
		require.NoError(t, err)
		assert.Empty(t, live)

		entries, err := tx.AuditFor(tmpl.EUID)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		assert.Equal(t, types.OpDelete, last.Operation)
		assert.NotEmpty(t, last.DeletedRecord)
		return nil
	}))

	// Deleting again is a no-op.
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.SoftDeleteTemplate(tmpl.UUID)
	}))
}

func TestTemplateDuplicateCodeRejected(t *testing.T) {
	store := setupStore(t)
	insertTemplate(t, store, sampleTemplate("plate"))

	err := store.WithTx(func(tx *Tx) error {
		return tx.InsertTemplate(sampleTemplate("plate"))
	})
	assert.ErrorIs(t, err, types.ErrTemplateIntegrity)

	// Deleting the live row frees the composite key for a replacement.
	var uuid string
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		tmpl, err := tx.GetTemplateByCode(sampleTemplate("plate").Code())
		if err != nil {
			return err
		}
		uuid = tmpl.UUID
		return tx.SoftDeleteTemplate(uuid)
	}))
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.InsertTemplate(sampleTemplate("plate"))
	}))
}

func sampleInstance(tmpl *types.Template, name string) *types.Instance {
	return &types.Instance{
		Name:          name,
		Discriminator: "generic_instance",
		Category:      tmpl.Category,
		Type:          tmpl.Type,
		Subtype:       tmpl.Subtype,
		Version:       tmpl.Version,
		TemplateUUID:  tmpl.UUID,
		TemplateEUID:  tmpl.EUID,
		Status:        types.InstanceStatusCreated,
		IsSingleton:   tmpl.IsSingleton,
	}
}

func TestInstanceSingletonConflict(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("queue")
	tmpl.IsSingleton = true
	insertTemplate(t, store, tmpl)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.InsertInstance(sampleInstance(tmpl, "queue one"), tmpl.InstancePrefix)
	}))

	err := store.WithTx(func(tx *Tx) error {
		return tx.InsertInstance(sampleInstance(tmpl, "queue two"), tmpl.InstancePrefix)
	})
	assert.ErrorIs(t, err, types.ErrSingletonConflict)

	// The failed transaction rolled back: only one instance exists.
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		instances, err := tx.ListInstances(InstanceFilter{})
		require.NoError(t, err)
		assert.Len(t, instances, 1)
		return nil
	}))
}

func TestInstanceRollbackOnError(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	boom := errors.New("boom")
	err := store.WithTx(func(tx *Tx) error {
		if err := tx.InsertInstance(sampleInstance(tmpl, "doomed"), tmpl.InstancePrefix); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		instances, err := tx.ListInstances(InstanceFilter{})
		require.NoError(t, err)
		assert.Empty(t, instances)

		// The counter allocation rolled back with the row.
		value, err := tx.CounterValue(tmpl.InstancePrefix)
		require.NoError(t, err)
		assert.Zero(t, value)
		return nil
	}))
}

func TestEdgeTraversal(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	parent := sampleInstance(tmpl, "parent")
	childA := sampleInstance(tmpl, "child a")
	childB := sampleInstance(tmpl, "child b")
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		for _, inst := range []*types.Instance{parent, childA, childB} {
			if err := tx.InsertInstance(inst, tmpl.InstancePrefix); err != nil {
				return err
			}
		}
		for _, child := range []*types.Instance{childA, childB} {
			edge := &types.LineageEdge{
				ParentUUID:       parent.UUID,
				ChildUUID:        child.UUID,
				RelationshipType: types.DefaultRelationship,
			}
			if err := tx.InsertEdge(edge); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		children, err := tx.ChildrenOf(parent.UUID, "")
		require.NoError(t, err)
		assert.Len(t, children, 2)

		parents, err := tx.ParentsOf(childA.UUID, types.DefaultRelationship)
		require.NoError(t, err)
		require.Len(t, parents, 1)
		assert.Equal(t, parent.UUID, parents[0].UUID)

		none, err := tx.ChildrenOf(parent.UUID, "derived")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))

	// A duplicate live triple is rejected; a self edge never exists.
	err := store.WithTx(func(tx *Tx) error {
		return tx.InsertEdge(&types.LineageEdge{
			ParentUUID:       parent.UUID,
			ChildUUID:        childA.UUID,
			RelationshipType: types.DefaultRelationship,
		})
	})
	assert.ErrorIs(t, err, types.ErrDuplicateEdge)

	err = store.WithTx(func(tx *Tx) error {
		return tx.InsertEdge(&types.LineageEdge{ParentUUID: parent.UUID, ChildUUID: parent.UUID})
	})
	assert.ErrorIs(t, err, types.ErrSelfReference)

	// Soft-deleting an edge removes it from traversal but not its endpoints.
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		edges, err := tx.EdgesFrom(parent.UUID, "")
		require.NoError(t, err)
		return tx.SoftDeleteEdge(edges[0].UUID)
	}))
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		children, err := tx.ChildrenOf(parent.UUID, "")
		require.NoError(t, err)
		assert.Len(t, children, 1)

		instances, err := tx.ListInstances(InstanceFilter{})
		require.NoError(t, err)
		assert.Len(t, instances, 3)
		return nil
	}))
}

func TestCounterIntegrity(t *testing.T) {
	store := setupStore(t)

	err := store.WithTx(func(tx *Tx) error {
		_, err := tx.NextEUID("ZZ")
		return err
	})
	assert.ErrorIs(t, err, types.ErrIdentifierIntegrity)

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		if err := tx.ProvisionPrefix("ZZ", 0); err != nil {
			return err
		}
		first, err := tx.NextEUID("ZZ")
		require.NoError(t, err)
		assert.Equal(t, "ZZ-10", first)
		second, err := tx.NextEUID("ZZ")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		// Re-provisioning never lowers the counter.
		if err := tx.ProvisionPrefix("ZZ", 1); err != nil {
			return err
		}
		value, err := tx.CounterValue("ZZ")
		require.NoError(t, err)
		assert.EqualValues(t, 2, value)
		return nil
	}))
}

func TestSandboxIdentifiers(t *testing.T) {
	cfg := types.Config{DataDir: t.TempDir(), Actor: "tester", SandboxPrefix: "X"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)
	assert.Equal(t, "X:GT-13", tmpl.EUID)
}

func TestSeedTemplatesUpserts(t *testing.T) {
	store := setupStore(t)
	catalog := []*types.Template{sampleTemplate("plate"), sampleTemplate("rack")}

	require.NoError(t, store.WithTx(func(tx *Tx) error {
		inserted, updated, err := tx.SeedTemplates(catalog)
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)
		assert.Zero(t, updated)
		return nil
	}))

	// Re-seeding with a changed field updates in place and keeps identity.
	reseed := []*types.Template{sampleTemplate("plate")}
	reseed[0].DefaultProperties = map[string]any{"capacity": float64(384)}
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		inserted, updated, err := tx.SeedTemplates(reseed)
		require.NoError(t, err)
		assert.Zero(t, inserted)
		assert.Equal(t, 1, updated)

		got, err := tx.GetTemplateByCode(catalog[0].Code())
		require.NoError(t, err)
		assert.Equal(t, catalog[0].EUID, got.EUID)
		assert.Equal(t, float64(384), got.DefaultProperties["capacity"])
		return nil
	}))
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	store := setupStore(t)
	tmpl := sampleTemplate("plate")
	insertTemplate(t, store, tmpl)

	inst := sampleInstance(tmpl, "the plate")
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.InsertInstance(inst, tmpl.InstancePrefix)
	}))
	require.NoError(t, store.WithTx(func(tx *Tx) error {
		return tx.SoftDeleteInstance(inst.UUID)
	}))

	backupDir := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, store.Backup(backupDir))

	restored := setupStore(t)
	require.NoError(t, restored.Restore(backupDir))

	require.NoError(t, restored.WithTx(func(tx *Tx) error {
		got, err := tx.GetTemplateByEUID(tmpl.EUID)
		require.NoError(t, err)
		assert.Equal(t, tmpl.UUID, got.UUID)

		gotInst, err := tx.GetInstanceByEUID(inst.EUID)
		require.NoError(t, err)
		assert.True(t, gotInst.IsDeleted)

		entries, err := tx.AuditFor(inst.EUID)
		require.NoError(t, err)
		assert.Len(t, entries, 2) // insert + delete, carried through the dump

		// Counters carried over: the next identifier does not collide.
		value, err := tx.CounterValue(tmpl.InstancePrefix)
		require.NoError(t, err)
		assert.EqualValues(t, 1, value)
		return nil
	}))
}
