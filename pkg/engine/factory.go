package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

// maxInstantiationDepth bounds cascading child creation. A chain this deep
// is almost certainly a layout cycle the visited set missed across versions.
const maxInstantiationDepth = 10

// CreateRequest describes one top-level instance creation.
type CreateRequest struct {
	// TemplateCode is the composite code ("category/type/subtype/version").
	TemplateCode string

	// Name is the instance name. Required.
	Name string

	// Properties are caller values deep-merged over the template defaults;
	// caller keys win on conflict.
	Properties map[string]any

	// SkipChildren suppresses cascading creation from the template's
	// instantiation layouts.
	SkipChildren bool
}

// CreateInstance creates an instance from a template code, cascading child
// creation per the template's layouts. The whole cascade is one unit of
// work: any failure rolls back every instance and edge created by this call.
func (e *Engine) CreateInstance(req CreateRequest) (*types.Instance, error) {
	var inst *types.Instance
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		var err error
		inst, err = e.createInTx(tx, req, 0, map[string]struct{}{})
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("instance created", "euid", inst.EUID, "template", req.TemplateCode)
	return inst, nil
}

// CreateInstanceTx is CreateInstance inside a caller-owned unit of work, for
// composing instance creation with other mutations.
func (e *Engine) CreateInstanceTx(tx *sqlite.Tx, req CreateRequest) (*types.Instance, error) {
	return e.createInTx(tx, req, 0, map[string]struct{}{})
}

func (e *Engine) createInTx(tx *sqlite.Tx, req CreateRequest, depth int, visited map[string]struct{}) (*types.Instance, error) {
	if depth > maxInstantiationDepth {
		return nil, fmt.Errorf("%w: instantiation depth %d", types.ErrMaxDepthExceeded, depth)
	}

	tmpl, err := e.resolver.Resolve(tx, req.TemplateCode)
	if err != nil {
		return nil, err
	}
	if _, seen := visited[tmpl.UUID]; seen {
		return nil, fmt.Errorf("%w: template %s revisited in cascade", types.ErrLayoutCycle, tmpl.EUID)
	}
	visited[tmpl.UUID] = struct{}{}

	properties := deepMerge(tmpl.DefaultProperties, req.Properties)
	if len(tmpl.PayloadSchema) > 0 {
		if err := validatePayload(tmpl.PayloadSchema, properties); err != nil {
			return nil, err
		}
	}

	groups, err := e.materializeActions(tx, tmpl)
	if err != nil {
		return nil, err
	}

	inst := &types.Instance{
		Name:          req.Name,
		Discriminator: instanceDiscriminator(tmpl),
		Category:      tmpl.Category,
		Type:          tmpl.Type,
		Subtype:       tmpl.Subtype,
		Version:       tmpl.Version,
		TemplateUUID:  tmpl.UUID,
		TemplateEUID:  tmpl.EUID,
		Properties:    properties,
		ActionGroups:  groups,
		Status:        defaultStatus(tmpl),
		IsSingleton:   tmpl.IsSingleton,
	}
	if err := tx.InsertInstance(inst, tmpl.InstancePrefix); err != nil {
		return nil, err
	}

	if !req.SkipChildren {
		if err := e.cascade(tx, inst, tmpl, depth, visited); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// cascade expands each layout entry into child instances and edges. Children
// cascade in turn, each branch with its own copy of the visited set so
// sibling subtrees may legitimately share template types.
func (e *Engine) cascade(tx *sqlite.Tx, parent *types.Instance, tmpl *types.Template, depth int, visited map[string]struct{}) error {
	for layoutIndex, layout := range tmpl.Layouts {
		relationship := layout.RelationshipType
		if relationship == "" {
			relationship = types.DefaultRelationship
		}
		for childIndex, ct := range layout.ChildTemplates {
			pattern := ct.NamePattern
			if pattern == "" {
				pattern = layout.NamePattern
			}
			if pattern == "" {
				pattern = types.DefaultNamePattern
			}
			count := ct.Count
			if count < 1 {
				count = 1
			}
			for i := 1; i <= count; i++ {
				childTmpl, err := e.resolver.Resolve(tx, ct.TemplateCode)
				if err != nil {
					return err
				}
				name := expandNamePattern(pattern, patternVars{
					parent:      parent,
					child:       childTmpl,
					index:       i,
					layoutIndex: layoutIndex,
					childIndex:  childIndex,
				})
				child, err := e.createInTx(tx, CreateRequest{
					TemplateCode: ct.TemplateCode,
					Name:         name,
				}, depth+1, copyVisited(visited))
				if err != nil {
					return err
				}
				if _, err := e.linkInTx(tx, parent, child, relationship); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// LinkInstances creates a live lineage edge between two existing instances,
// looked up by identifier. The relationship defaults to "generic"; the edge
// carries the endpoints' denormalized types.
func (e *Engine) LinkInstances(parentID, childID, relationship string) (*types.LineageEdge, error) {
	var edge *types.LineageEdge
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		parent, err := liveInstance(tx, parentID)
		if err != nil {
			return err
		}
		child, err := liveInstance(tx, childID)
		if err != nil {
			return err
		}
		edge, err = e.linkInTx(tx, parent, child, relationship)
		return err
	})
	return edge, err
}

func (e *Engine) linkInTx(tx *sqlite.Tx, parent, child *types.Instance, relationship string) (*types.LineageEdge, error) {
	if relationship == "" {
		relationship = types.GenericRelationship
	}
	edge := &types.LineageEdge{
		Name:             parent.EUID + "->" + child.EUID,
		RelationshipType: relationship,
		ParentUUID:       parent.UUID,
		ChildUUID:        child.UUID,
		ParentType:       parent.Type,
		ChildType:        child.Type,
		Status:           types.InstanceStatusActive,
	}
	if err := tx.InsertEdge(edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// GetOrCreateSingleton returns the live instance of a singleton template,
// creating it on first call. Created reports whether this call made it.
// A soft-deleted instance is not resurrected; a fresh one is created with a
// new identifier.
func (e *Engine) GetOrCreateSingleton(req CreateRequest) (inst *types.Instance, created bool, err error) {
	err = e.store.WithTx(func(tx *sqlite.Tx) error {
		tmpl, err := e.resolver.Resolve(tx, req.TemplateCode)
		if err != nil {
			return err
		}
		if !tmpl.IsSingleton {
			return fmt.Errorf("%w: template %s is not a singleton", types.ErrInvalidData, tmpl.EUID)
		}

		existing, err := tx.LiveInstanceForTemplate(tmpl.UUID)
		if err == nil {
			inst = existing
			return nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}

		inst, err = e.createInTx(tx, req, 0, map[string]struct{}{})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return inst, created, nil
}

// materializeActions expands the template's action imports into instance
// action groups. Each import resolves to an action template whose defaults
// become the definition, stamped with the action template's identity and
// reset tracking fields. Groups are keyed "<type>_actions".
func (e *Engine) materializeActions(tx *sqlite.Tx, tmpl *types.Template) (types.ActionGroups, error) {
	if len(tmpl.ActionImports) == 0 {
		return nil, nil
	}

	groups := types.ActionGroups{}
	keys := make([]string, 0, len(tmpl.ActionImports))
	for key := range tmpl.ActionImports {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actionTmpl, err := e.resolver.Resolve(tx, tmpl.ActionImports[key])
		if err != nil {
			return nil, fmt.Errorf("action import %q: %w", key, err)
		}
		def := types.ActionDefinition{}
		for k, v := range actionTmpl.DefaultProperties {
			def[k] = v
		}
		def[types.ActionFieldTemplateUUID] = actionTmpl.UUID
		def[types.ActionFieldTemplateEUID] = actionTmpl.EUID
		def[types.ActionFieldTemplateCode] = actionTmpl.Code().String()
		def[types.ActionFieldExecuted] = "0"
		def[types.ActionFieldExecutedAt] = []any{}
		def[types.ActionFieldEnabled] = "1"

		group := actionTmpl.Type + "_actions"
		if groups[group] == nil {
			groups[group] = map[string]types.ActionDefinition{}
		}
		groups[group][key] = def
	}
	return groups, nil
}

// patternVars are the substitutions available to child name patterns.
type patternVars struct {
	parent      *types.Instance
	child       *types.Template
	index       int // 1-based within one child-template expansion
	layoutIndex int
	childIndex  int
}

func expandNamePattern(pattern string, v patternVars) string {
	r := strings.NewReplacer(
		"{parent_name}", v.parent.Name,
		"{parent_euid}", v.parent.EUID,
		"{index}", strconv.Itoa(v.index),
		"{layout_index}", strconv.Itoa(v.layoutIndex),
		"{child_index}", strconv.Itoa(v.childIndex),
		"{child_subtype}", v.child.Subtype,
		"{child_template_code}", v.child.Code().String(),
	)
	return r.Replace(pattern)
}

// deepMerge returns base with override applied on top. Nested maps merge
// recursively; any other value, slices included, is replaced wholesale.
// Neither input is mutated.
func deepMerge(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = copyValue(v)
	}
	for k, v := range override {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := merged[k].(map[string]any); ok {
				merged[k] = deepMerge(existing, sub)
				continue
			}
		}
		merged[k] = copyValue(v)
	}
	return merged
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, inner := range val {
			cp[k] = copyValue(inner)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, inner := range val {
			cp[i] = copyValue(inner)
		}
		return cp
	default:
		return v
	}
}

func copyVisited(visited map[string]struct{}) map[string]struct{} {
	cp := make(map[string]struct{}, len(visited))
	for k := range visited {
		cp[k] = struct{}{}
	}
	return cp
}

// validatePayload checks properties against the template's JSON Schema and
// reports every violated field.
func validatePayload(schema, properties map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(properties),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSchemaValidation, err)
	}
	if result.Valid() {
		return nil
	}

	fields := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		fields = append(fields, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}
	return fmt.Errorf("%w: %s", types.ErrSchemaValidation, strings.Join(fields, "; "))
}

func instanceDiscriminator(tmpl *types.Template) string {
	if tmpl.InstanceDiscriminator != "" {
		return tmpl.InstanceDiscriminator
	}
	if base, ok := strings.CutSuffix(tmpl.Discriminator, "_template"); ok && base != "" {
		return base + "_instance"
	}
	return "generic_instance"
}

func defaultStatus(tmpl *types.Template) string {
	if tmpl.DefaultStatus != "" {
		return tmpl.DefaultStatus
	}
	return types.InstanceStatusCreated
}

// liveInstance looks an instance up by identifier and rejects soft-deleted
// rows.
func liveInstance(tx *sqlite.Tx, id string) (*types.Instance, error) {
	inst, err := tx.GetInstanceByEUID(id)
	if errors.Is(err, types.ErrNotFound) {
		inst, err = tx.GetInstance(id)
	}
	if err != nil {
		return nil, err
	}
	if inst.IsDeleted {
		return nil, fmt.Errorf("%w: %s is deleted", types.ErrNotFound, inst.EUID)
	}
	return inst, nil
}

// SoftDeleteInstance soft-deletes an instance by identifier. Edges touching
// it stay live; traversal filters on instance liveness.
func (e *Engine) SoftDeleteInstance(id string) error {
	return e.store.WithTx(func(tx *sqlite.Tx) error {
		inst, err := liveInstance(tx, id)
		if err != nil {
			return err
		}
		return tx.SoftDeleteInstance(inst.UUID)
	})
}

// SoftDeleteTemplate soft-deletes a template by identifier, freeing its
// composite key for a successor. Existing instances are untouched.
func (e *Engine) SoftDeleteTemplate(id string) error {
	return e.store.WithTx(func(tx *sqlite.Tx) error {
		tmpl, err := tx.GetTemplateByEUID(id)
		if err != nil {
			return err
		}
		return tx.SoftDeleteTemplate(tmpl.UUID)
	})
}
