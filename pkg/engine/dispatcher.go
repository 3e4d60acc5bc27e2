package engine

import (
	"fmt"
	"time"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

// ActionFunc executes one action against an instance. The handler may
// mutate the instance's fields and properties; the dispatcher persists the
// mutation through the audited update path after the handler returns.
type ActionFunc func(inst *types.Instance, def types.ActionDefinition, captured map[string]any) (types.ActionResult, error)

// Register binds an action key to its handler. Handlers are registered at
// startup; registering a key again replaces the previous handler.
func (e *Engine) Register(key string, fn ActionFunc) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.handlers[key] = fn
}

func (e *Engine) handler(key string) (ActionFunc, bool) {
	e.handlerMu.RLock()
	defer e.handlerMu.RUnlock()
	fn, ok := e.handlers[key]
	return fn, ok
}

// ExecuteAction routes a named action on an instance through its registered
// handler. Everything the call touches commits or rolls back together: the
// handler's instance mutations, the execution-tracking bump, and the action
// record. A handler error or panic rolls the whole call back and surfaces as
// ErrActionHandlerFailure.
func (e *Engine) ExecuteAction(instanceID, group, key string, captured map[string]any) (types.ActionResult, error) {
	fn, ok := e.handler(key)
	if !ok {
		return types.ActionResult{}, fmt.Errorf("%w: no handler registered for %q", types.ErrUnknownAction, key)
	}

	var result types.ActionResult
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		inst, err := liveInstance(tx, instanceID)
		if err != nil {
			return err
		}
		def, ok := inst.ActionGroups[group][key]
		if !ok {
			return fmt.Errorf("%w: instance %s has no action %s/%s", types.ErrUnknownAction, inst.EUID, group, key)
		}
		if enabled, ok := def[types.ActionFieldEnabled].(string); ok && enabled == "0" {
			result = types.ActionResult{
				Status:  types.ActionStatusError,
				Message: fmt.Sprintf("action %s/%s is disabled", group, key),
			}
			return nil
		}

		result, err = invoke(fn, inst, def, captured)
		if err != nil {
			return err
		}

		bumpTracking(def)
		inst.ActionGroups[group][key] = def
		if err := tx.UpdateInstance(inst); err != nil {
			return err
		}
		if err := e.recordAction(tx, inst, group, key, def, captured, result); err != nil {
			return err
		}
		e.logger.Info("action executed", "euid", inst.EUID, "group", group, "key", key, "status", result.Status)
		return nil
	})
	if err != nil {
		return types.ActionResult{}, err
	}
	return result, nil
}

// invoke runs the handler, converting a panic into a typed failure so one
// misbehaving handler cannot take the process down.
func invoke(fn ActionFunc, inst *types.Instance, def types.ActionDefinition, captured map[string]any) (result types.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = types.ActionResult{}
			err = fmt.Errorf("%w: handler panic: %v", types.ErrActionHandlerFailure, r)
		}
	}()
	result, err = fn(inst, def, captured)
	if err != nil {
		return types.ActionResult{}, fmt.Errorf("%w: %v", types.ErrActionHandlerFailure, err)
	}
	if result.Status == "" {
		result.Status = types.ActionStatusSuccess
	}
	return result, nil
}

// bumpTracking marks the action executed and appends the execution
// timestamp.
func bumpTracking(def types.ActionDefinition) {
	def[types.ActionFieldExecuted] = "1"
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if history, ok := def[types.ActionFieldExecutedAt].([]any); ok {
		def[types.ActionFieldExecutedAt] = append(history, stamp)
	} else {
		def[types.ActionFieldExecutedAt] = []any{stamp}
	}
}

// recordAction persists an action-instance row (XX prefix) summarizing one
// successful dispatch.
func (e *Engine) recordAction(tx *sqlite.Tx, target *types.Instance, group, key string, def types.ActionDefinition, captured map[string]any, result types.ActionResult) error {
	record := &types.Instance{
		Name:          fmt.Sprintf("%s/%s on %s", group, key, target.EUID),
		Discriminator: "action_instance",
		Category:      "action",
		Type:          group,
		Subtype:       key,
		Version:       "1.0",
		Status:        types.InstanceStatusCompleted,
		Properties: map[string]any{
			"target_euid":   target.EUID,
			"action_group":  group,
			"action_key":    key,
			"definition":    map[string]any(def),
			"captured_data": captured,
			"result":        result,
			"actor":         tx.Actor(),
			"executed_at":   time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if code, ok := def[types.ActionFieldTemplateCode].(string); ok {
		record.Properties["action_template_code"] = code
	}
	if u, ok := def[types.ActionFieldTemplateUUID].(string); ok {
		record.TemplateUUID = u
	}
	if id, ok := def[types.ActionFieldTemplateEUID].(string); ok {
		record.TemplateEUID = id
	}
	return tx.InsertInstance(record, types.PrefixAction)
}
