package types

import "errors"

// Template resolution errors.
var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateIntegrity = errors.New("template integrity violation")
	ErrInvalidCode       = errors.New("invalid template code")
)

// Instance creation errors.
var (
	ErrSchemaValidation  = errors.New("payload failed schema validation")
	ErrSingletonConflict = errors.New("live instance already exists for singleton template")
	ErrMaxDepthExceeded  = errors.New("maximum instantiation depth exceeded")
	ErrLayoutCycle       = errors.New("cycle detected in instantiation layouts")
)

// Lineage errors.
var (
	ErrDuplicateEdge    = errors.New("live edge already exists for (parent, child, relationship)")
	ErrSelfReference    = errors.New("instance cannot be linked to itself")
	ErrInvalidDirection = errors.New("direction must be parents or children")
)

// Identifier errors.
var (
	ErrInvalidIdentifierInput = errors.New("counter value must be a positive integer")
	ErrIdentifierIntegrity    = errors.New("identifier prefix has no provisioned counter")
	ErrMalformedIdentifier    = errors.New("malformed identifier")
)

// Action dispatch errors.
var (
	ErrUnknownAction        = errors.New("no handler registered for action")
	ErrActionHandlerFailure = errors.New("action handler failed")
)

// Generic storage errors.
var (
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidID   = errors.New("invalid entity ID")
	ErrInvalidData = errors.New("invalid entity data")
	ErrInvalidName = errors.New("invalid name")
)
