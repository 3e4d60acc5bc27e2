// Package types defines the Template, Instance, LineageEdge, and AuditEntry
// entities, template-code handling, instantiation layouts, and the standard
// error set for the Tapestry object-model engine.
// See docs/ARCHITECTURE.md § Data Model.
package types
