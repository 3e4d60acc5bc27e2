// Package validation checks template configuration documents structurally,
// without touching the database. It rejects malformed documents with
// field-level errors; semantic rules (template existence, singleton state)
// stay with the engine.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/tapestry/pkg/euid"
	"github.com/loomworks/tapestry/pkg/types"
)

// Document is one template configuration file: a mapping with a `templates`
// list.
type Document struct {
	Templates []TemplateEntry `json:"templates"`
}

// TemplateEntry is one template definition in a document.
type TemplateEntry struct {
	Name                     string  `json:"name"`
	PolymorphicDiscriminator string  `json:"polymorphic_discriminator"`
	Category                 string  `json:"category"`
	Type                     string  `json:"type"`
	Subtype                  string  `json:"subtype"`
	Version                  string  `json:"version"`
	InstancePrefix           string  `json:"instance_prefix"`
	IsSingleton              bool    `json:"is_singleton"`
	Status                   string  `json:"status"`
	Payload                  Payload `json:"payload"`
}

// Payload carries the template's behavioral configuration.
type Payload struct {
	Properties            map[string]any              `json:"properties"`
	PayloadSchema         map[string]any              `json:"payload_schema"`
	ActionImports         map[string]string           `json:"action_imports"`
	InstantiationLayout   []types.InstantiationLayout `json:"instantiation_layout"`
	DefaultStatus         string                      `json:"default_status"`
	InstanceDiscriminator string                      `json:"instance_discriminator"`
}

// FieldError locates one structural problem in a document.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string { return e.Path + ": " + e.Message }

// DocumentError aggregates every field error found in one document.
type DocumentError struct {
	Errors []FieldError
}

func (e *DocumentError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return fmt.Sprintf("invalid template document: %s", strings.Join(msgs, "; "))
}

// Load reads and decodes a template document. YAML documents are decoded
// through a JSON round trip so the string-or-object child-template forms go
// through the same unmarshalers as JSON input.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if raw, err = json.Marshal(tree); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks the document's structure and returns nil or a
// *DocumentError listing every problem found.
func Validate(doc *Document) error {
	var errs []FieldError
	add := func(path, format string, args ...any) {
		errs = append(errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(doc.Templates) == 0 {
		add("templates", "document declares no templates")
	}

	seen := map[string]int{}
	for i, entry := range doc.Templates {
		path := fmt.Sprintf("templates[%d]", i)

		for _, field := range []struct{ name, value string }{
			{"name", entry.Name},
			{"category", entry.Category},
			{"type", entry.Type},
			{"subtype", entry.Subtype},
			{"version", entry.Version},
		} {
			if strings.TrimSpace(field.value) == "" {
				add(path+"."+field.name, "required")
			}
		}

		if strings.TrimSpace(entry.InstancePrefix) == "" {
			add(path+".instance_prefix", "required")
		} else if _, err := euid.NormalizePrefix(entry.InstancePrefix); err != nil {
			add(path+".instance_prefix", "%v", err)
		}

		key := entry.Category + "/" + entry.Type + "/" + entry.Subtype + "/" + entry.Version
		if prev, dup := seen[key]; dup {
			add(path, "duplicate composite key %s (first at templates[%d])", key, prev)
		} else {
			seen[key] = i
		}

		validateLayouts(path, entry.Payload.InstantiationLayout, add)

		for key, code := range entry.Payload.ActionImports {
			if _, err := types.ParseCode(code); err != nil {
				add(fmt.Sprintf("%s.payload.action_imports.%s", path, key), "%v", err)
			}
		}
	}

	if len(errs) > 0 {
		return &DocumentError{Errors: errs}
	}
	return nil
}

func validateLayouts(path string, layouts []types.InstantiationLayout, add func(string, string, ...any)) {
	for li, layout := range layouts {
		lpath := fmt.Sprintf("%s.payload.instantiation_layout[%d]", path, li)
		if strings.TrimSpace(layout.RelationshipType) == "" {
			add(lpath+".relationship_type", "required")
		}
		if len(layout.ChildTemplates) == 0 {
			add(lpath+".child_templates", "layout declares no children")
		}
		for ci, child := range layout.ChildTemplates {
			cpath := fmt.Sprintf("%s.child_templates[%d]", lpath, ci)
			if _, err := types.ParseCode(child.TemplateCode); err != nil {
				add(cpath+".template_code", "%v", err)
			}
			if child.Count < 1 {
				add(cpath+".count", "must be >= 1, got %d", child.Count)
			}
		}
	}
}

// Templates converts a validated document into template rows ready for
// seeding. Prefixes are normalized; statuses and discriminators get their
// defaults.
func Templates(doc *Document) ([]*types.Template, error) {
	out := make([]*types.Template, 0, len(doc.Templates))
	for _, entry := range doc.Templates {
		prefix, err := euid.NormalizePrefix(entry.InstancePrefix)
		if err != nil {
			return nil, err
		}
		status := entry.Status
		if status == "" {
			status = types.TemplateStatusActive
		}
		discriminator := entry.PolymorphicDiscriminator
		if discriminator == "" {
			discriminator = "generic_template"
		}
		out = append(out, &types.Template{
			Name:                  entry.Name,
			Discriminator:         discriminator,
			Category:              entry.Category,
			Type:                  entry.Type,
			Subtype:               entry.Subtype,
			Version:               entry.Version,
			InstancePrefix:        prefix,
			InstanceDiscriminator: entry.Payload.InstanceDiscriminator,
			PayloadSchema:         entry.Payload.PayloadSchema,
			DefaultProperties:     entry.Payload.Properties,
			DefaultStatus:         entry.Payload.DefaultStatus,
			ActionImports:         entry.Payload.ActionImports,
			Layouts:               entry.Payload.InstantiationLayout,
			Status:                status,
			IsSingleton:           entry.IsSingleton,
		})
	}
	return out, nil
}
