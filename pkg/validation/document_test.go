package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/tapestry/pkg/types"
)

const sampleYAML = `templates:
  - name: fixed plate 96
    polymorphic_discriminator: container_template
    category: container
    type: plate
    subtype: fixed-plate-96
    version: "1.0"
    instance_prefix: CX
    payload:
      properties:
        wells: 96
      instantiation_layout:
        - relationship_type: contains
          child_templates:
            - container/tube/standard/1.0
            - template_code: container/tube/standard/1.0
              count: 3
              name_pattern: "{parent_name}_well_{index}"
  - name: standard tube
    category: container
    type: tube
    subtype: standard
    version: "1.0"
    instance_prefix: tx
    is_singleton: false
`

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAMLDocument(t *testing.T) {
	doc, err := Load(writeDoc(t, "templates.yaml", sampleYAML))
	require.NoError(t, err)
	require.Len(t, doc.Templates, 2)

	plate := doc.Templates[0]
	assert.Equal(t, "container_template", plate.PolymorphicDiscriminator)
	assert.Equal(t, float64(96), plate.Payload.Properties["wells"])

	// String and object child forms decode to the same shape.
	layout := plate.Payload.InstantiationLayout[0]
	require.Len(t, layout.ChildTemplates, 2)
	assert.Equal(t, types.ChildTemplate{TemplateCode: "container/tube/standard/1.0", Count: 1}, layout.ChildTemplates[0])
	assert.Equal(t, 3, layout.ChildTemplates[1].Count)
	assert.Equal(t, "{parent_name}_well_{index}", layout.ChildTemplates[1].NamePattern)

	require.NoError(t, Validate(doc))
}

func TestLoadJSONDocument(t *testing.T) {
	doc, err := Load(writeDoc(t, "templates.json",
		`{"templates": [{"name": "t", "category": "c", "type": "ty", "subtype": "s",
		  "version": "1.0", "instance_prefix": "TT"}]}`))
	require.NoError(t, err)
	require.NoError(t, Validate(doc))
}

func TestValidateReportsFieldErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		path string
	}{
		{
			name: "empty document",
			doc:  Document{},
			path: "templates",
		},
		{
			name: "missing required fields",
			doc: Document{Templates: []TemplateEntry{
				{Name: "x", Category: "c", Type: "t", Version: "1.0", InstancePrefix: "XA"},
			}},
			path: "templates[0].subtype",
		},
		{
			name: "bad prefix",
			doc: Document{Templates: []TemplateEntry{
				{Name: "x", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "C1"},
			}},
			path: "templates[0].instance_prefix",
		},
		{
			name: "duplicate composite key",
			doc: Document{Templates: []TemplateEntry{
				{Name: "a", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "XA"},
				{Name: "b", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "XB"},
			}},
			path: "templates[1]",
		},
		{
			name: "empty layout",
			doc: Document{Templates: []TemplateEntry{{
				Name: "a", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "XA",
				Payload: Payload{InstantiationLayout: []types.InstantiationLayout{
					{RelationshipType: "contains"},
				}},
			}}},
			path: "templates[0].payload.instantiation_layout[0].child_templates",
		},
		{
			name: "bad child code",
			doc: Document{Templates: []TemplateEntry{{
				Name: "a", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "XA",
				Payload: Payload{InstantiationLayout: []types.InstantiationLayout{{
					RelationshipType: "contains",
					ChildTemplates:   []types.ChildTemplate{{TemplateCode: "only/two", Count: 1}},
				}}},
			}}},
			path: "templates[0].payload.instantiation_layout[0].child_templates[0].template_code",
		},
		{
			name: "bad action import code",
			doc: Document{Templates: []TemplateEntry{{
				Name: "a", Category: "c", Type: "t", Subtype: "s", Version: "1.0", InstancePrefix: "XA",
				Payload: Payload{ActionImports: map[string]string{"go": "not-a-code"}},
			}}},
			path: "templates[0].payload.action_imports.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.doc)
			require.Error(t, err)
			var docErr *DocumentError
			require.ErrorAs(t, err, &docErr)

			paths := make([]string, len(docErr.Errors))
			for i, fe := range docErr.Errors {
				paths[i] = fe.Path
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestValidateRejectsBadCount(t *testing.T) {
	_, err := Load(writeDoc(t, "bad.yaml", `templates:
  - name: a
    category: c
    type: t
    subtype: s
    version: "1.0"
    instance_prefix: XA
    payload:
      instantiation_layout:
        - child_templates:
            - template_code: c/t/s/1.0
              count: -2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count")
}

func TestTemplatesConversion(t *testing.T) {
	doc, err := Load(writeDoc(t, "templates.yaml", sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(doc))

	templates, err := Templates(doc)
	require.NoError(t, err)
	require.Len(t, templates, 2)

	plate := templates[0]
	assert.Equal(t, "container_template", plate.Discriminator)
	assert.Equal(t, "CX", plate.InstancePrefix)
	assert.Equal(t, types.TemplateStatusActive, plate.Status)
	require.Len(t, plate.Layouts, 1)

	// Lowercase prefixes normalize at conversion.
	assert.Equal(t, "TX", templates[1].InstancePrefix)
}
