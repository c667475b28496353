package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

const typesYAML = `
content_types:
  - slug: author
    name: Author
    schema:
      type: object
      properties:
        name:
          type: string
          minLength: 1
      required: [name]
  - slug: post
    name: Post
    description: Blog posts
    schema:
      type: object
      properties:
        title:
          type: string
          label: Title
        status:
          type: string
          enum: [draft, published]
        author:
          type: object
          fieldType: relation
          relation:
            type: belongsTo
            targetType: author
            displayField: name
      required: [title]
`

func TestParseDeclarations(t *testing.T) {
	decls, err := ParseDeclarations([]byte(typesYAML))
	require.NoError(t, err)
	require.Len(t, decls, 2)

	post := decls[1]
	assert.Equal(t, "Post", post.Name)
	assert.Equal(t, "Blog posts", post.Description)
	assert.Equal(t, "Title", post.Shape.Properties["title"].Label)
	assert.Equal(t, []any{"draft", "published"}, post.Shape.Properties["status"].Enum)

	author := post.Shape.Properties["author"]
	require.True(t, author.IsRelation())
	assert.Equal(t, schema.RelationBelongsTo, author.Relation.Type)
	assert.Equal(t, "author", author.Relation.TargetType)
	assert.Equal(t, []string{"title"}, post.Shape.Required)

	require.NotNil(t, decls[0].Shape.Properties["name"].MinLength)
	assert.Equal(t, 1, *decls[0].Shape.Properties["name"].MinLength)
}

func TestParseDeclarations_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "content_types: [:"},
		{"missing schema", "content_types:\n  - slug: x\n"},
		{"root is not an object", "content_types:\n  - slug: x\n    schema:\n      type: string\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDeclarations([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadDeclarations_MissingFile(t *testing.T) {
	_, err := LoadDeclarations("does-not-exist.yaml")
	assert.Error(t, err)
}
