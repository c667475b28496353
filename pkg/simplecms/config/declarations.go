package config

import (
	"fmt"
	"os"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
	"gopkg.in/yaml.v3"
)

type declarationFile struct {
	ContentTypes []simplecms.Declaration `yaml:"content_types"`
}

// LoadDeclarations reads content type declarations from a YAML file.
func LoadDeclarations(path string) ([]simplecms.Declaration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content types file: %w", err)
	}
	decls, err := ParseDeclarations(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return decls, nil
}

// ParseDeclarations decodes YAML content type declarations. Schemas use the
// persisted representation's keys and are checked before they are returned.
func ParseDeclarations(raw []byte) ([]simplecms.Declaration, error) {
	var file declarationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("invalid content types yaml: %w", err)
	}
	for i, d := range file.ContentTypes {
		if d.Shape == nil {
			return nil, fmt.Errorf("content type %d (%q): schema is required", i, d.Slug)
		}
		if _, err := schema.Marshal(d.Shape); err != nil {
			return nil, fmt.Errorf("content type %q: %w", d.Slug, err)
		}
	}
	return file.ContentTypes, nil
}
