package rulebase

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a definition from a .toml, .yaml or .yml file. Unknown keys are rejected.
func Load(path string) (Definition, error) {
	var def Definition

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", ".yaml", ".yml":
	default:
		return def, fmt.Errorf("%w: extension %q", ErrUnsupportedFile, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("read rule base: %w", err)
	}

	switch ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("parse toml: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("parse yaml: %w", err)
		}
	}
	return def, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Definition, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
