package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadRecipe reads a recipe file, expands bundle shorthand steps, sets
// Dir/FilePath, and validates the result.
func LoadRecipe(filename string) (*Recipe, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading recipe file: %w", err)
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing recipe file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	r.FilePath = absPath
	r.Dir = filepath.Dir(absPath)

	expanded, err := ExpandBundles(r.Steps)
	if err != nil {
		return nil, fmt.Errorf("expanding bundle steps: %w", err)
	}
	r.Steps = expanded

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating recipe %s: %w", filename, err)
	}

	return &r, nil
}
