package provision

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadContextFile reads a YAML file of template data. Environment
// variable references (${VAR}) in the raw file are expanded before
// parsing, so operator-supplied context can carry values from the
// provisioning environment without duplicating them.
func LoadContextFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var ctx map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &ctx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}
	if ctx == nil {
		ctx = make(map[string]any)
	}
	return ctx, nil
}

// MergeContext performs a shallow merge of the recipe context over the
// global context; recipe keys win at the top level.
func MergeContext(global, local map[string]any) map[string]any {
	merged := make(map[string]any, len(global)+len(local))
	maps.Copy(merged, global)
	maps.Copy(merged, local)
	return merged
}
