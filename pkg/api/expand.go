package api

import "fmt"

// ExpandBundles replaces every bundle shorthand step with the canonical
// step sequence for a software bundle: fetch the archive, extract it,
// run its installer, then remove the transient artifacts. Other steps
// pass through unchanged.
func ExpandBundles(steps []StepConfig) ([]StepConfig, error) {
	expanded := make([]StepConfig, 0, len(steps))
	for i, step := range steps {
		if step.Type != StepTypeBundle {
			expanded = append(expanded, step)
			continue
		}
		if step.Bundle == nil {
			return nil, fmt.Errorf("step %d (%q): bundle config is required", i, step.Name)
		}
		expanded = append(expanded, expandBundle(step)...)
	}
	return expanded, nil
}

func expandBundle(step StepConfig) []StepConfig {
	b := step.Bundle
	fetchName := step.Name + "/fetch"
	extractName := step.Name + "/extract"

	return []StepConfig{
		{
			Name:  fetchName,
			Type:  StepTypeFetch,
			Fetch: &FetchConfig{URL: b.URL, SHA256: b.SHA256},
		},
		{
			Name:    extractName,
			Type:    StepTypeExtract,
			Extract: &ExtractConfig{Archive: fetchName, Format: b.Format, Root: b.Root},
		},
		{
			Name: step.Name + "/install",
			Type: StepTypeInstall,
			// The bundle step's idempotence declaration belongs to the
			// installer; fetch, extract and cleanup are always safe to
			// repeat.
			Idempotent: step.Idempotent,
			Install:    &InstallConfig{Bundle: extractName, Command: b.Install},
		},
		{
			Name:   step.Name + "/cleanup",
			Type:   StepTypeRemove,
			Remove: &RemoveConfig{Of: []string{fetchName, extractName}},
		},
	}
}
