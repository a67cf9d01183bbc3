package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"swap-orchestrator/core/models"
)

// promptsFile is the YAML layout of a prompt-defaults file:
//
//	prompts:
//	  add_person: ...
//	  composite: ...
//	  swap: ...
type promptsFile struct {
	Prompts struct {
		AddPerson string `yaml:"add_person"`
		Composite string `yaml:"composite"`
		Swap      string `yaml:"swap"`
	} `yaml:"prompts"`
}

// LoadPromptsFile parses prompt defaults from a YAML file. Empty fields
// are left empty; callers merge them over the built-in defaults.
func LoadPromptsFile(path string) (models.Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Prompts{}, err
	}

	var parsed promptsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return models.Prompts{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return models.Prompts{
		AddPerson: parsed.Prompts.AddPerson,
		Composite: parsed.Prompts.Composite,
		Swap:      parsed.Prompts.Swap,
	}, nil
}
