// Package config loads and hot-reloads Morgana's YAML configuration,
// following the teacher's top-level-struct-plus-Default*Config() convention
// (pkg/config/loader.go, pkg/config/queue.go).
package config

import "time"

// IntentConfig describes one entry in the static intent registry (§ 6.4
// intents[]).
type IntentConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Label        string `yaml:"label"`
	DefaultValue string `yaml:"default_value,omitempty"`
}

// PromptSet holds the named prompt templates (§ 6.4 prompts{}): the
// Morgana/Classifier/Guard/Presentation system prompts, plus one per intent
// keyed by intent name.
type PromptSet struct {
	Morgana      string            `yaml:"morgana"`
	Classifier   string            `yaml:"classifier"`
	Guard        string            `yaml:"guard"`
	Presentation string            `yaml:"presentation"`
	PerIntent    map[string]string `yaml:"per_intent"`
}

// PolicyConfig is one entry of globalPolicies[], ordered by Priority within
// Type (§ 6.4).
type PolicyConfig struct {
	Type     string `yaml:"type"`
	Priority int    `yaml:"priority"`
}

// MCPServerConfig describes one configured remote MCP server (§ 6.4
// mcpServers[]).
type MCPServerConfig struct {
	Name    string `yaml:"name"`
	URI     string `yaml:"uri"`
	Enabled bool   `yaml:"enabled"`
}

// ParameterNormalizationConfig tunes the ToolAdapter's fuzzy parameter-name
// matching cascade (§ 4.7, § 6.4).
type ParameterNormalizationConfig struct {
	MinSubstringLength int     `yaml:"min_substring_length"`
	SimilarityRatio    float64 `yaml:"similarity_ratio"`
}

// RuntimeConfig holds the scalar runtime tunables enumerated in § 6.4 that
// are not themselves a registry (intents/prompts/policies/servers).
type RuntimeConfig struct {
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	TurnTimeout         time.Duration `yaml:"turn_timeout"`
	MaxReconnectBackoff time.Duration `yaml:"max_reconnect_backoff"`
	InteractiveToken    string        `yaml:"interactive_token"`
}

// DefaultRuntimeConfig returns the built-in runtime defaults, mirroring
// DefaultQueueConfig's shape in the teacher repo.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		IdleTimeout:         900 * time.Second,
		TurnTimeout:         60 * time.Second,
		MaxReconnectBackoff: 30 * time.Second,
		InteractiveToken:    "#INT#",
	}
}

// DefaultParameterNormalizationConfig returns the tuned-for-LLM-noise
// defaults called out in SPEC_FULL.md § 9.
func DefaultParameterNormalizationConfig() *ParameterNormalizationConfig {
	return &ParameterNormalizationConfig{
		MinSubstringLength: 4,
		SimilarityRatio:    0.3,
	}
}

// MorganaYAMLConfig is the complete morgana.yaml file structure, grounded on
// the teacher's TarsyYAMLConfig top-level-struct shape.
type MorganaYAMLConfig struct {
	Runtime                *RuntimeConfig                `yaml:"runtime"`
	Intents                []IntentConfig                `yaml:"intents"`
	Prompts                *PromptSet                     `yaml:"prompts"`
	GlobalPolicies         []PolicyConfig                 `yaml:"global_policies"`
	MCPServers             []MCPServerConfig              `yaml:"mcp_servers"`
	ParameterNormalization *ParameterNormalizationConfig  `yaml:"parameter_normalization"`
	ProfanityTerms         []string                       `yaml:"profanity_terms"`
}

// DefaultMorganaYAMLConfig returns a minimally valid configuration; load
// merges a user-supplied file over this with dario.cat/mergo so every field
// has a sane value even in a mostly-empty morgana.yaml.
func DefaultMorganaYAMLConfig() *MorganaYAMLConfig {
	return &MorganaYAMLConfig{
		Runtime:                DefaultRuntimeConfig(),
		Intents:                []IntentConfig{},
		Prompts:                &PromptSet{PerIntent: map[string]string{}},
		GlobalPolicies:         []PolicyConfig{},
		MCPServers:             []MCPServerConfig{},
		ParameterNormalization: DefaultParameterNormalizationConfig(),
		ProfanityTerms:         []string{},
	}
}
