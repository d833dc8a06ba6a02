package config

import (
	"fmt"
	"net/url"
)

// Validate performs fail-fast validation of a loaded configuration, mirroring
// the teacher's Validator.ValidateAll ordering convention: cheapest/most
// foundational sections first.
func Validate(cfg *MorganaYAMLConfig) error {
	if err := validateRuntime(cfg.Runtime); err != nil {
		return fmt.Errorf("runtime validation failed: %w", err)
	}
	if err := validateIntents(cfg.Intents); err != nil {
		return fmt.Errorf("intents validation failed: %w", err)
	}
	if err := validateMCPServers(cfg.MCPServers); err != nil {
		return fmt.Errorf("mcp server validation failed: %w", err)
	}
	if err := validateParameterNormalization(cfg.ParameterNormalization); err != nil {
		return fmt.Errorf("parameter normalization validation failed: %w", err)
	}
	return nil
}

func validateRuntime(r *RuntimeConfig) error {
	if r == nil {
		return fmt.Errorf("runtime section is required")
	}
	if r.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", r.IdleTimeout)
	}
	if r.TurnTimeout <= 0 {
		return fmt.Errorf("turn_timeout must be positive, got %s", r.TurnTimeout)
	}
	if r.InteractiveToken == "" {
		return fmt.Errorf("interactive_token must not be empty")
	}
	return nil
}

func validateIntents(intents []IntentConfig) error {
	seen := make(map[string]bool, len(intents))
	for _, in := range intents {
		if in.Name == "" {
			return fmt.Errorf("intent with empty name")
		}
		if in.Name == "other" {
			return fmt.Errorf("intent name %q is reserved", in.Name)
		}
		if seen[in.Name] {
			return fmt.Errorf("duplicate intent name %q", in.Name)
		}
		seen[in.Name] = true
	}
	return nil
}

func validateMCPServers(servers []MCPServerConfig) error {
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s.Name == "" {
			return fmt.Errorf("mcp server with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate mcp server name %q", s.Name)
		}
		seen[s.Name] = true
		if !s.Enabled {
			continue
		}
		if _, err := url.Parse(s.URI); err != nil {
			return fmt.Errorf("mcp server %q has invalid uri %q: %w", s.Name, s.URI, err)
		}
	}
	return nil
}

func validateParameterNormalization(p *ParameterNormalizationConfig) error {
	if p == nil {
		return fmt.Errorf("parameter_normalization section is required")
	}
	if p.MinSubstringLength < 1 {
		return fmt.Errorf("min_substring_length must be >= 1, got %d", p.MinSubstringLength)
	}
	if p.SimilarityRatio <= 0 || p.SimilarityRatio > 1 {
		return fmt.Errorf("similarity_ratio must be in (0,1], got %f", p.SimilarityRatio)
	}
	return nil
}
