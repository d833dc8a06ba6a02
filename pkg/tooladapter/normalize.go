// Package tooladapter implements ToolAdapter (SPEC_FULL.md § 4.7): the
// uniform callable wrapper around local tools and remote MCP tools, centered
// on the five-tier parameter-name normalization cascade.
package tooladapter

import (
	"fmt"
	"strings"
)

// NormalizationConfig tunes the substring-match tier of the cascade.
type NormalizationConfig struct {
	MinSubstringLength int
	SimilarityRatio    float64
}

// DefaultNormalizationConfig matches SPEC_FULL.md § 6.4's defaults.
func DefaultNormalizationConfig() NormalizationConfig {
	return NormalizationConfig{MinSubstringLength: 4, SimilarityRatio: 0.3}
}

// ErrMissingParameter is returned when an expected parameter has zero
// candidate matches among the supplied argument keys.
type ErrMissingParameter struct {
	Expected string
}

func (e *ErrMissingParameter) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Expected)
}

// ErrAmbiguousParameter is returned when more than one supplied key is an
// equally plausible substring match for an expected parameter name.
type ErrAmbiguousParameter struct {
	Expected   string
	Candidates []string
}

func (e *ErrAmbiguousParameter) Error() string {
	return fmt.Sprintf("ambiguous match for parameter %q: candidates %v", e.Expected, e.Candidates)
}

// NormalizeParameters maps a tool's declared expected parameter names onto
// the raw argument map an LLM (or free-text parser) produced, applying the
// five-tier precedence cascade from § 4.7:
//
//  1. exact match
//  2. case-insensitive match
//  3. snake_case <-> camelCase transform match
//  4. underscore-stripped case-insensitive match
//  5. single significant substring match (candidate key length >=
//     MinSubstringLength and matched/expected ratio >= SimilarityRatio);
//     zero candidates -> ErrMissingParameter (for required params only),
//     more than one equally-ranked candidate -> ErrAmbiguousParameter.
//
// The result maps each expected name to the raw key that satisfied it. Raw
// keys with no expected counterpart are dropped (an LLM hallucinating an
// extra argument is not an error — it's simply unused).
//
// NormalizeParameters is idempotent: calling it again on a raw map already
// keyed by the expected names is a no-op (every expected name exact-matches
// itself at tier 1), satisfying the round-trip law in § 8.
func NormalizeParameters(expected []string, raw map[string]any, required map[string]bool, cfg NormalizationConfig) (map[string]any, error) {
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}

	result := make(map[string]any, len(expected))
	for _, name := range expected {
		key, err := resolveKey(name, rawKeys, cfg)
		if err != nil {
			if required[name] {
				return nil, err
			}
			continue
		}
		result[name] = raw[key]
	}
	return result, nil
}

func resolveKey(expected string, rawKeys []string, cfg NormalizationConfig) (string, error) {
	// Tier 1: exact match.
	for _, k := range rawKeys {
		if k == expected {
			return k, nil
		}
	}

	// Tier 2: case-insensitive match.
	lowerExpected := strings.ToLower(expected)
	for _, k := range rawKeys {
		if strings.ToLower(k) == lowerExpected {
			return k, nil
		}
	}

	// Tier 3: snake_case <-> camelCase transform match.
	snake := toSnakeCase(expected)
	camel := toCamelCase(expected)
	for _, k := range rawKeys {
		if k == snake || k == camel {
			return k, nil
		}
	}

	// Tier 4: underscore-stripped, case-insensitive match.
	stripped := strings.ToLower(strings.ReplaceAll(expected, "_", ""))
	for _, k := range rawKeys {
		if strings.ToLower(strings.ReplaceAll(k, "_", "")) == stripped {
			return k, nil
		}
	}

	// Tier 5: single significant substring match.
	var candidates []string
	for _, k := range rawKeys {
		if len(k) < cfg.MinSubstringLength {
			continue
		}
		if !strings.Contains(lowerExpected, strings.ToLower(k)) && !strings.Contains(strings.ToLower(k), lowerExpected) {
			continue
		}
		ratio := similarityRatio(k, expected)
		if ratio >= cfg.SimilarityRatio {
			candidates = append(candidates, k)
		}
	}

	switch len(candidates) {
	case 0:
		return "", &ErrMissingParameter{Expected: expected}
	case 1:
		return candidates[0], nil
	default:
		return "", &ErrAmbiguousParameter{Expected: expected, Candidates: candidates}
	}
}

// similarityRatio is the ratio of the shorter string's length to the longer
// string's length, used as a cheap proxy for "how much of the expected name
// does this candidate key actually cover."
func similarityRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	shorter, longer := la, lb
	if la > lb {
		shorter, longer = lb, la
	}
	return float64(shorter) / float64(longer)
}

// toSnakeCase converts "customerId" -> "customer_id". Already-snake input is
// returned unchanged.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// toCamelCase converts "customer_id" -> "customerId". Already-camel input is
// returned unchanged.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
