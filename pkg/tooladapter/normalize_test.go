package tooladapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeParameters_ExactMatch(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"namespace"},
		map[string]any{"namespace": "default"},
		map[string]bool{"namespace": true},
		DefaultNormalizationConfig(),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"namespace": "default"}, out)
}

func TestNormalizeParameters_CaseInsensitive(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"namespace"},
		map[string]any{"Namespace": "default"},
		map[string]bool{"namespace": true},
		DefaultNormalizationConfig(),
	)
	require.NoError(t, err)
	assert.Equal(t, "default", out["namespace"])
}

func TestNormalizeParameters_SnakeCamelTransform(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"customerId"},
		map[string]any{"customer_id": "P994E"},
		map[string]bool{"customerId": true},
		DefaultNormalizationConfig(),
	)
	require.NoError(t, err)
	assert.Equal(t, "P994E", out["customerId"])
}

func TestNormalizeParameters_UnderscoreStrippedCaseInsensitive(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"user_id"},
		map[string]any{"UserID": "P994E"},
		map[string]bool{"user_id": true},
		DefaultNormalizationConfig(),
	)
	require.NoError(t, err)
	assert.Equal(t, "P994E", out["user_id"])
}

func TestNormalizeParameters_SubstringMatch(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"namespace"},
		map[string]any{"space": "default"},
		map[string]bool{"namespace": true},
		NormalizationConfig{MinSubstringLength: 4, SimilarityRatio: 0.2},
	)
	require.NoError(t, err)
	assert.Equal(t, "default", out["namespace"])
}

func TestNormalizeParameters_ZeroMatchIsMissingParameterError(t *testing.T) {
	_, err := NormalizeParameters(
		[]string{"namespace"},
		map[string]any{"totally_unrelated": "x"},
		map[string]bool{"namespace": true},
		DefaultNormalizationConfig(),
	)
	require.Error(t, err)
	var missing *ErrMissingParameter
	assert.ErrorAs(t, err, &missing)
}

func TestNormalizeParameters_AmbiguousMatchIsToolInputError(t *testing.T) {
	_, err := NormalizeParameters(
		[]string{"name"},
		map[string]any{"firstname": "a", "lastname": "b"},
		map[string]bool{"name": true},
		NormalizationConfig{MinSubstringLength: 4, SimilarityRatio: 0.2},
	)
	require.Error(t, err)
	var ambiguous *ErrAmbiguousParameter
	assert.ErrorAs(t, err, &ambiguous)
}

func TestNormalizeParameters_OptionalMissingIsNotAnError(t *testing.T) {
	out, err := NormalizeParameters(
		[]string{"namespace"},
		map[string]any{},
		map[string]bool{"namespace": false},
		DefaultNormalizationConfig(),
	)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNormalizeParameters_Idempotent(t *testing.T) {
	expected := []string{"namespace", "limit"}
	required := map[string]bool{"namespace": true, "limit": false}
	raw := map[string]any{"Namespace": "default", "limit": int64(10)}

	first, err := NormalizeParameters(expected, raw, required, DefaultNormalizationConfig())
	require.NoError(t, err)

	second, err := NormalizeParameters(expected, first, required, DefaultNormalizationConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
