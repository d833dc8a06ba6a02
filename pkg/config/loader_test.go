package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()

	store, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	cfg := store.Current()
	assert.Equal(t, 900*time.Second, cfg.Runtime.IdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Runtime.TurnTimeout)
	assert.Equal(t, "#INT#", cfg.Runtime.InteractiveToken)
	assert.Equal(t, 4, cfg.ParameterNormalization.MinSubstringLength)
}

func TestInitialize_MergesUserFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
runtime:
  idle_timeout: 5m
intents:
  - name: billing
    description: billing questions
    label: Billing
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "morgana.yaml"), []byte(yamlContent), 0o644))

	store, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	cfg := store.Current()
	assert.Equal(t, 5*time.Minute, cfg.Runtime.IdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Runtime.TurnTimeout, "untouched fields keep defaults")
	require.Len(t, cfg.Intents, 1)
	assert.Equal(t, "billing", cfg.Intents[0].Name)
}

func TestInitialize_RejectsReservedIntentName(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
intents:
  - name: other
    description: not allowed
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "morgana.yaml"), []byte(yamlContent), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestInitialize_HotReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "morgana.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profanity_terms: [\"foo\"]\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := Initialize(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, store.Current().ProfanityTerms)

	require.NoError(t, os.WriteFile(path, []byte("profanity_terms: [\"foo\", \"bar\"]\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(store.Current().ProfanityTerms) == 2
	}, 2*time.Second, 20*time.Millisecond, "expected hot reload to pick up new profanity term")
}
