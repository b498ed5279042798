package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theus-run/theus/pkg/audit"
)

const sampleRecipe = `
strict_guards: true
strict_cas: false
pool_size: 4
max_loops: 100
audit_recipe:
  level: B
  threshold_max: 3
  threshold_min: 1
  reset_on_success: true
namespaces:
  - name: domain
    allow_read: true
    allow_update: true
    allow_append: true
    allow_delete: false
processes:
  withdraw:
    inputs:
      - field: amount
        min: 0
        level: A
        threshold_max: 1
    outputs:
      - field: domain.balance
        min: 0
`

func writeRecipe(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesRecipeFile(t *testing.T) {
	path := writeRecipe(t, sampleRecipe)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.StrictGuards)
	assert.False(t, cfg.StrictCAS)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 100, cfg.MaxLoops)
	assert.Equal(t, audit.Block, cfg.AuditRecipe.Level)
	assert.Equal(t, 3, cfg.AuditRecipe.ThresholdMax)

	require.Len(t, cfg.Namespaces, 1)
	assert.Equal(t, "domain", cfg.Namespaces[0].Name)
	assert.True(t, cfg.Namespaces[0].Policy.AllowUpdate)
	assert.False(t, cfg.Namespaces[0].Policy.AllowDelete)

	require.Contains(t, cfg.Processes, "withdraw")
	rules := cfg.Processes["withdraw"]
	require.Len(t, rules.Inputs, 1)
	require.NotNil(t, rules.Inputs[0].Level)
	assert.Equal(t, audit.Abort, *rules.Inputs[0].Level)
	require.Len(t, rules.Outputs, 1)
	assert.Equal(t, "domain.balance", rules.Outputs[0].Field)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeRecipe(t, sampleRecipe)

	t.Setenv("THEUS_POOL_SIZE", "9")
	t.Setenv("THEUS_MAX_LOOPS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.PoolSize)
	assert.Equal(t, 7, cfg.MaxLoops)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultUsesSingleWorkerPool(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.PoolSize)
	assert.Equal(t, audit.DefaultRecipe(), cfg.AuditRecipe)
}
