package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLegacyKeys_MapsTokensAndAsanaAliases(t *testing.T) {
	raw := map[string]any{
		"tokens": map[string]any{"github": "gh-tok", "asana": "asana-tok"},
		"asana":  map[string]any{"workspaceId": "ws1", "projectId": "proj1"},
		"worktree": map[string]any{
			"basePath":    "/tmp/wt",
			"maxParallel": 5,
		},
	}
	normalized := normalizeLegacyKeys(raw)

	assert.Equal(t, "gh-tok", mustGet(t, normalized, "github", "token"))
	assert.Equal(t, "asana-tok", mustGet(t, normalized, "asana", "token"))
	assert.Equal(t, "ws1", mustGet(t, normalized, "asana", "workspaceGid"))
	assert.Equal(t, []any{"proj1"}, mustGet(t, normalized, "asana", "projectGids"))
	assert.Equal(t, "/tmp/wt", mustGet(t, normalized, "worktree", "baseDir"))
	assert.Equal(t, 5, mustGet(t, normalized, "worktree", "maxConcurrent"))
}

func TestNormalizeLegacyKeys_Idempotent(t *testing.T) {
	raw := map[string]any{
		"tokens": map[string]any{"github": "gh-tok"},
	}
	once := normalizeLegacyKeys(raw)
	twice := normalizeLegacyKeys(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeLegacyKeys_ChecksTimeoutFansOut(t *testing.T) {
	raw := map[string]any{"checks": map[string]any{"timeout": 30}}
	normalized := normalizeLegacyKeys(raw)
	assert.Equal(t, 30, mustGet(t, normalized, "checks", "testTimeout"))
	assert.Equal(t, 30, mustGet(t, normalized, "checks", "typeCheckTimeout"))
	assert.Equal(t, 30, mustGet(t, normalized, "checks", "lintTimeout"))
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.GitHub.DefaultBranch)
	assert.Equal(t, 3, cfg.Worktree.MaxConcurrent)
}

func TestLoad_RejectsOutOfRangeConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auto-fix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worktree:\n  maxConcurrent: 20\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestFind_WalksUpToParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".auto-fix.yaml"), []byte("{}"), 0644))

	found := Find(sub)
	assert.Equal(t, filepath.Join(root, ".auto-fix.yaml"), found)
}

func mustGet(t *testing.T, raw map[string]any, path ...string) any {
	t.Helper()
	cur := any(raw)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		require.True(t, ok, "expected map at %v", path)
		cur, ok = m[key]
		require.True(t, ok, "missing key %v", path)
	}
	return cur
}
