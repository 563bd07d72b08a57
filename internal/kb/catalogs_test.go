package kb_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/kb"
)

func writeCatalog(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testKBConfig(t *testing.T) config.KnowledgeBaseConfig {
	t.Helper()
	dir := t.TempDir()
	return config.KnowledgeBaseConfig{
		SchemaPath:   writeCatalog(t, dir, "schema_kb.json", testFacts()),
		JoinPath:     writeCatalog(t, dir, "join_kb.json", testJoins()),
		MetricPath:   writeCatalog(t, dir, "metric_kb.json", testMetrics()),
		TemplatePath: writeCatalog(t, dir, "template_kb.json", testTemplates()),
	}
}

func TestLoad(t *testing.T) {
	cfg := testKBConfig(t)
	idx, err := kb.Load(cfg)
	require.NoError(t, err)

	fact, ok := idx.Fact("fact_power.stat_time")
	require.True(t, ok)
	assert.Equal(t, "datetime", fact.Type)

	_, ok = idx.MetricDefinition("line_loss_rate")
	assert.True(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := testKBConfig(t)
	cfg.MetricPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := kb.Load(cfg)
	require.Error(t, err)
	var kbErr *kb.KnowledgeBaseError
	require.ErrorAs(t, err, &kbErr)
	assert.Equal(t, "metric", kbErr.Catalog)
}

func TestLoad_MalformedJSON(t *testing.T) {
	cfg := testKBConfig(t)
	require.NoError(t, os.WriteFile(cfg.SchemaPath, []byte("{not json"), 0o644))

	_, err := kb.Load(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestProviderReloadKeepsSnapshotOnFailure(t *testing.T) {
	kbCfg := testKBConfig(t)
	cfg := &config.Config{KnowledgeBase: kbCfg}

	provider, err := kb.NewProvider(cfg)
	require.NoError(t, err)
	before := provider.Current()

	// Corrupt one catalog: reload must fail and the old snapshot must survive.
	require.NoError(t, os.WriteFile(kbCfg.MetricPath, []byte("[broken"), 0o644))
	require.Error(t, provider.Reload())
	assert.Same(t, before, provider.Current())
}

func TestProviderReloadSwapsSnapshot(t *testing.T) {
	kbCfg := testKBConfig(t)
	cfg := &config.Config{KnowledgeBase: kbCfg}

	provider, err := kb.NewProvider(cfg)
	require.NoError(t, err)
	before := provider.Current()

	require.NoError(t, provider.Reload())
	assert.NotSame(t, before, provider.Current())
}
