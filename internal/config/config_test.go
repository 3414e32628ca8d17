package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/config"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Output.Color)
	assert.True(t, cfg.Output.Unicode)
	assert.Equal(t, "2006-01-02", cfg.Output.DateFormat)
	assert.Equal(t, 14, cfg.Score.HorizonDays)
	assert.False(t, cfg.Complete.RequireChildrenDone)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	data := []byte("output:\n  color: false\ncomplete:\n  require_children_done: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskline.yml"), data, 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.Output.Color)
	assert.True(t, cfg.Output.Unicode, "untouched keys keep defaults")
	assert.True(t, cfg.Complete.RequireChildrenDone)
	assert.Equal(t, 1.0, cfg.Score.PriorityWeight)
}

func TestFromYAMLValidation(t *testing.T) {
	_, err := config.FromYAML([]byte("score:\n  horizon_days: 0\n"))
	require.Error(t, err)

	_, err = config.FromYAML([]byte("score:\n  priority_weight: -1\n"))
	require.Error(t, err)

	_, err = config.FromYAML([]byte("output: [not, a, map]\n"))
	require.Error(t, err)
}
