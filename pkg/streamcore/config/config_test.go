package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/streamcore/pkg/streamcore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilMap(t *testing.T) {
	cfg := config.New(nil)
	assert.NotNil(t, cfg.Raw())
	assert.False(t, cfg.Has("anything"))
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		key  string
		want string
	}{
		{"flat key", map[string]any{"name": "alice"}, "name", "alice"},
		{"missing", map[string]any{}, "name", "default"},
		{"wrong type", map[string]any{"name": 12}, "name", "default"},
		{"dotted path", map[string]any{"a": map[string]any{"b": "deep"}}, "a.b", "deep"},
		{"dotted through scalar", map[string]any{"a": "flat"}, "a.b", "default"},
		{"literal dotted key wins", map[string]any{"a.b": "literal", "a": map[string]any{"b": "deep"}}, "a.b", "literal"},
		{"map any any", map[string]any{"a": map[any]any{"b": "legacy"}}, "a.b", "legacy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String(tt.key, "default"))
		})
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"whole float", 5.0, 5},
		{"fractional float", 5.5, -1},
		{"string", "5", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"n": tt.val})
			assert.Equal(t, tt.want, cfg.Int("n", -1))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "1m30s", 90 * time.Second},
		{"bad string", "soon", time.Second},
		{"int seconds", 2, 2 * time.Second},
		{"float seconds", 0.5, 500 * time.Millisecond},
		{"duration", 3 * time.Millisecond, 3 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"d": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("d", time.Second))
		})
	}
}

func TestStringMap(t *testing.T) {
	cfg := config.New(map[string]any{
		"annotations": map[string]any{"NoLock": true, "Name": "orders"},
	})
	assert.Equal(t, map[string]string{"NoLock": "true", "Name": "orders"}, cfg.StringMap("annotations", nil))
	assert.Nil(t, cfg.StringMap("missing", nil))
}

func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{
		"engine": map[string]any{"prioritized": true},
	})
	assert.True(t, cfg.Sub("engine").Bool("prioritized", false))
	assert.False(t, cfg.Sub("missing").Has("prioritized"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("engine:\n  prioritized: true\n"), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.True(t, cfg.Bool("engine.prioritized", false))

	jsonPath := filepath.Join(dir, "engine.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"engine":{"metrics":true}}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Bool("engine.metrics", false))

	_, err = config.FromFile(filepath.Join(dir, "engine.toml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "engine.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("x"), 0o600))
	_, err = config.FromFile(badPath)
	assert.ErrorContains(t, err, "unsupported config file extension")
}

func TestFromYAML_Invalid(t *testing.T) {
	_, err := config.FromYAML([]byte("engine: [unclosed"))
	assert.Error(t, err)
}

func TestEngineFrom(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
engine:
  prioritized: true
  locking:
    disabled: false
    statelessNoLock: true
  resolution:
    ttl: 5m
  metrics: true
  snapshots: ":memory:"
`))
	require.NoError(t, err)

	e, err := config.EngineFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.Engine{
		Prioritized:     true,
		StatelessNoLock: true,
		ResolutionTTL:   5 * time.Minute,
		MetricsEnabled:  true,
		SnapshotPath:    ":memory:",
	}, e)
}

func TestEngineFrom_Defaults(t *testing.T) {
	e, err := config.EngineFrom(config.New(nil))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngine(), e)
}

func TestEngineFrom_NegativeTTL(t *testing.T) {
	cfg := config.New(map[string]any{
		"engine": map[string]any{"resolution": map[string]any{"ttl": "-1s"}},
	})
	_, err := config.EngineFrom(cfg)
	assert.Error(t, err)
}
