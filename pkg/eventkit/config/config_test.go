package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventkit/pkg/eventkit/config"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.NotNil(t, cfg.Raw())
		})
	}
}

// TestString verifies string extraction with defaults.
func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"name": "alice"}, "name", "default", "alice"},
		{"key missing", map[string]any{"other": "value"}, "name", "default", "default"},
		{"empty string", map[string]any{"name": ""}, "name", "default", ""},
		{"wrong type int", map[string]any{"name": 123}, "name", "default", "default"},
		{"wrong type bool", map[string]any{"name": true}, "name", "default", "default"},
		{"nil map", nil, "name", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.String(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestBool verifies boolean extraction with defaults.
func TestBool(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal bool
		want       bool
	}{
		{"true value", map[string]any{"enabled": true}, "enabled", false, true},
		{"false value", map[string]any{"enabled": false}, "enabled", true, false},
		{"key missing default false", map[string]any{"other": true}, "enabled", false, false},
		{"key missing default true", map[string]any{"other": false}, "enabled", true, true},
		{"wrong type string", map[string]any{"enabled": "true"}, "enabled", false, false},
		{"wrong type int", map[string]any{"enabled": 1}, "enabled", false, false},
		{"nil map", nil, "enabled", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.Bool(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestInt verifies integer extraction with type coercion.
func TestInt(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal int
		want       int
	}{
		{"int value", map[string]any{"count": 42}, "count", 0, 42},
		{"int64 value", map[string]any{"count": int64(100)}, "count", 0, 100},
		{"float64 whole", map[string]any{"count": 50.0}, "count", 0, 50},
		{"float64 fractional", map[string]any{"count": 50.5}, "count", 99, 99},
		{"key missing", map[string]any{"other": 1}, "count", 99, 99},
		{"wrong type string", map[string]any{"count": "42"}, "count", 99, 99},
		{"negative int", map[string]any{"count": -5}, "count", 0, -5},
		{"zero", map[string]any{"count": 0}, "count", 99, 0},
		{"nil map", nil, "count", 99, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.Int(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal time.Duration
		want       time.Duration
	}{
		{
			"string duration",
			map[string]any{"timeout": "30s"},
			"timeout",
			10 * time.Second,
			30 * time.Second,
		},
		{
			"string complex duration",
			map[string]any{"timeout": "1h30m"},
			"timeout",
			10 * time.Second,
			90 * time.Minute,
		},
		{
			"int seconds",
			map[string]any{"timeout": 60},
			"timeout",
			10 * time.Second,
			60 * time.Second,
		},
		{
			"int64 seconds",
			map[string]any{"timeout": int64(45)},
			"timeout",
			10 * time.Second,
			45 * time.Second,
		},
		{
			"float64 seconds",
			map[string]any{"timeout": 30.5},
			"timeout",
			10 * time.Second,
			30*time.Second + 500*time.Millisecond,
		},
		{
			"time.Duration directly",
			map[string]any{"timeout": 5 * time.Minute},
			"timeout",
			10 * time.Second,
			5 * time.Minute,
		},
		{
			"key missing",
			map[string]any{"other": "value"},
			"timeout",
			10 * time.Second,
			10 * time.Second,
		},
		{
			"invalid string",
			map[string]any{"timeout": "invalid"},
			"timeout",
			10 * time.Second,
			10 * time.Second,
		},
		{
			"nil map",
			nil,
			"timeout",
			10 * time.Second,
			10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			got := cfg.Duration(tt.key, tt.defaultVal)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSub verifies nested section extraction.
func TestSub(t *testing.T) {
	tests := []struct {
		name  string
		data  map[string]any
		key   string
		check func(*testing.T, config.Config)
	}{
		{
			"nested map",
			map[string]any{"analytics": map[string]any{"batch_size": 7}},
			"analytics",
			func(t *testing.T, sub config.Config) {
				assert.Equal(t, 7, sub.Int("batch_size", 0))
			},
		},
		{
			"key missing",
			map[string]any{"other": 1},
			"analytics",
			func(t *testing.T, sub config.Config) {
				assert.Equal(t, 99, sub.Int("batch_size", 99))
			},
		},
		{
			"wrong type",
			map[string]any{"analytics": "not-a-map"},
			"analytics",
			func(t *testing.T, sub config.Config) {
				assert.Equal(t, 99, sub.Int("batch_size", 99))
			},
		},
		{
			"nil map",
			nil,
			"analytics",
			func(t *testing.T, sub config.Config) {
				assert.NotNil(t, sub.Raw())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			tt.check(t, cfg.Sub(tt.key))
		})
	}
}

// TestFromYAML verifies YAML parsing.
func TestFromYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(*testing.T, config.Config)
	}{
		{
			"simple values",
			`name: alice
count: 42
enabled: true`,
			false,
			func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "alice", cfg.String("name", ""))
				assert.Equal(t, 42, cfg.Int("count", 0))
				assert.True(t, cfg.Bool("enabled", false))
			},
		},
		{
			"nested structure",
			`analytics:
  batch_size: 25
  flush_interval: 10s`,
			false,
			func(t *testing.T, cfg config.Config) {
				a := cfg.Sub("analytics")
				assert.Equal(t, 25, a.Int("batch_size", 0))
				assert.Equal(t, 10*time.Second, a.Duration("flush_interval", 0))
			},
		},
		{
			"empty yaml",
			``,
			false,
			func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "fallback", cfg.String("anything", "fallback"))
			},
		},
		{
			"invalid yaml",
			`invalid: yaml: content:`,
			true,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromYAML([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// TestFromJSON verifies JSON parsing.
func TestFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
		check   func(*testing.T, config.Config)
	}{
		{
			"simple values",
			`{"name": "bob", "count": 100, "enabled": false}`,
			false,
			func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "bob", cfg.String("name", ""))
				// JSON unmarshals numbers as float64
				assert.Equal(t, 100, cfg.Int("count", 0))
				assert.False(t, cfg.Bool("enabled", true))
			},
		},
		{
			"nested structure",
			`{"analytics": {"batch_size": 8}}`,
			false,
			func(t *testing.T, cfg config.Config) {
				assert.Equal(t, 8, cfg.Sub("analytics").Int("batch_size", 0))
			},
		},
		{
			"empty json",
			`{}`,
			false,
			func(t *testing.T, cfg config.Config) {
				assert.Equal(t, 99, cfg.Int("anything", 99))
			},
		},
		{
			"invalid json",
			`{invalid json}`,
			true,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromJSON([]byte(tt.json))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// TestFromFile verifies file loading with extension detection.
func TestFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: fromyaml\nvalue: 123"), 0o644))

	ymlPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(ymlPath, []byte("name: fromyml\nvalue: 456"), 0o644))

	jsonPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "fromjson", "value": 789}`), 0o644))

	txtPath := filepath.Join(tmpDir, "config.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("content"), 0o644))

	tests := []struct {
		name      string
		path      string
		wantErr   bool
		wantName  string
		wantValue int
	}{
		{"yaml extension", yamlPath, false, "fromyaml", 123},
		{"yml extension", ymlPath, false, "fromyml", 456},
		{"json extension", jsonPath, false, "fromjson", 789},
		{"unsupported extension", txtPath, true, "", 0},
		{"missing file", filepath.Join(tmpDir, "nope.yaml"), true, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromFile(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cfg.String("name", ""))
			assert.Equal(t, tt.wantValue, cfg.Int("value", 0))
		})
	}
}
