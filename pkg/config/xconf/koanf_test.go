package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlData = `
probe:
  target: localhost:50051
  service: grpc.health.v1.Health
retry:
  maximum_attempts: 5
  do_not_retry: [UNAVAILABLE]
`

type probeConfig struct {
	Target  string `koanf:"target"`
	Service string `koanf:"service"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	path := writeFile(t, "config.yaml", yamlData)
	cfg, err := New(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, FormatYAML, cfg.Format())
	assert.Equal(t, 5, cfg.Client().Int("retry.maximum_attempts"))

	var pc probeConfig
	require.NoError(t, cfg.Unmarshal("probe", &pc))
	assert.Equal(t, "localhost:50051", pc.Target)
	assert.Equal(t, "grpc.health.v1.Health", pc.Service)
}

func TestNew_Errors(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = New("config.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = New(writeFile(t, "bad.json", "{"))
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{"probe":{"target":"dns:///svc:443"}}`), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path())
	assert.Equal(t, "dns:///svc:443", cfg.Client().String("probe.target"))
	assert.ErrorIs(t, cfg.Reload(), ErrNotReloadable)

	empty, err := NewFromBytes(nil, FormatYAML)
	require.NoError(t, err)
	var pc probeConfig
	require.NoError(t, empty.Unmarshal("", &pc))
	assert.Empty(t, pc.Target)

	_, err = NewFromBytes([]byte("a: 1"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOptions(t *testing.T) {
	cfg, err := NewFromBytes([]byte("probe:\n  addr: x\n"), FormatYAML, WithDelim("/"), WithTag("json"), nil)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Client().String("probe/addr"))

	var out struct {
		Addr string `json:"addr"`
	}
	require.NoError(t, cfg.Unmarshal("probe", &out))
	assert.Equal(t, "x", out.Addr)
}

func TestUnmarshal_Error(t *testing.T) {
	cfg, err := NewFromBytes([]byte("probe:\n  target: {a: 1}\n"), FormatYAML)
	require.NoError(t, err)
	var pc probeConfig
	assert.ErrorIs(t, cfg.Unmarshal("probe", &pc), ErrUnmarshalFailed)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "config.yml", "retry:\n  maximum_attempts: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("retry:\n  maximum_attempts: 7\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 7, cfg.Client().Int("retry.maximum_attempts"))

	// 解析失败保留旧配置
	require.NoError(t, os.WriteFile(path, []byte("retry: [\n"), 0o600))
	assert.ErrorIs(t, cfg.Reload(), ErrParseFailed)
	assert.Equal(t, 7, cfg.Client().Int("retry.maximum_attempts"))
}

func TestReload_Concurrent(t *testing.T) {
	path := writeFile(t, "config.yaml", yamlData)
	cfg, err := New(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, cfg.Reload())
		}()
		go func() {
			defer wg.Done()
			var pc probeConfig
			assert.NoError(t, cfg.Unmarshal("probe", &pc))
		}()
	}
	wg.Wait()
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.json": FormatJSON,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatOf("a")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
