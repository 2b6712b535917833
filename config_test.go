package dynffi

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv(PathEnv, "")
	c := DefaultConfig()
	require.Equal(t, CloseOwned, c.ClosePolicy)
	require.EqualValues(t, DefaultMaxAlloc, c.MaxAlloc)
	require.Equal(t, DefaultDroppedErrorLimit, c.DroppedErrorLimit)
	require.Equal(t, "info", c.LogLevel)
	require.NotNil(t, c.Logger)
	require.Empty(t, c.SearchPaths)
}

func TestParseConfig(t *testing.T) {
	t.Setenv(PathEnv, "/env/a"+string(filepath.ListSeparator)+"/opt/lib")
	c, err := ParseConfig([]byte(`
search_paths: [/opt/lib, ./vendor]
close_policy: all
max_alloc: 4096
dropped_error_limit: 8
log_level: debug
`))
	require.NoError(t, err)
	require.Equal(t, []string{"/opt/lib", "./vendor", "/env/a"}, c.SearchPaths)
	require.Equal(t, CloseAll, c.ClosePolicy)
	require.EqualValues(t, 4096, c.MaxAlloc)
	require.Equal(t, 8, c.DroppedErrorLimit)

	lvl, err := ParseLevel(c.LogLevel)
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("close_policy: never\n"))
	require.ErrorContains(t, err, "close_policy")

	_, err = ParseConfig([]byte("log_level: chatty\n"))
	require.ErrorContains(t, err, "log_level")

	_, err = ParseConfig([]byte("search_paths: {a: b}\n"))
	require.ErrorContains(t, err, "config")
}

func TestLoadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "dynffi.yaml")
	require.NoError(t, os.WriteFile(p, []byte("max_alloc: 10\n"), 0o644))
	c, err := LoadConfig(p)
	require.NoError(t, err)
	require.EqualValues(t, 10, c.MaxAlloc)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
