//go:build cgo && (linux || darwin)

package dynffi

import (
	"errors"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daios-ai/dynffi/internal/testlib"
)

// ===== helpers =====

func newTestBridge(t *testing.T, opts ...func(*Config)) *Bridge {
	t.Helper()
	cfg := Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(&cfg)
	}
	b, err := NewBridge(nil, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// tl returns the address of a function linked in from internal/testlib.
func tl(name string) Address { return Address(testlib.MustLookup(name)) }

func libcName() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

func requireKind(t *testing.T, err error, want error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, want), "want %v, got %v", want, err)
}

// ===== bridge lifecycle =====

func TestBridgeCloseReleasesEverything(t *testing.T) {
	b := newTestBridge(t)

	lib, err := b.Open(libcName())
	require.NoError(t, err)
	cb, err := b.CreateCallbackTyped(NewFunc("id", 1, func(a []Value) (Value, error) { return a[0], nil }), "int", []string{"int"})
	require.NoError(t, err)

	require.Len(t, b.Libraries(), 1)
	require.Len(t, b.Callbacks(), 1)

	require.NoError(t, b.Close())
	require.Empty(t, b.Libraries())
	require.Empty(t, b.Callbacks())
	require.True(t, lib.Closed())
	require.Nil(t, b.lookupCallback(cb.Address()))
}

func TestNewBridgeRejectsBadPolicy(t *testing.T) {
	_, err := NewBridge(nil, Config{ClosePolicy: "sometimes"})
	require.ErrorContains(t, err, "close_policy")
}

func TestDroppedErrorsAreBounded(t *testing.T) {
	b := newTestBridge(t, func(c *Config) { c.DroppedErrorLimit = 3 })
	fails := NewFunc("fails", 2, func([]Value) (Value, error) { return Null, errors.New("boom") })
	cb, err := b.CreateCallbackTyped(fails, "int", []string{"int", "int"})
	require.NoError(t, err)

	v, err := b.CallTyped(tl("apply_n"), "int", []string{"callback", "int"}, Addr(cb.Address()), Int(5))
	require.NoError(t, err)
	require.Equal(t, Int(0), v)
	require.EqualValues(t, 5, cb.Calls())

	dropped := b.DroppedErrors()
	require.Len(t, dropped, 3)
	for _, d := range dropped {
		require.Equal(t, cb.Address(), d.Callback)
		require.EqualError(t, d.Err, "boom")
	}
}
