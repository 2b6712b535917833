//go:build cgo && (linux || darwin)

package plan

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daios-ai/dynffi"
	"github.com/daios-ai/dynffi/internal/testlib"
)

func libc() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

const nativePlan = `name: libc tour
steps:
  - op: open
    args: [LIBC]
    bind: libc
  - op: symbol
    args: [$libc, abs]
    bind: abs
  - op: call
    args: [$abs, int, [int], -42]
    expect: 42
  - op: call
    args: [$abs, int, [int]]
    expectError: ArityError
  - op: symbol
    args: [$libc, no_such_symbol_here]
    expectError: SymbolNotFound

  # qsort with a comparator that reads through the bridge
  - op: symbol
    args: [$libc, qsort]
    bind: qsort
  - op: createCallback
    args: [{fn: compare, type: int32}, int, [pointer, pointer]]
    bind: cmp
  - op: malloc
    args: [16]
    bind: buf
  - op: writeArray
    args: [$buf, [4, -1, 3, 0], int32, 4]
  - op: call
    args: [$qsort, void, [pointer, size_t, size_t, callback], $buf, 4, 4, $cmp]
  - op: readArray
    args: [$buf, int32, 4]
    expect: [-1, 0, 3, 4]
  - op: free
    args: [$buf]

  # callbacks driven by linked-in natives
  - op: createCallback
    args: [{fn: add}, int32, [int32, int32]]
    bind: add
  - op: call
    args: [$apply_i32, int32, [callback, int32, int32], $add, 3, 4]
    expect: 7
  - op: createCallback
    args: [{fn: fail, message: nope}, int32, [int32, int32]]
    bind: bad
  - op: call
    args: [$apply_i32, int32, [callback, int32, int32], $bad, 3, 4]
    expect: 0
  - op: releaseCallback
    args: [$bad]
  - op: call
    args: [$apply_i32, int32, [callback, int32, int32], $bad, 3, 4]
    expectError: InvalidArgumentValue

  - op: close
    args: [$libc]
  - op: close
    args: [$libc]
    expectError: InvalidArgumentValue
`

func TestNativePlan(t *testing.T) {
	r, _ := newRunner(t)
	r.Set("apply_i32", dynffi.Addr(dynffi.Address(testlib.MustLookup("apply_i32"))))

	p, err := Parse([]byte(strings.Replace(nativePlan, "LIBC", libc(), 1)))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, len(p.Steps), res.Steps)
	require.Len(t, r.b.DroppedErrors(), 1)
	require.Empty(t, r.b.Libraries())
}

func TestNativeLines(t *testing.T) {
	r, _ := newRunner(t)
	r.Set("id", dynffi.Addr(dynffi.Address(testlib.MustLookup("id_string"))))

	for _, line := range []string{
		`u = createCallback {fn: upper}, string, [string]`,
		`s = call $id, string, [string], "hello"`,
	} {
		_, err := r.Step(mustLine(t, line))
		require.NoError(t, err, line)
	}
	s, _ := r.Get("s")
	require.Equal(t, dynffi.Str("hello"), s)

	r.Set("apply_str", dynffi.Addr(dynffi.Address(testlib.MustLookup("apply_str"))))
	v, err := r.Step(mustLine(t, `call $apply_str, string, [callback, string], $u, "shout"`))
	require.NoError(t, err)
	require.Equal(t, dynffi.Str("SHOUT"), v)
}
