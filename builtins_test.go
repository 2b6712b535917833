//go:build cgo && (linux || darwin)

package dynffi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, b *Bridge, name string, args ...Value) (Value, error) {
	t.Helper()
	fn, ok := b.Exports()[name]
	require.Truef(t, ok, "no export %q", name)
	return FuncEngine{}.Apply(fn, args)
}

func mustApply(t *testing.T, b *Bridge, name string, args ...Value) Value {
	t.Helper()
	v, err := apply(t, b, name, args...)
	require.NoError(t, err)
	return v
}

func strs(xs ...string) Value {
	out := make([]Value, len(xs))
	for i, x := range xs {
		out[i] = Str(x)
	}
	return Arr(out)
}

func TestExportNames(t *testing.T) {
	b := newTestBridge(t)
	require.Equal(t, []string{
		"call", "close", "createCallback", "free", "malloc", "open",
		"readArray", "readString", "releaseCallback", "sizeof", "symbol", "writeArray",
	}, b.ExportNames())
}

func TestExportsEndToEnd(t *testing.T) {
	b := newTestBridge(t)

	h := mustApply(t, b, "open", Str(libcName()))
	require.Equal(t, VTHandle, h.Tag)

	abs := mustApply(t, b, "symbol", h, Str("abs"))
	require.Equal(t, VTAddr, abs.Tag)
	require.Equal(t, Int(5), mustApply(t, b, "call", abs, Str("int"), strs("int"), Int(-5)))

	mem := mustApply(t, b, "malloc", Int(12))
	mustApply(t, b, "writeArray", mem, Arr([]Value{Int(10), Int(20), Int(30)}), Str("int32"), Int(3))
	require.Equal(t, Arr([]Value{Int(10), Int(20), Int(30)}), mustApply(t, b, "readArray", mem, Str("int32"), Int(3)))
	require.Equal(t, Int(60), mustApply(t, b, "call", Addr(tl("sum_i32")), Str("int32"), strs("pointer", "int32"), mem, Int(3)))
	require.Equal(t, Null, mustApply(t, b, "free", mem))

	add := NewFunc("add", 2, func(a []Value) (Value, error) {
		x, _ := a[0].AsInt()
		y, _ := a[1].AsInt()
		return Int(x + y), nil
	})
	cb := mustApply(t, b, "createCallback", add, Str("int32"), strs("int32", "int32"))
	require.Equal(t, VTAddr, cb.Tag)
	require.Equal(t, Int(9), mustApply(t, b, "call", Addr(tl("apply_i32")), Str("int32"), strs("callback", "int32", "int32"), cb, Int(4), Int(5)))
	require.Equal(t, Null, mustApply(t, b, "releaseCallback", cb))

	require.Equal(t, Null, mustApply(t, b, "close", h))
	_, err := apply(t, b, "close", h)
	requireKind(t, err, ErrInvalidArgument)
}

func TestExportsArgumentChecks(t *testing.T) {
	b := newTestBridge(t)

	_, err := apply(t, b, "open", Int(1))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "symbol", Str("not a handle"), Str("abs"))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "call", Addr(tl("noop")), Str("void"))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "call", Addr(tl("noop")), Str("void"), Arr([]Value{Int(1)}))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "call", Addr(tl("add_i32")), Str("int32"), strs("int32", "int32"), Int(1))
	requireKind(t, err, ErrArity)

	_, err = apply(t, b, "malloc", Int(-1))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "malloc", Int(1<<32))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "writeArray", Null, Int(1), Str("int32"), Int(1))
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "createCallback", Int(1), Str("void"), strs())
	requireKind(t, err, ErrInvalidArgument)

	_, err = apply(t, b, "sizeof", Str("quad"))
	requireKind(t, err, ErrInvalidType)
	require.ErrorContains(t, err, "sizeof")

	_, err = apply(t, b, "readString")
	require.Error(t, err)
}

func TestExportsStringsAndSizes(t *testing.T) {
	b := newTestBridge(t)
	require.Equal(t, Int(4), mustApply(t, b, "sizeof", Str("int")))
	require.Equal(t, Int(int64(ptrSize)), mustApply(t, b, "sizeof", Str("pointer")))
	require.Equal(t, Int(0), mustApply(t, b, "sizeof", Str("void")))

	mem := mustApply(t, b, "malloc", Int(16))
	defer mustApply(t, b, "free", mem)
	a, _ := mem.AsAddress()
	require.NoError(t, b.WriteString(a, "abcdef"))

	require.Equal(t, Str("abcdef"), mustApply(t, b, "readString", mem))
	require.Equal(t, Str("abc"), mustApply(t, b, "readString", mem, Int(3)))
}
