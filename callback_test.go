//go:build cgo && (linux || darwin)

package dynffi

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func addFunc() Value {
	return NewFunc("add", 2, func(a []Value) (Value, error) {
		x, _ := a[0].AsInt()
		y, _ := a[1].AsInt()
		return Int(x + y), nil
	})
}

func TestCallbackIntegerRoundTrip(t *testing.T) {
	b := newTestBridge(t)
	cb, err := b.CreateCallbackTyped(addFunc(), "int32", []string{"int32", "int32"})
	require.NoError(t, err)
	require.False(t, cb.Address().IsNull())

	got, err := b.CallTyped(tl("apply_i32"), "int32", []string{"callback", "int32", "int32"}, Addr(cb.Address()), Int(3), Int(4))
	require.NoError(t, err)
	require.Equal(t, Int(7), got)
	require.EqualValues(t, 1, cb.Calls())

	got, err = b.CallTyped(tl("apply_i32"), "int32", []string{"callback", "int32", "int32"}, Addr(cb.Address()), Int(-10), Int(4))
	require.NoError(t, err)
	require.Equal(t, Int(-6), got)
	require.EqualValues(t, 2, cb.Calls())
}

func TestCallbackInvokedManyTimes(t *testing.T) {
	b := newTestBridge(t)
	var seen [][2]int64
	fn := NewFunc("mul", 2, func(a []Value) (Value, error) {
		x, _ := a[0].AsInt()
		y, _ := a[1].AsInt()
		seen = append(seen, [2]int64{x, y})
		return Int(x * y), nil
	})
	cb, err := b.CreateCallbackTyped(fn, "int32", []string{"int32", "int32"})
	require.NoError(t, err)

	// sum of i*i for i in [0, 10)
	got, err := b.CallTyped(tl("apply_n"), "int32", []string{"callback", "int32"}, Addr(cb.Address()), Int(10))
	require.NoError(t, err)
	require.Equal(t, Int(285), got)
	require.EqualValues(t, 10, cb.Calls())
	require.Len(t, seen, 10)
	require.Equal(t, [2]int64{9, 9}, seen[9])
}

func TestCallbackNarrowResultIsWidened(t *testing.T) {
	b := newTestBridge(t)
	inc := NewFunc("inc", 1, func(a []Value) (Value, error) {
		x, _ := a[0].AsInt()
		return Int(x + 1), nil
	})
	cb, err := b.CreateCallbackTyped(inc, "uint8", []string{"uint8"})
	require.NoError(t, err)

	got, err := b.CallTyped(tl("apply_u8"), "uint8", []string{"callback", "uint8"}, Addr(cb.Address()), Int(41))
	require.NoError(t, err)
	require.Equal(t, Int(42), got)

	// 255 + 1 truncates to 0 in the uint8 result
	got, err = b.CallTyped(tl("apply_u8"), "uint8", []string{"callback", "uint8"}, Addr(cb.Address()), Int(255))
	require.NoError(t, err)
	require.Equal(t, Int(0), got)
}

func TestCallbackFloating(t *testing.T) {
	b := newTestBridge(t)
	half := NewFunc("half", 1, func(a []Value) (Value, error) {
		if a[0].Tag != VTNum {
			return Null, errors.New("want num, got " + a[0].Tag.String())
		}
		f, _ := a[0].AsFloat()
		return Num(f / 2), nil
	})
	cb, err := b.CreateCallbackTyped(half, "double", []string{"double"})
	require.NoError(t, err)

	got, err := b.CallTyped(tl("apply_double"), "double", []string{"callback", "double"}, Addr(cb.Address()), Num(5))
	require.NoError(t, err)
	require.Equal(t, Num(2.5), got)
}

func TestCallbackStringArgumentAndResult(t *testing.T) {
	b := newTestBridge(t)
	upper := NewFunc("upper", 1, func(a []Value) (Value, error) {
		if a[0].Tag != VTStr {
			return Null, errors.New("want str, got " + a[0].Tag.String())
		}
		return Str(strings.ToUpper(a[0].Data.(string))), nil
	})
	cb, err := b.CreateCallbackTyped(upper, "string", []string{"string"})
	require.NoError(t, err)

	sig := []string{"callback", "string"}
	got, err := b.CallTyped(tl("apply_str"), "string", sig, Addr(cb.Address()), Str("hello"))
	require.NoError(t, err)
	require.Equal(t, Str("HELLO"), got)

	// the previous result buffer is recycled on the next invocation
	got, err = b.CallTyped(tl("apply_str"), "string", sig, Addr(cb.Address()), Str("again"))
	require.NoError(t, err)
	require.Equal(t, Str("AGAIN"), got)
	require.Equal(t, 1, pendingStrings(cb))
}

func pendingStrings(cb *Callback) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.retStrs)
}

func TestCallbackNestedStringResults(t *testing.T) {
	b := newTestBridge(t)
	sig := []string{"callback", "string"}
	var self *Callback
	depth := 0
	wrap := NewFunc("wrap", 1, func(a []Value) (Value, error) {
		s := a[0].Data.(string)
		if depth > 0 {
			return Str(strings.ToUpper(s)), nil
		}
		depth++
		inner, err := b.CallTyped(tl("apply_str"), "string", sig, Addr(self.Address()), Str(s+"!"))
		depth--
		if err != nil {
			return Null, err
		}
		return Str("<" + inner.Data.(string) + ">"), nil
	})
	cb, err := b.CreateCallbackTyped(wrap, "string", []string{"string"})
	require.NoError(t, err)
	self = cb

	got, err := b.CallTyped(tl("apply_str"), "string", sig, Addr(cb.Address()), Str("hi"))
	require.NoError(t, err)
	require.Equal(t, Str("<HI!>"), got)
	// the inner result is kept alongside the outer one
	require.Equal(t, 2, pendingStrings(cb))

	got, err = b.CallTyped(tl("apply_str"), "string", sig, Addr(cb.Address()), Str("yo"))
	require.NoError(t, err)
	require.Equal(t, Str("<YO!>"), got)
	require.Equal(t, 2, pendingStrings(cb))
	require.EqualValues(t, 4, cb.Calls())

	require.NoError(t, b.ReleaseCallback(cb.Address()))
	require.Zero(t, pendingStrings(cb))
}

func TestCallbackVoid(t *testing.T) {
	b := newTestBridge(t)
	var got []Value
	sink := NewFunc("sink", 1, func(a []Value) (Value, error) {
		got = append(got, a[0])
		return Null, nil
	})
	cb, err := b.CreateCallbackTyped(sink, "void", []string{"int32"})
	require.NoError(t, err)

	v, err := b.CallTyped(tl("apply_void"), "void", []string{"callback", "int32"}, Addr(cb.Address()), Int(-3))
	require.NoError(t, err)
	require.Equal(t, Void, v)
	require.Equal(t, []Value{Int(-3)}, got)
}

func TestCallbackErrorsStopAtBoundary(t *testing.T) {
	b := newTestBridge(t)
	sig := []string{"callback", "int32", "int32"}

	failing := NewFunc("failing", 2, func([]Value) (Value, error) { return Null, errors.New("script failure") })
	cb, err := b.CreateCallbackTyped(failing, "int32", []string{"int32", "int32"})
	require.NoError(t, err)
	got, err := b.CallTyped(tl("apply_i32"), "int32", sig, Addr(cb.Address()), Int(1), Int(2))
	require.NoError(t, err)
	require.Equal(t, Int(0), got)
	require.EqualError(t, cb.LastError(), "script failure")

	panicky := NewFunc("panicky", 2, func([]Value) (Value, error) { panic("kaboom") })
	pcb, err := b.CreateCallbackTyped(panicky, "int32", []string{"int32", "int32"})
	require.NoError(t, err)
	got, err = b.CallTyped(tl("apply_i32"), "int32", sig, Addr(pcb.Address()), Int(1), Int(2))
	require.NoError(t, err)
	require.Equal(t, Int(0), got)
	require.ErrorContains(t, pcb.LastError(), "kaboom")

	// a result that cannot be encoded is dropped the same way
	wrong := NewFunc("wrong", 2, func([]Value) (Value, error) { return Arr(nil), nil })
	wcb, err := b.CreateCallbackTyped(wrong, "int32", []string{"int32", "int32"})
	require.NoError(t, err)
	got, err = b.CallTyped(tl("apply_i32"), "int32", sig, Addr(wcb.Address()), Int(1), Int(2))
	require.NoError(t, err)
	require.Equal(t, Int(0), got)
	require.True(t, errors.Is(wcb.LastError(), ErrInvalidArgument))

	dropped := b.DroppedErrors()
	require.Len(t, dropped, 3)
	require.Equal(t, cb.Address(), dropped[0].Callback)
	require.Equal(t, pcb.Address(), dropped[1].Callback)
	require.Equal(t, wcb.Address(), dropped[2].Callback)
}

func TestCallbackArityMismatchIsDropped(t *testing.T) {
	b := newTestBridge(t)
	one := NewFunc("one", 1, func(a []Value) (Value, error) { return a[0], nil })
	cb, err := b.CreateCallbackTyped(one, "int32", []string{"int32", "int32"})
	require.NoError(t, err)

	got, err := b.CallTyped(tl("apply_i32"), "int32", []string{"callback", "int32", "int32"}, Addr(cb.Address()), Int(5), Int(6))
	require.NoError(t, err)
	require.Equal(t, Int(0), got)
	require.ErrorContains(t, cb.LastError(), "expected 1 arguments, got 2")
}

func TestCreateCallbackValidation(t *testing.T) {
	b := newTestBridge(t)

	_, err := b.CreateCallbackTyped(Int(3), "int32", nil)
	requireKind(t, err, ErrInvalidArgument)

	_, err = b.CreateCallbackTyped(addFunc(), "int32", []string{"int32", "nope"})
	requireKind(t, err, ErrInvalidType)
	require.ErrorContains(t, err, "createCallback")

	_, err = b.CreateCallback(addFunc(), nil)
	requireKind(t, err, ErrInvalidArgument)

	require.Empty(t, b.Callbacks())
}

func TestReleaseCallback(t *testing.T) {
	b := newTestBridge(t)
	cb, err := b.CreateCallbackTyped(addFunc(), "int32", []string{"int32", "int32"})
	require.NoError(t, err)
	a := cb.Address()

	require.NoError(t, b.ReleaseCallback(a))
	require.Empty(t, b.Callbacks())
	require.Equal(t, Null, cb.Func())

	requireKind(t, b.ReleaseCallback(a), ErrInvalidArgument)

	// a released address is no longer accepted for callback slots
	_, err = b.CallTyped(tl("apply_i32"), "int32", []string{"callback", "int32", "int32"}, Addr(a), Int(1), Int(2))
	requireKind(t, err, ErrInvalidArgument)
}

func TestCallbackDistinctAddresses(t *testing.T) {
	b := newTestBridge(t)
	seen := map[Address]bool{}
	for i := 0; i < 8; i++ {
		cb, err := b.CreateCallbackTyped(addFunc(), "int32", []string{"int32", "int32"})
		require.NoError(t, err)
		require.False(t, seen[cb.Address()])
		seen[cb.Address()] = true
	}
	require.Len(t, b.Callbacks(), 8)
}
