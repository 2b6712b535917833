package dynffi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUintPicksTag(t *testing.T) {
	assert.Equal(t, VTInt, Uint(0).Tag)
	assert.Equal(t, VTInt, Uint(math.MaxInt64).Tag)
	assert.Equal(t, VTUint, Uint(math.MaxInt64+1).Tag)
	assert.Equal(t, "18446744073709551615", Uint(math.MaxUint64).String())
}

func TestValueConversions(t *testing.T) {
	n, ok := Num(-3.9).AsInt()
	assert.True(t, ok)
	assert.EqualValues(t, -3, n)

	n, ok = Bool(true).AsInt()
	assert.True(t, ok)
	assert.EqualValues(t, 1, n)

	_, ok = Str("1").AsInt()
	assert.False(t, ok)

	f, ok := Int(7).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = Null.AsFloat()
	assert.False(t, ok)

	a, ok := Null.AsAddress()
	assert.True(t, ok)
	assert.True(t, a.IsNull())

	a, ok = Int(0x40).AsAddress()
	assert.True(t, ok)
	assert.Equal(t, Address(0x40), a)

	_, ok = Num(1).AsAddress()
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(-1).Equal(Value{Tag: VTUint, Data: uint64(math.MaxUint64)}))
	assert.True(t, Arr([]Value{Int(1), Str("a")}).Equal(Arr([]Value{Int(1), Str("a")})))
	assert.False(t, Arr([]Value{Int(1)}).Equal(Arr([]Value{Int(1), Int(2)})))
	assert.False(t, Int(1).Equal(Num(1)))
	assert.True(t, Null.Equal(Null))
	assert.False(t, Null.Equal(Void))
	assert.True(t, Addr(5).Equal(Addr(5)))

	f := NewFunc("f", 0, nil)
	assert.True(t, f.Equal(f))
	assert.False(t, f.Equal(NewFunc("f", 0, nil)))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, `[1, "x", null, 0x10, 2.5]`, Arr([]Value{Int(1), Str("x"), Null, Addr(0x10), Num(2.5)}).String())
	assert.Equal(t, "<fun add>", NewFunc("add", 2, nil).String())
	assert.Equal(t, "<handle dl>", HandleVal("dl", nil).String())
	assert.Equal(t, "void", Void.String())
	assert.Equal(t, "tag(99)", ValueTag(99).String())
}

func TestFuncEngine(t *testing.T) {
	var e FuncEngine
	double := NewFunc("double", 1, func(a []Value) (Value, error) {
		n, _ := a[0].AsInt()
		return Int(2 * n), nil
	})
	v, err := e.Apply(double, []Value{Int(21)})
	assert.NoError(t, err)
	assert.Equal(t, Int(42), v)

	_, err = e.Apply(double, nil)
	assert.EqualError(t, err, "double: expected 1 arguments, got 0")

	_, err = e.Apply(Int(1), nil)
	assert.Error(t, err)

	variadic := NewFunc("count", -1, func(a []Value) (Value, error) { return Int(int64(len(a))), nil })
	v, err = e.Apply(variadic, []Value{Null, Null, Null})
	assert.NoError(t, err)
	assert.Equal(t, Int(3), v)
}
