// value.go: the dynamic value model exchanged across the native boundary.
//
// Values are plain structs with a tag and a payload. They are copied at every
// boundary crossing; nothing in this package keeps a reference to a Value's
// payload after a call returns, except a Callback, which holds the
// script function it was created with.

package dynffi

import (
	"fmt"
	"strconv"
)

// ValueTag enumerates all runtime kinds a Value may hold.
// The tag determines which Go type Value.Data carries.
type ValueTag int

const (
	VTNull   ValueTag = iota // null (no payload)
	VTVoid                   // explicit "no value" returned by void natives
	VTBool                   // bool
	VTInt                    // int64
	VTUint                   // uint64 (only for values above math.MaxInt64)
	VTNum                    // float64
	VTStr                    // string
	VTArray                  // []Value
	VTAddr                   // Address
	VTFun                    // *Func
	VTHandle                 // *Handle
)

var tagNames = [...]string{
	VTNull:   "null",
	VTVoid:   "void",
	VTBool:   "bool",
	VTInt:    "int",
	VTUint:   "uint",
	VTNum:    "num",
	VTStr:    "str",
	VTArray:  "array",
	VTAddr:   "address",
	VTFun:    "function",
	VTHandle: "handle",
}

func (t ValueTag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Value is the universal carrier between the script engine and this package.
//
// Invariants:
//   - When Tag is VTNull or VTVoid, Data is nil.
//   - VTUint is only produced for unsigned 64-bit results that do not fit in
//     an int64; smaller unsigned results decode to VTInt.
type Value struct {
	Tag  ValueTag
	Data any
}

// String renders a human-friendly debug representation.
func (v Value) String() string {
	switch v.Tag {
	case VTNull:
		return "null"
	case VTVoid:
		return "void"
	case VTBool:
		return strconv.FormatBool(v.Data.(bool))
	case VTInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case VTUint:
		return strconv.FormatUint(v.Data.(uint64), 10)
	case VTNum:
		return strconv.FormatFloat(v.Data.(float64), 'g', -1, 64)
	case VTStr:
		return strconv.Quote(v.Data.(string))
	case VTArray:
		xs := v.Data.([]Value)
		s := "["
		for i, x := range xs {
			if i > 0 {
				s += ", "
			}
			s += x.String()
		}
		return s + "]"
	case VTAddr:
		return v.Data.(Address).String()
	case VTFun:
		return "<fun " + v.Data.(*Func).Name + ">"
	case VTHandle:
		return "<handle " + v.Data.(*Handle).Kind + ">"
	default:
		return "<unknown>"
	}
}

// Null is the singleton null Value.
var Null = Value{Tag: VTNull}

// Void is returned by calls whose return type is void.
var Void = Value{Tag: VTVoid}

// Primitive constructors.
func Bool(b bool) Value    { return Value{Tag: VTBool, Data: b} }
func Int(n int64) Value    { return Value{Tag: VTInt, Data: n} }
func Num(f float64) Value  { return Value{Tag: VTNum, Data: f} }
func Str(s string) Value   { return Value{Tag: VTStr, Data: s} }
func Arr(xs []Value) Value { return Value{Tag: VTArray, Data: xs} }

// Uint returns a VTInt when u fits in an int64 and a VTUint otherwise.
func Uint(u uint64) Value {
	if u <= 1<<63-1 {
		return Int(int64(u))
	}
	return Value{Tag: VTUint, Data: u}
}

// Addr wraps a native address. A zero address is still an address; decoders
// map zero pointers to Null themselves.
func Addr(a Address) Value { return Value{Tag: VTAddr, Data: a} }

// Address is an opaque native address. It carries no ownership and must not
// be dereferenced outside this package.
type Address uintptr

func (a Address) String() string { return fmt.Sprintf("0x%x", uintptr(a)) }

// IsNull reports whether a is the zero address.
func (a Address) IsNull() bool { return a == 0 }

// Handle is an opaque host object surfaced to scripts (library handles).
type Handle struct {
	Kind string
	Data any
}

func HandleVal(kind string, data any) Value {
	return Value{Tag: VTHandle, Data: &Handle{Kind: kind, Data: data}}
}

// AsInt extracts an integer view of v, truncating floats toward zero.
func (v Value) AsInt() (int64, bool) {
	switch v.Tag {
	case VTInt:
		return v.Data.(int64), true
	case VTUint:
		return int64(v.Data.(uint64)), true
	case VTNum:
		return int64(v.Data.(float64)), true
	case VTBool:
		if v.Data.(bool) {
			return 1, true
		}
		return 0, true
	case VTAddr:
		return int64(v.Data.(Address)), true
	}
	return 0, false
}

// AsFloat extracts a floating view of any numeric v.
func (v Value) AsFloat() (float64, bool) {
	switch v.Tag {
	case VTNum:
		return v.Data.(float64), true
	case VTInt:
		return float64(v.Data.(int64)), true
	case VTUint:
		return float64(v.Data.(uint64)), true
	case VTBool:
		if v.Data.(bool) {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsAddress extracts a raw address from v. Null maps to the zero address and
// integers are taken as raw addresses.
func (v Value) AsAddress() (Address, bool) {
	switch v.Tag {
	case VTNull:
		return 0, true
	case VTAddr:
		return v.Data.(Address), true
	case VTInt:
		return Address(uintptr(v.Data.(int64))), true
	case VTUint:
		return Address(uintptr(v.Data.(uint64))), true
	}
	return 0, false
}

// Equal compares two values structurally. Integers compare across VTInt and
// VTUint by their 64-bit pattern.
func (v Value) Equal(w Value) bool {
	switch {
	case v.Tag == VTArray && w.Tag == VTArray:
		a, b := v.Data.([]Value), w.Data.([]Value)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case (v.Tag == VTInt || v.Tag == VTUint) && (w.Tag == VTInt || w.Tag == VTUint):
		x, _ := v.AsInt()
		y, _ := w.AsInt()
		return x == y
	case v.Tag != w.Tag:
		return false
	case v.Tag == VTNull || v.Tag == VTVoid:
		return true
	case v.Tag == VTFun:
		return v.Data.(*Func) == w.Data.(*Func)
	case v.Tag == VTHandle:
		return v.Data.(*Handle) == w.Data.(*Handle)
	default:
		return v.Data == w.Data
	}
}
