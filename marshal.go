package dynffi

import (
	"math"
	"unsafe"
)

////////////////////////////////////////////////////////////////////////////////
// Encoding: Value -> native slot
////////////////////////////////////////////////////////////////////////////////

// encoder writes values into native slots. Text passed where a pointer is
// expected becomes a temporary C string owned by the encoder until release.
type encoder struct {
	b         *Bridge
	op        string
	noTemps   bool // array writes: temporaries would dangle
	temps     []unsafe.Pointer
	callbacks []*Callback
}

func (e *encoder) release() {
	for i := len(e.temps) - 1; i >= 0; i-- {
		cFree(e.temps[i])
	}
	e.temps = nil
}

func (e *encoder) badValue(pos string, d TypeDescriptor, v Value) error {
	return newError(KindInvalidArgument, e.op, "%s: cannot encode %s as %s", pos, v.Tag, d.Name)
}

// encode writes v into dst as d. pos names the position for error messages.
func (e *encoder) encode(pos string, d TypeDescriptor, v Value, dst unsafe.Pointer) error {
	switch d.Class {
	case ClassInteger:
		if d.IsVoid() {
			return newError(KindInvalidType, e.op, "%s: void has no value", pos)
		}
		x, ok := intBits(d, v)
		if !ok {
			return e.badValue(pos, d, v)
		}
		writeIntBits(d.Size, dst, x)
		return nil

	case ClassFloating:
		f, ok := v.AsFloat()
		if !ok {
			return e.badValue(pos, d, v)
		}
		writeFloat(d, dst, f)
		return nil

	case ClassPointer:
		var a Address
		switch {
		case d.Tag == TagCallback:
			if v.Tag == VTNull {
				break
			}
			if v.Tag != VTAddr {
				return newError(KindInvalidArgument, e.op, "%s: callback expects the address of a created callback, got %s", pos, v.Tag)
			}
			a = v.Data.(Address)
			cb := e.b.lookupCallback(a)
			if cb == nil {
				return newError(KindInvalidArgument, e.op, "%s: %s is not a live callback", pos, a)
			}
			e.callbacks = append(e.callbacks, cb)
		case v.Tag == VTStr:
			if e.noTemps {
				return newError(KindInvalidArgument, e.op, "%s: text cannot be stored as %s here", pos, d.Name)
			}
			p := cCString(v.Data.(string))
			e.temps = append(e.temps, p)
			a = ptrAddr(p)
		default:
			var ok bool
			if a, ok = v.AsAddress(); !ok {
				return e.badValue(pos, d, v)
			}
			// a trampoline passed as a plain pointer is owned all the same
			if v.Tag == VTAddr && !a.IsNull() {
				if cb := e.b.lookupCallback(a); cb != nil {
					e.callbacks = append(e.callbacks, cb)
				}
			}
		}
		*(*uintptr)(dst) = uintptr(a)
		return nil
	}
	return newError(KindInternal, e.op, "%s: unhandled class %s", pos, d.Class)
}

// intBits converts v to the bit pattern a C cast to d would produce.
// Floats at or above 2^63 only fit an unsigned 64-bit target.
func intBits(d TypeDescriptor, v Value) (uint64, bool) {
	if v.Tag == VTNum && d.Size == 8 && !d.Signed {
		if f := v.Data.(float64); f >= 1<<63 {
			return uint64(f), true
		}
	}
	x, ok := v.AsInt()
	return uint64(x), ok
}

// writeIntBits stores the low size bytes of x: C cast truncation.
func writeIntBits(size uintptr, dst unsafe.Pointer, x uint64) {
	switch size {
	case 1:
		*(*uint8)(dst) = uint8(x)
	case 2:
		*(*uint16)(dst) = uint16(x)
	case 4:
		*(*uint32)(dst) = uint32(x)
	case 8:
		*(*uint64)(dst) = x
	}
}

func writeFloat(d TypeDescriptor, dst unsafe.Pointer, f float64) {
	switch d.Tag {
	case TagFloat:
		*(*float32)(dst) = float32(f)
	case TagDouble:
		*(*float64)(dst) = f
	case TagLongDouble:
		storeLongDouble(dst, f)
	}
}

// writeReturn stores a callback result. Integer results narrower than
// ffi_arg are widened to a full ffi_arg, as libffi expects.
func writeReturn(d TypeDescriptor, dst unsafe.Pointer, x uint64) {
	if d.Size < ffiArgSize {
		writeIntBits(ffiArgSize, dst, widen(d, x))
		return
	}
	writeIntBits(d.Size, dst, x)
}

// widen sign- or zero-extends the low d.Size bytes of x to 64 bits.
func widen(d TypeDescriptor, x uint64) uint64 {
	switch d.Size {
	case 1:
		if d.Signed {
			return uint64(int64(int8(x)))
		}
		return uint64(uint8(x))
	case 2:
		if d.Signed {
			return uint64(int64(int16(x)))
		}
		return uint64(uint16(x))
	case 4:
		if d.Signed {
			return uint64(int64(int32(x)))
		}
		return uint64(uint32(x))
	}
	return x
}

////////////////////////////////////////////////////////////////////////////////
// Decoding: native slot -> Value
////////////////////////////////////////////////////////////////////////////////

// decode reads a value of type d stored at its natural width.
func decode(d TypeDescriptor, src unsafe.Pointer) Value {
	switch d.Class {
	case ClassInteger:
		if d.IsVoid() {
			return Void
		}
		return intValue(d, readIntBits(d.Size, src))
	case ClassFloating:
		return Num(readFloat(d, src))
	}
	return pointerValue(d, *(*uintptr)(src))
}

// decodeReturn reads an ffi_call result. Integer results narrower than
// ffi_arg occupy a full ffi_arg.
func decodeReturn(d TypeDescriptor, src unsafe.Pointer) Value {
	if d.Class == ClassInteger && !d.IsVoid() && d.Size < ffiArgSize {
		return intValue(d, readIntBits(ffiArgSize, src))
	}
	return decode(d, src)
}

func readIntBits(size uintptr, src unsafe.Pointer) uint64 {
	switch size {
	case 1:
		return uint64(*(*uint8)(src))
	case 2:
		return uint64(*(*uint16)(src))
	case 4:
		return uint64(*(*uint32)(src))
	case 8:
		return *(*uint64)(src)
	}
	return 0
}

// intValue interprets the low d.Size bytes of x per d's signedness.
func intValue(d TypeDescriptor, x uint64) Value {
	w := widen(d, x)
	if d.Signed {
		return Int(int64(w))
	}
	return Uint(w)
}

func readFloat(d TypeDescriptor, src unsafe.Pointer) float64 {
	switch d.Tag {
	case TagFloat:
		return float64(*(*float32)(src))
	case TagDouble:
		return *(*float64)(src)
	case TagLongDouble:
		return loadLongDouble(src)
	}
	return math.NaN()
}

func pointerValue(d TypeDescriptor, p uintptr) Value {
	if p == 0 {
		return Null
	}
	if d.Tag == TagString {
		return Str(cGoString(addrPtr(Address(p))))
	}
	return Addr(Address(p))
}
