package dynffi

import (
	"strconv"
	"unsafe"
)

// Call invokes fn with desc's shape. Arity is checked before any native
// memory is touched; type names were already checked when desc was built.
// The call itself is a pass-through: whatever fn does to memory reachable
// from its arguments is outside the bridge's control.
func (b *Bridge) Call(fn Address, desc *CallDescriptor, args []Value) (Value, error) {
	if desc == nil {
		return Null, newError(KindInvalidArgument, "call", "nil call descriptor")
	}
	if len(args) != len(desc.Args) {
		return Null, newError(KindArity, "call", "Incorrect number of arguments. Expected %d, got %d", len(desc.Args), len(args))
	}
	if fn.IsNull() {
		return Null, newError(KindInvalidArgument, "call", "null function address")
	}

	rec, err := prepCIF(desc)
	if err != nil {
		return Null, wrapError(KindInternal, "call", err, "cannot prepare %s", desc)
	}
	defer rec.free()

	// One block: n argument slots, the void* vector, then the result slot.
	n := uintptr(len(args))
	slots := n * MaxSlotSize
	block := cCalloc(slots + n*ptrSize + MaxSlotSize)
	if block == nil {
		return Null, newError(KindOutOfMemory, "call", "cannot allocate argument buffer")
	}
	defer cFree(block)
	rvalue := unsafe.Add(block, slots+n*ptrSize)
	var avalues unsafe.Pointer
	if n > 0 {
		avalues = unsafe.Add(block, slots)
	}

	enc := encoder{b: b, op: "call"}
	defer enc.release()
	if n > 0 {
		vec := ptrSlice(avalues, int(n))
		for i, a := range args {
			slot := unsafe.Add(block, uintptr(i)*MaxSlotSize)
			if err := enc.encode("argument "+strconv.Itoa(i), desc.Args[i], a, slot); err != nil {
				return Null, err
			}
			vec[i] = slot
		}
	}
	b.attach(fn, enc.callbacks)

	ffiCall(rec, fn, rvalue, avalues)
	return decodeReturn(desc.Ret, rvalue), nil
}

// CallTyped resolves the type names and calls Call.
func (b *Bridge) CallTyped(fn Address, ret string, argTypes []string, args ...Value) (Value, error) {
	desc, err := NewCallDescriptor(ret, argTypes)
	if err != nil {
		return Null, withOp(err, "call")
	}
	return b.Call(fn, desc, args)
}
