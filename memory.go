package dynffi

import (
	"strconv"
	"unsafe"
)

// Alloc returns size zero-initialized bytes of C heap. Alloc(0) returns a
// distinct non-null address that is safe to Free.
func (b *Bridge) Alloc(size int64) (Address, error) {
	if size < 0 {
		return 0, newError(KindInvalidArgument, "malloc", "negative size %d", size)
	}
	if size > b.cfg.MaxAlloc {
		return 0, newError(KindOutOfMemory, "malloc", "%d bytes exceeds the limit of %d", size, b.cfg.MaxAlloc)
	}
	n := uintptr(size)
	if n == 0 {
		n = 1
	}
	p := cCalloc(n)
	if p == nil {
		return 0, newError(KindOutOfMemory, "malloc", "cannot allocate %d bytes", size)
	}
	return ptrAddr(p), nil
}

// Free releases memory obtained from Alloc. Free of the zero address is a
// no-op; anything else not from Alloc is undefined behavior.
func (b *Bridge) Free(addr Address) {
	if addr.IsNull() {
		return
	}
	cFree(addrPtr(addr))
}

func arrayType(op, name string, write bool) (TypeDescriptor, error) {
	d, err := ResolveType(name)
	if err != nil {
		return d, withOp(err, op)
	}
	if d.IsVoid() || (write && d.Tag == TagString) {
		return d, newError(KindInvalidType, op, "%s is not a valid element type", d.Name)
	}
	return d, nil
}

// WriteArray encodes count elements of values at addr as typ. count is
// trusted: nothing checks it against the allocation behind addr. Text is not
// accepted for pointer elements since the temporary would not outlive the
// write.
func (b *Bridge) WriteArray(addr Address, values []Value, typ string, count int) error {
	d, err := arrayType("writeArray", typ, true)
	if err != nil {
		return err
	}
	if count < 0 {
		return newError(KindInvalidArgument, "writeArray", "negative count %d", count)
	}
	if len(values) < count {
		return newError(KindInvalidArgument, "writeArray", "count %d exceeds the %d values given", count, len(values))
	}
	if count == 0 {
		return nil
	}
	if addr.IsNull() {
		return newError(KindInvalidArgument, "writeArray", "null address")
	}
	base := addrPtr(addr)
	enc := encoder{b: b, op: "writeArray", noTemps: true}
	for i := 0; i < count; i++ {
		if err := enc.encode("element "+strconv.Itoa(i), d, values[i], unsafe.Add(base, uintptr(i)*d.Size)); err != nil {
			return err
		}
	}
	return nil
}

// ReadArray decodes count elements of typ at addr. string elements are read
// as char* and decoded to text.
func (b *Bridge) ReadArray(addr Address, typ string, count int) ([]Value, error) {
	d, err := arrayType("readArray", typ, false)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, newError(KindInvalidArgument, "readArray", "negative count %d", count)
	}
	out := make([]Value, count)
	if count == 0 {
		return out, nil
	}
	if addr.IsNull() {
		return nil, newError(KindInvalidArgument, "readArray", "null address")
	}
	base := addrPtr(addr)
	for i := range out {
		out[i] = decode(d, unsafe.Add(base, uintptr(i)*d.Size))
	}
	return out, nil
}

// ReadString reads n bytes at addr, or up to the first NUL when n < 0.
func (b *Bridge) ReadString(addr Address, n int) (string, error) {
	if addr.IsNull() {
		return "", newError(KindInvalidArgument, "readString", "null address")
	}
	if n < 0 {
		return cGoString(addrPtr(addr)), nil
	}
	return cGoStringN(addrPtr(addr), n), nil
}

// WriteString copies s and a terminating NUL to addr.
func (b *Bridge) WriteString(addr Address, s string) error {
	if addr.IsNull() {
		return newError(KindInvalidArgument, "writeString", "null address")
	}
	dst := addrPtr(addr)
	if len(s) > 0 {
		cMemcpy(dst, unsafe.Pointer(unsafe.StringData(s)), uintptr(len(s)))
	}
	*(*byte)(unsafe.Add(dst, len(s))) = 0
	return nil
}
