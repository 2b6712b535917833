//go:build cgo && (linux || darwin)

package dynffi

/*
#cgo pkg-config: libffi
#include <ffi.h>
#include <stdlib.h>
#include <string.h>
#include <stdint.h> // uintptr_t

// ffi_call wrapper: the target comes in as an integer address so cgo never
// sees a function-pointer type at the call site.
static void dynffi_call(ffi_cif* cif, uintptr_t fn, void* rvalue, void** avalue) {
	ffi_call(cif, (void (*)(void))fn, rvalue, avalue);
}

// cifs live on the C heap; closures keep pointing at theirs.
static ffi_cif* dynffi_alloc_cif(void) {
	return (ffi_cif*)malloc(sizeof(ffi_cif));
}

static int dynffi_prep_cif(ffi_cif* cif, unsigned int nargs, ffi_type* rtype, ffi_type** atypes) {
	return ffi_prep_cif(cif, FFI_DEFAULT_ABI, nargs, rtype, atypes);
}

// Raw address <-> pointer, kept on the C side.
static void* dynffi_ptr(uintptr_t a) { return (void*)a; }
static uintptr_t dynffi_addr(void* p) { return (uintptr_t)p; }

// long double has no cgo mapping; go through double.
static void dynffi_store_ld(void* p, double v) { *(long double*)p = (long double)v; }
static double dynffi_load_ld(void* p) { return (double)*(long double*)p; }
static size_t dynffi_sizeof_ld(void) { return sizeof(long double); }

// -------- libffi closure helpers (callbacks) ----------
static void* dynffi_closure_alloc(void** executable) {
	return ffi_closure_alloc(sizeof(ffi_closure), executable);
}
static void dynffi_closure_free(void* closure) {
	ffi_closure_free((ffi_closure*)closure);
}

// Forward decl to Go; the thunk forwards into it with the integer handle.
extern void dynffiDispatch(ffi_cif*, void*, void**, uintptr_t);
static void dynffi_thunk(ffi_cif* cif, void* ret, void** args, void* user) {
	dynffiDispatch(cif, ret, args, (uintptr_t)user);
}
// Binds the thunk on the C side to avoid cgo func-ptr typing pitfalls.
static int dynffi_prep_closure(void* closure, ffi_cif* cif, uintptr_t userdata, void* executable) {
	return ffi_prep_closure_loc((ffi_closure*)closure, cif, dynffi_thunk, (void*)userdata, executable);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"
)

var (
	longDoubleSize = uintptr(C.dynffi_sizeof_ld())
	ffiArgSize     = uintptr(C.sizeof_ffi_arg)
)

// -------------------------
// C shim helpers (single TU)
// -------------------------

func cCalloc(n uintptr) unsafe.Pointer          { return C.calloc(1, C.size_t(n)) }
func cFree(p unsafe.Pointer)                    { C.free(p) }
func cCString(s string) unsafe.Pointer          { return unsafe.Pointer(C.CString(s)) }
func cGoString(p unsafe.Pointer) string         { return C.GoString((*C.char)(p)) }
func cGoStringN(p unsafe.Pointer, n int) string { return C.GoStringN((*C.char)(p), C.int(n)) }
func cMemcpy(dst, src unsafe.Pointer, n uintptr) {
	C.memcpy(dst, src, C.size_t(n))
}

func addrPtr(a Address) unsafe.Pointer { return C.dynffi_ptr(C.uintptr_t(a)) }
func ptrAddr(p unsafe.Pointer) Address { return Address(C.dynffi_addr(p)) }

func storeLongDouble(p unsafe.Pointer, v float64) { C.dynffi_store_ld(p, C.double(v)) }
func loadLongDouble(p unsafe.Pointer) float64     { return float64(C.dynffi_load_ld(p)) }

// ptrSlice views a void** vector in C memory.
func ptrSlice(mem unsafe.Pointer, n int) []unsafe.Pointer {
	return (*[1<<30 - 1]unsafe.Pointer)(mem)[:n:n]
}

func ffiTypeFor(tag TypeTag) *C.ffi_type {
	switch tag {
	case TagInt8:
		return &C.ffi_type_sint8
	case TagUint8:
		return &C.ffi_type_uint8
	case TagInt16:
		return &C.ffi_type_sint16
	case TagUint16:
		return &C.ffi_type_uint16
	case TagInt32:
		return &C.ffi_type_sint32
	case TagUint32:
		return &C.ffi_type_uint32
	case TagInt64:
		return &C.ffi_type_sint64
	case TagUint64:
		return &C.ffi_type_uint64
	case TagFloat:
		return &C.ffi_type_float
	case TagDouble:
		return &C.ffi_type_double
	case TagLongDouble:
		return &C.ffi_type_longdouble
	case TagChar:
		return &C.ffi_type_sint8
	case TagUchar:
		return &C.ffi_type_uint8
	case TagPointer, TagString, TagCallback:
		return &C.ffi_type_pointer
	case TagVoid:
		return &C.ffi_type_void
	}
	return nil
}

// cifRecord is a prepared call interface plus the ffi_type* vector it reads.
// Both live on the C heap; libffi keeps a pointer to the vector.
type cifRecord struct {
	cif   *C.ffi_cif
	types unsafe.Pointer
}

// prepCIF allocates and prepares a cif for desc. The caller frees it.
func prepCIF(desc *CallDescriptor) (*cifRecord, error) {
	rty := ffiTypeFor(desc.Ret.Tag)
	if rty == nil {
		return nil, fmt.Errorf("no native type for %s", desc.Ret.Name)
	}
	n := len(desc.Args)
	rec := &cifRecord{}
	var typesPtr **C.ffi_type
	if n > 0 {
		rec.types = C.malloc(C.size_t(n) * C.size_t(ptrSize))
		if rec.types == nil {
			return nil, fmt.Errorf("ffi_prep_cif: out of memory")
		}
		types := (*[1<<30 - 1]*C.ffi_type)(rec.types)[:n:n]
		for i, a := range desc.Args {
			t := ffiTypeFor(a.Tag)
			if t == nil {
				rec.free()
				return nil, fmt.Errorf("argument %d: no native type for %s", i, a.Name)
			}
			types[i] = t
		}
		typesPtr = (**C.ffi_type)(rec.types)
	}
	rec.cif = C.dynffi_alloc_cif()
	if rec.cif == nil {
		rec.free()
		return nil, fmt.Errorf("ffi_prep_cif: out of memory")
	}
	if st := C.dynffi_prep_cif(rec.cif, C.uint(n), rty, typesPtr); st != C.FFI_OK {
		rec.free()
		return nil, fmt.Errorf("ffi_prep_cif failed: %d", int(st))
	}
	return rec, nil
}

func (r *cifRecord) free() {
	if r.types != nil {
		C.free(r.types)
		r.types = nil
	}
	if r.cif != nil {
		C.free(unsafe.Pointer(r.cif))
		r.cif = nil
	}
}

// ffiCall crosses into native code. rvalue and avalues are C memory.
func ffiCall(r *cifRecord, fn Address, rvalue, avalues unsafe.Pointer) {
	C.dynffi_call(r.cif, C.uintptr_t(fn), rvalue, (*unsafe.Pointer)(avalues))
}

// newClosure allocates a libffi closure bound to the dispatcher, with h as
// the opaque context. It returns the closure and its executable entry.
func newClosure(r *cifRecord, h cgo.Handle) (unsafe.Pointer, Address, error) {
	var exec unsafe.Pointer
	cl := C.dynffi_closure_alloc((*unsafe.Pointer)(unsafe.Pointer(&exec)))
	if cl == nil {
		return nil, 0, errClosureOOM
	}
	if st := C.dynffi_prep_closure(cl, r.cif, C.uintptr_t(h), exec); st != C.FFI_OK {
		C.dynffi_closure_free(cl)
		return nil, 0, fmt.Errorf("ffi_prep_closure_loc failed: %d", int(st))
	}
	return cl, ptrAddr(exec), nil
}

func freeClosure(cl unsafe.Pointer) {
	if cl != nil {
		C.dynffi_closure_free(cl)
	}
}
