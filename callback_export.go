//go:build cgo && (linux || darwin)

package dynffi

// Files with //export may only declare in their preamble; the thunk that
// calls into dynffiDispatch is defined in ffi.go.

/*
#include <ffi.h>
#include <stdint.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

//export dynffiDispatch
func dynffiDispatch(_ *C.ffi_cif, ret unsafe.Pointer, args *unsafe.Pointer, user C.uintptr_t) {
	cb, ok := cgo.Handle(user).Value().(*Callback)
	if !ok || cb == nil {
		return
	}
	n := len(cb.desc.Args)
	var argv []unsafe.Pointer
	if n > 0 {
		argv = ptrSlice(unsafe.Pointer(args), n)
	}
	cb.dispatch(ret, argv)
}
