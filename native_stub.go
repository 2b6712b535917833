//go:build !cgo || !(linux || darwin)

package dynffi

import (
	"errors"
	"runtime/cgo"
	"unsafe"
)

// Without cgo there is no libffi: every entry point that would cross into
// native code fails with errNoNative.

var errNoNative = errors.New("dynffi: native calls need cgo and libffi on linux or darwin")

var (
	longDoubleSize uintptr = 16
	ffiArgSize             = ptrSize
)

type cifRecord struct{}

func prepCIF(*CallDescriptor) (*cifRecord, error) { return nil, errNoNative }
func (r *cifRecord) free()                        {}

func ffiCall(*cifRecord, Address, unsafe.Pointer, unsafe.Pointer) {}

func newClosure(*cifRecord, cgo.Handle) (unsafe.Pointer, Address, error) {
	return nil, 0, errNoNative
}
func freeClosure(unsafe.Pointer) {}

func cCalloc(uintptr) unsafe.Pointer                  { return nil }
func cFree(unsafe.Pointer)                            {}
func cCString(string) unsafe.Pointer                  { return nil }
func cGoString(unsafe.Pointer) string                 { return "" }
func cGoStringN(unsafe.Pointer, int) string           { return "" }
func cMemcpy(unsafe.Pointer, unsafe.Pointer, uintptr) {}

func addrPtr(a Address) unsafe.Pointer { return unsafe.Pointer(uintptr(a)) }
func ptrAddr(p unsafe.Pointer) Address { return Address(uintptr(p)) }

func storeLongDouble(unsafe.Pointer, float64) {}
func loadLongDouble(unsafe.Pointer) float64   { return 0 }

func ptrSlice(mem unsafe.Pointer, n int) []unsafe.Pointer {
	return unsafe.Slice((*unsafe.Pointer)(mem), n)
}

func dlOpen(string) (uintptr, error)         { return 0, errNoNative }
func dlSym(uintptr, string) (uintptr, error) { return 0, errNoNative }
func dlClose(uintptr) error                  { return errNoNative }
