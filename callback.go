package dynffi

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

var errClosureOOM = errors.New("ffi_closure_alloc: out of memory")

// Callback is a live trampoline bound to a script function. Native code may
// call Address() for as long as the registration is live; after release that
// is undefined behavior.
//
// A string result is a C copy owned by the registration. It stays valid until
// the trampoline is next entered while no other invocation is running, or
// until release. Native callers on several threads that keep such a string
// past their own call must copy it.
type Callback struct {
	b       *Bridge
	addr    Address
	fn      Value
	desc    *CallDescriptor
	cif     *cifRecord
	closure unsafe.Pointer
	handle  cgo.Handle
	owners  map[*Library]struct{} // guarded by b.mu

	calls atomic.Int64

	mu       sync.Mutex
	lastErr  error
	active   int              // invocations in flight
	retStrs  []unsafe.Pointer // C copies of string results
	released bool
}

// Address is the executable entry native code calls.
func (cb *Callback) Address() Address { return cb.addr }

// Descriptor is the call shape the trampoline was built for.
func (cb *Callback) Descriptor() *CallDescriptor { return cb.desc }

// Func returns the bound script function.
func (cb *Callback) Func() Value { return cb.fn }

// Calls counts native invocations of the trampoline.
func (cb *Callback) Calls() int64 { return cb.calls.Load() }

// LastError returns the most recent script error swallowed by the
// trampoline, or nil.
func (cb *Callback) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastErr
}

func (cb *Callback) String() string {
	return fmt.Sprintf("<callback %s %s>", cb.addr, cb.desc)
}

// CreateCallback builds a trampoline that calls fn with desc's shape.
func (b *Bridge) CreateCallback(fn Value, desc *CallDescriptor) (*Callback, error) {
	if fn.Tag != VTFun {
		return nil, newError(KindInvalidArgument, "createCallback", "expected a function, got %s", fn.Tag)
	}
	if desc == nil {
		return nil, newError(KindInvalidArgument, "createCallback", "nil call descriptor")
	}
	rec, err := prepCIF(desc)
	if err != nil {
		return nil, wrapError(KindInternal, "createCallback", err, "cannot prepare %s", desc)
	}
	cb := &Callback{
		b:      b,
		fn:     fn,
		desc:   desc,
		cif:    rec,
		owners: map[*Library]struct{}{},
	}
	cb.handle = cgo.NewHandle(cb)
	cl, exec, err := newClosure(rec, cb.handle)
	if err != nil {
		cb.handle.Delete()
		rec.free()
		if errors.Is(err, errClosureOOM) {
			return nil, wrapError(KindOutOfMemory, "createCallback", err, "")
		}
		return nil, wrapError(KindInternal, "createCallback", err, "cannot build trampoline for %s", desc)
	}
	cb.closure, cb.addr = cl, exec

	b.mu.Lock()
	b.callbacks[exec] = cb
	b.mu.Unlock()
	b.log.Debug("callback created", "address", exec, "signature", desc.String())
	return cb, nil
}

// CreateCallbackTyped resolves the type names and calls CreateCallback.
func (b *Bridge) CreateCallbackTyped(fn Value, ret string, args []string) (*Callback, error) {
	desc, err := NewCallDescriptor(ret, args)
	if err != nil {
		return nil, withOp(err, "createCallback")
	}
	return b.CreateCallback(fn, desc)
}

// ReleaseCallback frees the trampoline at addr and drops its script
// function. Native code must not call addr afterwards.
func (b *Bridge) ReleaseCallback(addr Address) error {
	b.mu.Lock()
	cb, ok := b.callbacks[addr]
	if !ok {
		b.mu.Unlock()
		return newError(KindInvalidArgument, "releaseCallback", "%s is not a live callback", addr)
	}
	b.unregisterLocked(cb)
	b.mu.Unlock()

	cb.free()
	b.log.Debug("callback released", "address", addr, "calls", cb.Calls())
	return nil
}

// unregisterLocked removes cb from the live set and from every owning
// library. b.mu must be held.
func (b *Bridge) unregisterLocked(cb *Callback) {
	delete(b.callbacks, cb.addr)
	for lib := range cb.owners {
		delete(lib.callbacks, cb.addr)
	}
	cb.owners = map[*Library]struct{}{}
}

// free releases native resources. Safe to call once per registration.
func (cb *Callback) free() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.released {
		return
	}
	cb.released = true
	freeClosure(cb.closure)
	cb.closure = nil
	cb.cif.free()
	cb.handle.Delete()
	cb.freeStringsLocked()
	cb.fn = Null
}

// dispatch runs on the native thread that called the trampoline. Script
// errors and panics stop here: the return slot is zeroed and the error is
// recorded.
func (cb *Callback) dispatch(ret unsafe.Pointer, argv []unsafe.Pointer) {
	cb.calls.Add(1)

	cb.mu.Lock()
	fn := cb.fn
	if cb.active == 0 {
		cb.freeStringsLocked()
	}
	cb.active++
	cb.mu.Unlock()
	defer func() {
		cb.mu.Lock()
		cb.active--
		cb.mu.Unlock()
	}()

	args := make([]Value, len(argv))
	for i, p := range argv {
		args[i] = decode(cb.desc.Args[i], p)
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in callback: %v", r)
			}
		}()
		res, err := cb.b.engine.Apply(fn, args)
		if err != nil {
			return err
		}
		return cb.storeResult(ret, res)
	}()
	if err != nil {
		cb.zeroResult(ret)
		cb.drop(err)
	}
}

// freeStringsLocked frees the string results. cb.mu must be held.
func (cb *Callback) freeStringsLocked() {
	for _, p := range cb.retStrs {
		cFree(p)
	}
	cb.retStrs = nil
}

func (cb *Callback) storeResult(ret unsafe.Pointer, res Value) error {
	d := cb.desc.Ret
	switch d.Class {
	case ClassInteger:
		if d.IsVoid() {
			return nil
		}
		x, ok := intBits(d, res)
		if !ok {
			return newError(KindInvalidArgument, "callback", "result: cannot encode %s as %s", res.Tag, d.Name)
		}
		writeReturn(d, ret, x)
		return nil
	case ClassPointer:
		if res.Tag == VTStr && d.Tag != TagCallback {
			p := cCString(res.Data.(string))
			cb.mu.Lock()
			cb.retStrs = append(cb.retStrs, p)
			cb.mu.Unlock()
			*(*uintptr)(ret) = uintptr(ptrAddr(p))
			return nil
		}
	}
	enc := encoder{b: cb.b, op: "callback", noTemps: true}
	return enc.encode("result", d, res, ret)
}

func (cb *Callback) zeroResult(ret unsafe.Pointer) {
	d := cb.desc.Ret
	if d.IsVoid() {
		return
	}
	n := d.Size
	if n < ffiArgSize {
		n = ffiArgSize
	}
	clear(unsafe.Slice((*byte)(ret), n))
}

func (cb *Callback) drop(err error) {
	cb.mu.Lock()
	cb.lastErr = err
	cb.mu.Unlock()
	cb.b.recordDropped(DroppedError{Callback: cb.addr, Err: err, At: time.Now()})
	cb.b.log.Warn("callback error dropped at native boundary", "address", cb.addr, "error", err)
}

func withOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		c := *e
		c.Op = op
		return &c
	}
	return err
}
