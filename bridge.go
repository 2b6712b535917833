// Package dynffi lets a dynamically typed script runtime call native functions
// whose signatures are only known at run time, and lets native code call back
// into script functions through libffi trampolines.
//
// All state lives in a Bridge: the table of open libraries, the index of
// resolved symbols and the set of live callbacks. Every operation is
// synchronous. A native call occupies the calling goroutine's thread until it
// returns; a callback dispatch re-enters the Engine on that same thread.
//
// Caller obligations (undefined behavior, never checked):
//   - calling an address resolved from a library after CloseLibrary;
//   - calling a trampoline after ReleaseCallback, or after the close of a
//     library that released it;
//   - freeing an address twice, or one not obtained from Alloc;
//   - reading or writing past the end of an allocation.
package dynffi

import (
	"log/slog"
	"sync"
	"time"
)

// DroppedError records a script error swallowed at a trampoline boundary.
type DroppedError struct {
	Callback Address
	Err      error
	At       time.Time
}

// Bridge is the FFI context. It is safe for concurrent use; the lock guards
// bookkeeping only and is never held across a native call or a script call.
type Bridge struct {
	cfg    Config
	log    *slog.Logger
	engine Engine

	mu        sync.Mutex
	libs      map[*Library]struct{}
	symbols   map[Address]map[*Library]struct{} // every open library that resolved the address
	callbacks map[Address]*Callback
	dropped   []DroppedError
}

// NewBridge builds a bridge over engine. A nil engine means FuncEngine.
func NewBridge(engine Engine, cfg Config) (*Bridge, error) {
	cfg.fill()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = FuncEngine{}
	}
	return &Bridge{
		cfg:       cfg,
		log:       cfg.Logger,
		engine:    engine,
		libs:      map[*Library]struct{}{},
		symbols:   map[Address]map[*Library]struct{}{},
		callbacks: map[Address]*Callback{},
	}, nil
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config { return b.cfg }

// Close releases every live callback and closes every open library. It
// returns the first dlclose failure, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	cbs := make([]*Callback, 0, len(b.callbacks))
	for _, cb := range b.callbacks {
		cbs = append(cbs, cb)
	}
	libs := make([]*Library, 0, len(b.libs))
	for lib := range b.libs {
		libs = append(libs, lib)
	}
	b.mu.Unlock()

	for _, cb := range cbs {
		_ = b.ReleaseCallback(cb.addr)
	}
	var first error
	for _, lib := range libs {
		if err := b.CloseLibrary(lib); err != nil && first == nil {
			first = err
		}
	}
	b.log.Debug("bridge closed", "callbacks", len(cbs), "libraries", len(libs))
	return first
}

// Libraries returns the open libraries.
func (b *Bridge) Libraries() []*Library {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Library, 0, len(b.libs))
	for lib := range b.libs {
		out = append(out, lib)
	}
	return out
}

// Callbacks returns the live callbacks.
func (b *Bridge) Callbacks() []*Callback {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Callback, 0, len(b.callbacks))
	for _, cb := range b.callbacks {
		out = append(out, cb)
	}
	return out
}

// DroppedErrors returns the most recent errors swallowed by trampolines,
// oldest first.
func (b *Bridge) DroppedErrors() []DroppedError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DroppedError(nil), b.dropped...)
}

func (b *Bridge) recordDropped(d DroppedError) {
	b.mu.Lock()
	b.dropped = append(b.dropped, d)
	if over := len(b.dropped) - b.cfg.DroppedErrorLimit; over > 0 {
		b.dropped = append(b.dropped[:0], b.dropped[over:]...)
	}
	b.mu.Unlock()
}

func (b *Bridge) lookupCallback(a Address) *Callback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callbacks[a]
}

// attach records that cbs were handed to fn, so the close of any library
// that resolved fn releases them under CloseOwned.
func (b *Bridge) attach(fn Address, cbs []*Callback) {
	if len(cbs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	owners := b.symbols[fn]
	for _, cb := range cbs {
		if _, live := b.callbacks[cb.addr]; !live {
			continue
		}
		for lib := range owners {
			lib.callbacks[cb.addr] = cb
			cb.owners[lib] = struct{}{}
		}
	}
}
