package dynffi

import (
	"os"
	"path/filepath"
	"strings"
)

// Library is an open native module. It owns the loaded image until
// CloseLibrary; symbols resolved from it are valid only while it is open.
type Library struct {
	Path string // path as requested
	Name string // path the loader accepted

	b         *Bridge
	handle    uintptr
	callbacks map[Address]*Callback // released with the library under CloseOwned
}

func (l *Library) String() string { return "<library " + l.Name + ">" }

// Closed reports whether the library has been closed.
func (l *Library) Closed() bool {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	_, open := l.b.libs[l]
	return !open
}

// candidates lists the paths to try for path. Bare names are tried in each
// search directory before being handed to the system loader as-is.
func (b *Bridge) candidates(path string) []string {
	if strings.ContainsRune(path, os.PathSeparator) || len(b.cfg.SearchPaths) == 0 {
		return []string{path}
	}
	out := make([]string, 0, len(b.cfg.SearchPaths)+1)
	for _, dir := range b.cfg.SearchPaths {
		p := filepath.Join(dir, path)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return append(out, path)
}

// Open maps a native module into the process. Failures carry the dynamic
// loader's diagnostic.
func (b *Bridge) Open(path string) (*Library, error) {
	if path == "" {
		return nil, newError(KindInvalidArgument, "open", "empty library path")
	}
	var lastErr error
	for _, p := range b.candidates(path) {
		h, err := dlOpen(p)
		if err != nil {
			lastErr = err
			continue
		}
		lib := &Library{Path: path, Name: p, b: b, handle: h, callbacks: map[Address]*Callback{}}
		b.mu.Lock()
		b.libs[lib] = struct{}{}
		b.mu.Unlock()
		b.log.Debug("library opened", "path", path, "name", p)
		return lib, nil
	}
	return nil, wrapError(KindLoad, "open", lastErr, "cannot load %q", path)
}

// Symbol resolves name in lib.
func (b *Bridge) Symbol(lib *Library, name string) (Address, error) {
	if lib == nil {
		return 0, newError(KindInvalidArgument, "symbol", "nil library")
	}
	b.mu.Lock()
	_, open := b.libs[lib]
	b.mu.Unlock()
	if !open {
		return 0, newError(KindInvalidArgument, "symbol", "library %s is closed", lib.Name)
	}
	p, err := dlSym(lib.handle, name)
	if err != nil {
		return 0, wrapError(KindSymbolNotFound, "symbol", err, "%q not found in %s", name, lib.Name)
	}
	a := Address(p)
	b.mu.Lock()
	if _, open := b.libs[lib]; open {
		if b.symbols[a] == nil {
			b.symbols[a] = map[*Library]struct{}{}
		}
		b.symbols[a][lib] = struct{}{}
	}
	b.mu.Unlock()
	return a, nil
}

// CloseLibrary unloads lib and invalidates every symbol resolved from it.
// Callbacks are released per the bridge's ClosePolicy: CloseOwned releases
// the callbacks that were passed to lib's symbols, CloseAll releases all.
// Native code must not call any released trampoline afterwards.
func (b *Bridge) CloseLibrary(lib *Library) error {
	if lib == nil {
		return newError(KindInvalidArgument, "close", "nil library")
	}
	b.mu.Lock()
	if _, open := b.libs[lib]; !open {
		b.mu.Unlock()
		return newError(KindInvalidArgument, "close", "library %s already closed", lib.Name)
	}
	delete(b.libs, lib)
	for a, owners := range b.symbols {
		delete(owners, lib)
		if len(owners) == 0 {
			delete(b.symbols, a)
		}
	}
	var release []*Callback
	switch b.cfg.ClosePolicy {
	case CloseAll:
		for _, cb := range b.callbacks {
			release = append(release, cb)
		}
	default:
		for _, cb := range lib.callbacks {
			release = append(release, cb)
		}
	}
	for _, cb := range release {
		b.unregisterLocked(cb)
	}
	lib.callbacks = nil
	b.mu.Unlock()

	for _, cb := range release {
		cb.free()
	}
	b.log.Debug("library closed", "name", lib.Name, "released_callbacks", len(release))
	if err := dlClose(lib.handle); err != nil {
		return wrapError(KindLoad, "close", err, "cannot unload %s", lib.Name)
	}
	return nil
}
