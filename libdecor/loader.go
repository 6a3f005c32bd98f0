// Package libdecor loads libdecor at runtime and exposes its entry points as
// a typed function table. Nothing links against libdecor at build time; when
// the library or one of its critical symbols is missing the loader reports
// itself unavailable and callers fall back to another decoration mechanism.
package libdecor

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

var (
	// ErrUnavailable means libdecor cannot be used in this process.
	ErrUnavailable = errors.New("libdecor: unavailable")

	// ErrLibraryNotFound means none of the candidate names could be opened.
	ErrLibraryNotFound = errors.New("libdecor: library not found")

	// ErrMissingSymbol means a critical entry point did not resolve.
	ErrMissingSymbol = errors.New("libdecor: missing critical symbol")
)

// DefaultNames are the sonames probed when no names are configured.
var DefaultNames = []string{"libdecor-0.so.0", "libdecor-0.so"}

// Library opens shared objects and resolves their symbols.
type Library interface {
	Open(name string) (uintptr, error)
	Lookup(handle uintptr, name string) (uintptr, error)
	Close(handle uintptr) error
}

// dl resolves through the dynamic linker via purego.
type dl struct{}

func (dl) Open(name string) (uintptr, error) {
	return purego.Dlopen(name, purego.RTLD_LAZY|purego.RTLD_LOCAL)
}

func (dl) Lookup(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func (dl) Close(handle uintptr) error {
	return purego.Dlclose(handle)
}

// Symbols is the libdecor function table. Fields are nil until Load resolves
// them; non-critical fields may stay nil after a successful Load.
type Symbols struct {
	New      func(display uintptr, iface unsafe.Pointer) uintptr
	Unref    func(ctx uintptr)
	Dispatch func(ctx uintptr, timeout int32) int32
	Decorate func(ctx, surface uintptr, iface unsafe.Pointer, userData uintptr) uintptr

	FrameUnref             func(frame uintptr)
	FrameSetTitle          func(frame uintptr, title string)
	FrameSetAppID          func(frame uintptr, appID string)
	FrameSetMinimized      func(frame uintptr)
	FrameSetMaximized      func(frame uintptr)
	FrameUnsetMaximized    func(frame uintptr)
	FrameSetFullscreen     func(frame, output uintptr)
	FrameUnsetFullscreen   func(frame uintptr)
	FrameSetCapabilities   func(frame uintptr, capabilities uint32)
	FrameSetMinContentSize func(frame uintptr, width, height int32)
	FrameMap               func(frame uintptr)
	FrameCommit            func(frame, state, configuration uintptr)

	StateNew  func(width, height int32) uintptr
	StateFree func(state uintptr)

	ConfigurationGetContentSize func(configuration, frame uintptr, width, height *int32) bool
	ConfigurationGetWindowState func(configuration uintptr, state *uint32) bool
}

type symbol struct {
	name     string
	critical bool
	fn       func(s *Symbols) any
}

// symbolTable lists every entry point Load resolves. Critical ones are those
// without which a frame cannot be created, committed, or released.
var symbolTable = []symbol{
	{"libdecor_new", true, func(s *Symbols) any { return &s.New }},
	{"libdecor_unref", true, func(s *Symbols) any { return &s.Unref }},
	{"libdecor_dispatch", true, func(s *Symbols) any { return &s.Dispatch }},
	{"libdecor_decorate", true, func(s *Symbols) any { return &s.Decorate }},
	{"libdecor_frame_unref", true, func(s *Symbols) any { return &s.FrameUnref }},
	{"libdecor_frame_set_title", false, func(s *Symbols) any { return &s.FrameSetTitle }},
	{"libdecor_frame_set_app_id", false, func(s *Symbols) any { return &s.FrameSetAppID }},
	{"libdecor_frame_set_minimized", false, func(s *Symbols) any { return &s.FrameSetMinimized }},
	{"libdecor_frame_set_maximized", false, func(s *Symbols) any { return &s.FrameSetMaximized }},
	{"libdecor_frame_unset_maximized", false, func(s *Symbols) any { return &s.FrameUnsetMaximized }},
	{"libdecor_frame_set_fullscreen", false, func(s *Symbols) any { return &s.FrameSetFullscreen }},
	{"libdecor_frame_unset_fullscreen", false, func(s *Symbols) any { return &s.FrameUnsetFullscreen }},
	{"libdecor_frame_set_capabilities", false, func(s *Symbols) any { return &s.FrameSetCapabilities }},
	{"libdecor_frame_set_min_content_size", false, func(s *Symbols) any { return &s.FrameSetMinContentSize }},
	{"libdecor_frame_map", false, func(s *Symbols) any { return &s.FrameMap }},
	{"libdecor_frame_commit", true, func(s *Symbols) any { return &s.FrameCommit }},
	{"libdecor_state_new", true, func(s *Symbols) any { return &s.StateNew }},
	{"libdecor_state_free", true, func(s *Symbols) any { return &s.StateFree }},
	{"libdecor_configuration_get_content_size", false, func(s *Symbols) any { return &s.ConfigurationGetContentSize }},
	{"libdecor_configuration_get_window_state", false, func(s *Symbols) any { return &s.ConfigurationGetWindowState }},
}

// Loader owns the libdecor handle for the process. Load is attempted once;
// a failure is permanent for the process.
type Loader struct {
	lib   Library
	names []string
	bind  func(fptr any, addr uintptr)

	mu        sync.Mutex
	attempted bool
	available bool
	handle    uintptr
	resolved  map[string]uintptr
	err       error
	users     int

	// Syms is the typed function table. Only read it after Available reports true.
	Syms Symbols
}

// Option configures a Loader
type Option func(*Loader)

// WithNames sets the sonames or paths to probe, in order
func WithNames(names ...string) Option {
	return func(l *Loader) {
		if len(names) > 0 {
			l.names = names
		}
	}
}

// WithSearchDir probes dir before the default linker search path
func WithSearchDir(dir string) Option {
	return func(l *Loader) {
		if dir == "" {
			return
		}
		var names []string
		for _, n := range l.names {
			names = append(names, filepath.Join(dir, n))
		}
		l.names = append(names, l.names...)
	}
}

// WithLibrary replaces the dynamic linker, typically with a fake in tests.
// The fake's addresses are never called unless bind is also replaced.
func WithLibrary(lib Library, bind func(fptr any, addr uintptr)) Option {
	return func(l *Loader) {
		l.lib = lib
		if bind != nil {
			l.bind = bind
		}
	}
}

// NewLoader creates a loader; nothing is opened until Load.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		lib:   dl{},
		names: DefaultNames,
		bind:  purego.RegisterFunc,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	sharedOnce   sync.Once
	sharedLoader *Loader
)

// Shared returns the process-wide loader. Options only apply on the first call.
func Shared(opts ...Option) *Loader {
	sharedOnce.Do(func() {
		sharedLoader = NewLoader(opts...)
	})
	return sharedLoader
}

// Load opens the library and resolves the symbol table. It returns true when
// every critical symbol resolved. Calls after the first return the same result.
func (l *Loader) Load() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attempted {
		return l.available
	}
	l.attempted = true

	handle, name, err := l.open()
	if err != nil {
		l.err = err
		log.Printf("libdecor: %v", err)
		return false
	}

	var syms Symbols
	resolved := make(map[string]uintptr, len(symbolTable))
	for _, s := range symbolTable {
		addr, err := l.lib.Lookup(handle, s.name)
		if err != nil || addr == 0 {
			if s.critical {
				l.err = errors.Wrapf(ErrMissingSymbol, "%s in %s", s.name, name)
				log.Printf("libdecor: %v", l.err)
				_ = l.lib.Close(handle)
				return false
			}
			log.Printf("libdecor: optional symbol %s not found in %s", s.name, name)
			continue
		}
		l.bind(s.fn(&syms), addr)
		resolved[s.name] = addr
	}

	l.handle = handle
	l.resolved = resolved
	l.Syms = syms
	l.available = true
	return true
}

func (l *Loader) open() (uintptr, string, error) {
	for _, name := range l.names {
		if filepath.IsAbs(name) {
			if _, err := os.Stat(name); err != nil {
				continue
			}
		}
		handle, err := l.lib.Open(name)
		if err == nil && handle != 0 {
			return handle, name, nil
		}
	}
	return 0, "", errors.Wrapf(ErrLibraryNotFound, "tried %v", l.names)
}

// Available reports whether Load succeeded
func (l *Loader) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// Err returns why Load failed, or nil once the library is usable
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.available {
		return nil
	}
	if l.err == nil {
		return ErrUnavailable
	}
	return l.err
}

// Resolved reports whether the named symbol resolved
func (l *Loader) Resolved(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.resolved[name]
	return ok
}

// Table returns a copy of the function table. The copy stays callable after
// Unload clears Syms, as long as the library itself is still open.
func (l *Loader) Table() Symbols {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Syms
}

// Retain registers a user of the library. Every Retain is matched by one
// Release, and the last Release unloads.
func (l *Loader) Retain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users++
}

// Release drops a user added by Retain. Extra calls are ignored.
func (l *Loader) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.users == 0 {
		return
	}
	l.users--
	if l.users == 0 {
		l.unload()
	}
}

// Unload closes the library and clears the function table. It is safe to
// call when nothing is loaded, and more than once. Load does not reopen the
// library afterwards.
func (l *Loader) Unload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unload()
}

func (l *Loader) unload() {
	if l.handle != 0 {
		if err := l.lib.Close(l.handle); err != nil {
			log.Printf("libdecor: close: %v", err)
		}
	}
	l.handle = 0
	l.resolved = nil
	l.Syms = Symbols{}
	l.available = false
}
