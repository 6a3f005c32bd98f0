package decor

import (
	"log"
	"runtime"
	"sync"
	"unsafe"

	"github.com/bnema/wldecor"
	"github.com/bnema/wldecor/libdecor"
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// newCallback turns a Go func into a C function pointer. Pointers are never
// released, so they are created once per process.
var newCallback = purego.NewCallback

type nativeCallbackSet struct {
	contextError   uintptr
	frameConfigure uintptr
	frameClose     uintptr
	frameCommit    uintptr
}

var (
	nativeCallbacksOnce sync.Once
	nativeCallbacksSet  nativeCallbackSet
)

func nativeCallbacks() nativeCallbackSet {
	nativeCallbacksOnce.Do(func() {
		nativeCallbacksSet = nativeCallbackSet{
			contextError:   newCallback(onContextError),
			frameConfigure: newCallback(onFrameConfigure),
			frameClose:     newCallback(onFrameClose),
			frameCommit:    newCallback(onFrameCommit),
		}
	})
	return nativeCallbacksSet
}

func onContextError(ctx, code, message uintptr) {
	log.Printf("decor: libdecor error: %s: %s", libdecor.ErrorString(uint32(code)), libdecor.GoString(message))
}

func onFrameConfigure(frame, configuration, userData uintptr) {
	if s := callbackTokens.lookup(userData); s != nil && s.frame == frame {
		s.configure(configuration)
	}
}

func onFrameClose(frame, userData uintptr) {
	if s := callbackTokens.lookup(userData); s != nil && s.frame == frame {
		s.win.HandleCloseRequest()
	}
}

func onFrameCommit(frame, userData uintptr) {
	if s := callbackTokens.lookup(userData); s != nil && s.frame == frame {
		if err := s.win.MainSurface().Commit(); err != nil {
			log.Printf("decor: window %d: commit: %v", s.win.ID(), err)
		}
	}
}

// helperContext is the libdecor context shared by every NativeHelper window
// of a Manager. The interface table it was created with stays pinned until
// the last window releases it. syms is its own copy of the function table,
// so unloading elsewhere cannot pull it from under live frames.
type helperContext struct {
	syms   libdecor.Symbols
	handle uintptr
	iface  *libdecor.Interface
	pin    runtime.Pinner
	refs   int
}

func (m *Manager) acquireHelper() (*helperContext, error) {
	if m.helper == nil {
		if m.globals.HelperDisplay == 0 {
			return nil, errors.Wrap(ErrObjectCreationFailed, "no libwayland display for libdecor")
		}
		h := &helperContext{
			syms:  m.loader.Table(),
			iface: &libdecor.Interface{Error: nativeCallbacks().contextError},
		}
		h.pin.Pin(h.iface)
		h.handle = h.syms.New(m.globals.HelperDisplay, unsafe.Pointer(h.iface))
		if h.handle == 0 {
			h.pin.Unpin()
			return nil, errors.Wrap(ErrObjectCreationFailed, "libdecor_new")
		}
		m.helper = h
	}
	m.helper.refs++
	return m.helper, nil
}

func (m *Manager) releaseHelper(h *helperContext) {
	h.refs--
	if h.refs > 0 {
		return
	}
	h.syms.Unref(h.handle)
	h.handle = 0
	h.pin.Unpin()
	if m.helper == h {
		m.helper = nil
	}
	if m.closed {
		m.releaseLoader()
	}
}

// nativeStrategy wraps a libdecor frame.
type nativeStrategy struct {
	win  Window
	mgr  *Manager
	ctx  *helperContext
	syms *libdecor.Symbols

	frame uintptr
	iface *libdecor.FrameInterface
	pin   runtime.Pinner
	token uintptr

	width, height int32
	state         uint32
	configured    bool
	destroyed     bool
}

func newNativeStrategy(m *Manager, win Window) (*nativeStrategy, error) {
	hw, ok := win.(HelperWindow)
	if !ok || hw.HelperSurface() == 0 {
		return nil, errors.Wrap(ErrObjectCreationFailed, "window has no libwayland surface")
	}

	ctx, err := m.acquireHelper()
	if err != nil {
		return nil, err
	}

	cb := nativeCallbacks()
	s := &nativeStrategy{
		win:  win,
		mgr:  m,
		ctx:  ctx,
		syms: &ctx.syms,
		iface: &libdecor.FrameInterface{
			Configure: cb.frameConfigure,
			Close:     cb.frameClose,
			Commit:    cb.frameCommit,
		},
	}
	s.width, s.height = win.Size()
	s.pin.Pin(s.iface)
	s.token = callbackTokens.acquire(s)

	s.frame = s.syms.Decorate(ctx.handle, hw.HelperSurface(), unsafe.Pointer(s.iface), s.token)
	if s.frame == 0 {
		callbackTokens.reclaim(s.token)
		s.pin.Unpin()
		m.releaseHelper(ctx)
		return nil, errors.Wrap(ErrObjectCreationFailed, "libdecor_decorate")
	}

	if fn := s.syms.FrameSetCapabilities; fn != nil {
		fn(s.frame, libdecor.ActionAll)
	}
	if fn := s.syms.FrameSetAppID; fn != nil && m.opts.AppID != "" {
		fn(s.frame, m.opts.AppID)
	}
	if ms, ok := win.(MinSizer); ok {
		if fn := s.syms.FrameSetMinContentSize; fn != nil {
			w, h := ms.MinSize()
			fn(s.frame, w, h)
		}
	}
	if fn := s.syms.FrameMap; fn != nil {
		fn(s.frame)
	}
	return s, nil
}

// configure applies a size proposed by libdecor. A configuration without a
// size keeps the current one. The frame commit acks the configuration, so it
// goes out before the window draws and commits at the new size.
func (s *nativeStrategy) configure(configuration uintptr) {
	if s.destroyed {
		return
	}
	width, height := s.width, s.height
	if fn := s.syms.ConfigurationGetContentSize; fn != nil {
		var w, h int32
		if fn(configuration, s.frame, &w, &h) && w > 0 && h > 0 {
			width, height = w, h
		}
	}
	if fn := s.syms.ConfigurationGetWindowState; fn != nil {
		var state uint32
		if fn(configuration, &state) {
			s.state = state
		}
	}
	if width <= 0 || height <= 0 {
		log.Printf("decor: window %d: configure without a usable size", s.win.ID())
		return
	}

	s.width, s.height = width, height
	s.commitState(configuration)
	s.configured = true
	s.win.HandleResize(width, height)
}

func (s *nativeStrategy) commitState(configuration uintptr) {
	state := s.syms.StateNew(s.width, s.height)
	if state == 0 {
		log.Printf("decor: window %d: libdecor_state_new failed", s.win.ID())
		return
	}
	s.syms.FrameCommit(s.frame, state, configuration)
	s.syms.StateFree(state)
}

// WindowState returns the libdecor window state bits of the last configure.
func (s *nativeStrategy) WindowState() uint32 {
	return s.state
}

func (s *nativeStrategy) Type() Type { return NativeHelper }

func (s *nativeStrategy) SetTitle(title string) {
	if fn := s.syms.FrameSetTitle; fn != nil && !s.destroyed {
		fn(s.frame, title)
	}
}

func (s *nativeStrategy) SetMinimized() {
	if fn := s.syms.FrameSetMinimized; fn != nil && !s.destroyed {
		fn(s.frame)
	}
}

func (s *nativeStrategy) SetMaximized() {
	if fn := s.syms.FrameSetMaximized; fn != nil && !s.destroyed {
		fn(s.frame)
	}
}

// SetFullscreen lets the compositor pick the output; libdecor needs a
// libwayland wl_output that this client does not have.
func (s *nativeStrategy) SetFullscreen(*wldecor.Output) {
	if fn := s.syms.FrameSetFullscreen; fn != nil && !s.destroyed {
		fn(s.frame, 0)
	}
}

func (s *nativeStrategy) Restore() {
	if s.destroyed {
		return
	}
	if s.state&libdecor.WindowStateFullscreen != 0 {
		if fn := s.syms.FrameUnsetFullscreen; fn != nil {
			fn(s.frame)
		}
	}
	if s.state&libdecor.WindowStateMaximized != 0 {
		if fn := s.syms.FrameUnsetMaximized; fn != nil {
			fn(s.frame)
		}
	}
}

// Resize commits a one-shot state of the new size. Before the first
// configure the size is only recorded; libdecor proposes one soon after.
func (s *nativeStrategy) Resize(width, height int32) {
	if s.destroyed || width <= 0 || height <= 0 {
		return
	}
	s.width, s.height = width, height
	if s.configured {
		s.commitState(0)
	}
}

// Destroy releases the frame, then its interface table and callback token,
// then the shared context if this was its last frame.
func (s *nativeStrategy) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	s.syms.FrameUnref(s.frame)
	s.frame = 0
	s.pin.Unpin()
	callbackTokens.reclaim(s.token)
	s.mgr.releaseHelper(s.ctx)
}
