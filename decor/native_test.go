package decor

import (
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/bnema/wldecor"
	"github.com/bnema/wldecor/libdecor"
)

func newNativeEnv(t *testing.T) (*env, *fakeDecor, *fakeLibrary, *Manager) {
	t.Helper()
	e := newEnv(t, envOpts{deco: true, sub: true})
	e.g.HelperDisplay = 0xD1
	fake := newFakeDecor()
	lib := newFakeLibrary(fake, true)
	opts := DefaultOptions()
	opts.AppID = "org.example.test"
	return e, fake, lib, NewManager(e.g, lib.loader(), nil, opts)
}

func selectNative(t *testing.T, m *Manager, win Window) *nativeStrategy {
	t.Helper()
	s, err := m.Select(win)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	ns, ok := s.(*nativeStrategy)
	if !ok {
		t.Fatalf("expected native strategy, got %s", s.Type())
	}
	return ns
}

func TestNativeDecorateSetsUpFrame(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})
	defer s.Destroy()

	got := strings.Join(fake.calls, ",")
	if got != "new,decorate,set_capabilities,map" {
		t.Fatalf("unexpected call sequence %s", got)
	}
	if fake.appID != "org.example.test" {
		t.Errorf("app id %q", fake.appID)
	}
	if fake.minW != 100 || fake.minH != 50 {
		t.Errorf("min size %dx%d", fake.minW, fake.minH)
	}
	iface := fake.ifaces[s.frame]
	if iface == nil || iface.Configure == 0 || iface.Close == 0 || iface.Commit == 0 {
		t.Fatalf("frame interface not filled: %+v", iface)
	}
	if callbackTokens.lookup(fake.tokens[s.frame]) != s {
		t.Fatal("user data does not map back to the strategy")
	}
}

func TestNativeConfigure(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	win := newFakeWindow(t, e, 1, 640, 400)
	s := selectNative(t, m, helperWindow{win})
	defer s.Destroy()

	fake.contentW, fake.contentH = 800, 600
	fake.windowState = libdecor.WindowStateActive | libdecor.WindowStateMaximized
	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])

	if len(win.resizes) != 1 || win.resizes[0] != [2]int32{800, 600} {
		t.Fatalf("expected one resize to 800x600, got %v", win.resizes)
	}
	if len(fake.commits) != 1 {
		t.Fatalf("expected one frame commit, got %d", len(fake.commits))
	}
	c := fake.commits[0]
	if c.configuration != 0xCF || c.width != 800 || c.height != 600 {
		t.Fatalf("unexpected commit %+v", c)
	}
	if len(fake.liveStates) != 0 {
		t.Fatal("state not freed after commit")
	}
	if s.WindowState()&libdecor.WindowStateMaximized == 0 {
		t.Fatal("window state not recorded")
	}

	// Restore leaves the maximized state reported by the configuration.
	s.Restore()
	if !strings.Contains(strings.Join(fake.calls, ","), "unset_maximized") {
		t.Fatal("Restore did not unset maximized")
	}
}

func TestNativeConfigureWithoutSizeKeepsCurrent(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	win := newFakeWindow(t, e, 1, 640, 400)
	s := selectNative(t, m, helperWindow{win})
	defer s.Destroy()

	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])

	if len(win.resizes) != 1 || win.resizes[0] != [2]int32{640, 400} {
		t.Fatalf("expected a resize to the current size, got %v", win.resizes)
	}
	if len(fake.commits) != 1 || fake.commits[0].width != 640 {
		t.Fatalf("unexpected commits %+v", fake.commits)
	}
}

func TestNativeCloseAndCommitCallbacks(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	win := newFakeWindow(t, e, 1, 640, 400)
	s := selectNative(t, m, helperWindow{win})
	token := fake.tokens[s.frame]
	e.wire()

	onFrameClose(s.frame, token)
	if win.closeRequests != 1 {
		t.Fatalf("expected one close request, got %d", win.closeRequests)
	}

	onFrameCommit(s.frame, token)
	msgs := e.wire()
	if len(msgs) != 1 || msgs[0].Object != win.surface.ID() || msgs[0].Opcode != 6 {
		t.Fatalf("expected a main surface commit, got %+v", msgs)
	}

	// Callbacks for a destroyed frame are dropped.
	frame := s.frame
	s.Destroy()
	onFrameClose(frame, token)
	onFrameConfigure(frame, 0xCF, token)
	if win.closeRequests != 1 || len(win.resizes) != 0 {
		t.Fatal("callback reached a destroyed strategy")
	}
}

func TestNativeResizeCommitsState(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})
	defer s.Destroy()

	s.Resize(800, 500)
	if len(fake.commits) != 0 {
		t.Fatal("committed before the first configure")
	}
	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])
	if len(fake.commits) != 1 || fake.commits[0].width != 800 {
		t.Fatalf("configure did not use the recorded size: %+v", fake.commits)
	}

	s.Resize(1024, 768)
	s.Resize(0, 768)
	if len(fake.commits) != 2 {
		t.Fatalf("expected two commits, got %d", len(fake.commits))
	}
	if c := fake.commits[1]; c.configuration != 0 || c.width != 1024 || c.height != 768 {
		t.Fatalf("unexpected commit %+v", c)
	}
	if len(fake.liveStates) != 0 {
		t.Fatal("state leaked")
	}
}

func TestNativeWindowOperations(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})

	s.SetTitle("hello")
	s.SetMinimized()
	s.SetMaximized()
	s.SetFullscreen(nil)
	if fake.title != "hello" {
		t.Errorf("title %q", fake.title)
	}
	got := strings.Join(fake.calls[4:], ",")
	if got != "set_minimized,set_maximized,set_fullscreen" {
		t.Errorf("unexpected calls %s", got)
	}

	s.Destroy()
	n := len(fake.calls)
	s.SetTitle("after")
	s.SetMaximized()
	s.Resize(10, 10)
	if len(fake.calls) != n || fake.title != "hello" {
		t.Fatal("calls after Destroy reached libdecor")
	}
}

func TestNativeSharedContextLifetime(t *testing.T) {
	e, fake, lib, m := newNativeEnv(t)
	before := callbackTokens.count()

	a := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})
	b := selectNative(t, m, helperWindow{newFakeWindow(t, e, 2, 320, 200)})
	if fake.contexts != 1 || m.helper == nil || m.helper.refs != 2 {
		t.Fatalf("expected one shared context with two refs")
	}
	if callbackTokens.count() != before+2 {
		t.Fatalf("expected two live tokens")
	}

	a.Destroy()
	a.Destroy()
	if fake.contexts != 1 || m.helper.refs != 1 {
		t.Fatal("context released while a frame is alive")
	}

	b.Destroy()
	if fake.contexts != 0 || m.helper != nil {
		t.Fatal("context not released after the last frame")
	}
	if callbackTokens.count() != before {
		t.Fatalf("tokens leaked: %d live, want %d", callbackTokens.count(), before)
	}

	calls := strings.Join(fake.calls, ",")
	if !strings.HasSuffix(calls, "frame_unref,unref") {
		t.Fatalf("context must be released after its last frame: %s", calls)
	}

	m.Close()
	m.Close()
	if lib.closed != 1 {
		t.Fatalf("expected the library closed once, got %d", lib.closed)
	}

	// A new window after the context went away gets a fresh one.
	m2 := NewManager(e.g, newFakeLibrary(fake, true).loader(), nil, DefaultOptions())
	c := selectNative(t, m2, helperWindow{newFakeWindow(t, e, 3, 10, 10)})
	if fake.contexts != 1 {
		t.Fatal("expected a fresh context")
	}
	c.Destroy()
}

func TestManagerDispatch(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	if err := m.Dispatch(); err != nil || len(fake.calls) != 0 {
		t.Fatal("Dispatch without a context must do nothing")
	}

	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})
	defer s.Destroy()
	if err := m.Dispatch(); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fake.calls[len(fake.calls)-1] != "dispatch" {
		t.Fatal("libdecor_dispatch not called")
	}
}

func TestContextErrorIsLogged(t *testing.T) {
	buf := captureLog(t)
	msg := []byte("no xdg_wm_base\x00")
	onContextError(0xC0, libdecor.ErrorCompositorIncompatible, uintptr(unsafe.Pointer(&msg[0])))
	runtime.KeepAlive(msg)
	if !strings.Contains(buf.String(), "compositor incompatible: no xdg_wm_base") {
		t.Fatalf("unexpected log %q", buf.String())
	}
}

func TestNativeConfigureCommitsFrameBeforeContent(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	win := newFakeWindow(t, e, 1, 640, 400)
	win.onContentCommit = func() { fake.calls = append(fake.calls, "content_commit") }
	s := selectNative(t, m, helperWindow{win})
	defer s.Destroy()

	fake.contentW, fake.contentH = 800, 600
	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])

	frameAt, contentAt := -1, -1
	for i, c := range fake.calls {
		switch c {
		case "frame_commit":
			frameAt = i
		case "content_commit":
			contentAt = i
		}
	}
	if frameAt < 0 || contentAt < 0 || frameAt > contentAt {
		t.Fatalf("frame commit must ack the configuration before the content commit: %s", strings.Join(fake.calls, ","))
	}
}

func TestCloseWaitsForLiveFrames(t *testing.T) {
	e, fake, lib, m := newNativeEnv(t)
	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 1, 640, 400)})

	m.Close()
	if lib.closed != 0 {
		t.Fatal("library closed while a frame is alive")
	}
	if err := m.Dispatch(); err != nil {
		t.Fatalf("Dispatch after Close: %v", err)
	}
	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])
	s.Resize(800, 600)
	if len(fake.commits) != 2 {
		t.Fatalf("frame stopped working after Close: %d commits", len(fake.commits))
	}

	// A closed manager does not hand out new native frames.
	other, err := m.Select(helperWindow{newFakeWindow(t, e, 2, 10, 10)})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if other.Type() == NativeHelper {
		t.Fatal("native tier selected after Close")
	}
	other.Destroy()

	s.Destroy()
	if lib.closed != 1 || fake.contexts != 0 {
		t.Fatalf("expected the library closed after the last frame, closed %d, contexts %d", lib.closed, fake.contexts)
	}
	if err := m.Dispatch(); err != nil {
		t.Fatalf("Dispatch after the last frame: %v", err)
	}
	s.Destroy()
	m.Close()
	if lib.closed != 1 {
		t.Fatalf("library closed %d times", lib.closed)
	}
}

func TestSharedLoaderOutlivesOneManager(t *testing.T) {
	e, fake, lib, _ := newNativeEnv(t)
	loader := lib.loader()
	a := NewManager(e.g, loader, nil, DefaultOptions())
	b := NewManager(e.g, loader, nil, DefaultOptions())

	s := selectNative(t, b, helperWindow{newFakeWindow(t, e, 1, 640, 400)})
	a.Close()
	if lib.closed != 0 || !loader.Available() {
		t.Fatal("closing one manager unloaded a library another one uses")
	}
	onFrameConfigure(s.frame, 0xCF, fake.tokens[s.frame])
	if len(fake.commits) != 1 {
		t.Fatal("configure did not reach the other manager's frame")
	}

	s.Destroy()
	b.Close()
	if lib.closed != 1 {
		t.Fatalf("expected the library closed once, got %d", lib.closed)
	}
}

func TestNativeCommitCallbackLogsFailure(t *testing.T) {
	e, fake, _, m := newNativeEnv(t)
	s := selectNative(t, m, helperWindow{newFakeWindow(t, e, 9, 640, 400)})
	defer s.Destroy()

	buf := captureLog(t)
	_ = e.d.Context().Close()
	onFrameCommit(s.frame, fake.tokens[s.frame])
	if !strings.Contains(buf.String(), "window 9: commit: "+wldecor.ErrContextClosed.Error()) {
		t.Fatalf("commit failure not logged: %q", buf.String())
	}
}
