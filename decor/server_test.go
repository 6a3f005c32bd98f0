package decor

import (
	"strings"
	"testing"

	"github.com/bnema/wldecor"
	"github.com/bnema/wldecor/wltest"
)

func TestServerRequestsServerSide(t *testing.T) {
	e := newEnv(t, envOpts{deco: true})
	win := newFakeWindow(t, e, 1, 640, 400)
	s, err := newServerStrategy(e.g.DecorationManager, win)
	if err != nil {
		t.Fatalf("newServerStrategy: %v", err)
	}
	defer s.Destroy()

	msgs := e.wire()
	get := wltest.Filter(msgs, e.g.DecorationManager.ID())
	if len(get) != 1 || get[0].Opcode != 1 {
		t.Fatalf("expected get_toplevel_decoration, got %+v", get)
	}
	r := get[0].Reader()
	if r.Uint32() != s.deco.ID() || r.Uint32() != win.toplevel.ID() {
		t.Fatal("get_toplevel_decoration arguments wrong")
	}
	set := wltest.Filter(msgs, s.deco.ID())
	if len(set) != 1 || set[0].Opcode != 1 || set[0].Reader().Uint32() != uint32(wldecor.DecorationModeServerSide) {
		t.Fatalf("expected set_mode(server_side), got %+v", set)
	}
}

func TestServerGranted(t *testing.T) {
	buf := captureLog(t)
	e := newEnv(t, envOpts{deco: true})
	s, _ := newServerStrategy(e.g.DecorationManager, newFakeWindow(t, e, 1, 640, 400))
	defer s.Destroy()
	e.wire()

	e.peer.Send(s.deco.ID(), 0, uint32(wldecor.DecorationModeServerSide))
	if err := e.d.Dispatch(); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.Granted() != wldecor.DecorationModeServerSide {
		t.Fatalf("granted %s", s.Granted())
	}
	if strings.Contains(buf.String(), "rejected") {
		t.Fatalf("unexpected warning %q", buf.String())
	}
}

func TestServerRejectedModeIsLoggedOnly(t *testing.T) {
	buf := captureLog(t)
	e := newEnv(t, envOpts{deco: true, sub: true})
	m := NewManager(e.g, nil, nil, DefaultOptions())
	st, err := m.Select(newFakeWindow(t, e, 3, 640, 400))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	defer st.Destroy()
	s := st.(*serverStrategy)
	e.wire()

	e.peer.Send(s.deco.ID(), 0, uint32(wldecor.DecorationModeClientSide))
	e.peer.Send(s.deco.ID(), 0, uint32(wldecor.DecorationModeClientSide))
	for i := 0; i < 2; i++ {
		if err := e.d.Dispatch(); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	if st.Type() != CompositorDrawn {
		t.Fatalf("strategy changed tier to %s", st.Type())
	}
	if n := strings.Count(buf.String(), ErrCompositorRejectedMode.Error()); n != 1 {
		t.Fatalf("expected one rejection warning, got %d in %q", n, buf.String())
	}
	if s.Granted() != wldecor.DecorationModeClientSide {
		t.Fatalf("granted %s", s.Granted())
	}
	// No self-drawn objects were created in response.
	if msgs := e.wire(); len(msgs) != 0 {
		t.Fatalf("rejection caused %d requests", len(msgs))
	}
}

func TestServerNoOpsAndDestroy(t *testing.T) {
	e := newEnv(t, envOpts{deco: true})
	s, _ := newServerStrategy(e.g.DecorationManager, newFakeWindow(t, e, 1, 640, 400))
	e.wire()

	s.SetTitle("t")
	s.SetMinimized()
	s.SetMaximized()
	s.SetFullscreen(nil)
	s.Restore()
	s.Resize(10, 10)
	if msgs := e.wire(); len(msgs) != 0 {
		t.Fatalf("no-op operations sent %d requests", len(msgs))
	}

	s.Destroy()
	s.Destroy()
	msgs := e.wire()
	if len(msgs) != 1 || msgs[0].Object != s.deco.ID() || msgs[0].Opcode != 0 {
		t.Fatalf("expected a single destroy, got %+v", msgs)
	}
}

func TestServerRequiresManagerAndToplevel(t *testing.T) {
	e := newEnv(t, envOpts{deco: true})
	if _, err := newServerStrategy(nil, newFakeWindow(t, e, 1, 10, 10)); err == nil {
		t.Fatal("expected an error without a decoration manager")
	}
	win := newFakeWindow(t, e, 2, 10, 10)
	win.toplevel = nil
	if _, err := newServerStrategy(e.g.DecorationManager, win); err == nil {
		t.Fatal("expected an error without a toplevel")
	}
}
