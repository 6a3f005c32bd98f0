package decor

import (
	"log"

	"github.com/bnema/wldecor"
	"github.com/pkg/errors"
)

// serverStrategy asks the compositor to draw decorations through
// zxdg_toplevel_decoration_v1. Title and window states live on the
// xdg_toplevel, which the window owns, so those calls are no-ops here.
type serverStrategy struct {
	win       Window
	deco      *wldecor.ToplevelDecoration
	display   *wldecor.Display
	requested wldecor.DecorationMode

	acknowledged bool
	destroyed    bool
}

func newServerStrategy(mgr *wldecor.DecorationManager, win Window) (*serverStrategy, error) {
	if mgr == nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, "no zxdg_decoration_manager_v1")
	}
	toplevel := win.Toplevel()
	if toplevel == nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, "window has no xdg_toplevel")
	}

	deco, err := mgr.GetToplevelDecoration(toplevel)
	if err != nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}

	s := &serverStrategy{
		win:       win,
		deco:      deco,
		display:   deco.Context().Display(),
		requested: wldecor.DecorationModeServerSide,
	}
	s.display.RegisterEventHandler(deco.ID(), 0, s.handleConfigure)

	if err := deco.SetMode(s.requested); err != nil {
		s.Destroy()
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}
	return s, nil
}

// handleConfigure runs once, on the compositor's first answer.
func (s *serverStrategy) handleConfigure(event *wldecor.Event) {
	granted := wldecor.DecorationMode(event.Uint32())
	s.acknowledged = true
	s.display.RemoveEventHandlers(s.deco.ID())

	if granted != s.requested {
		log.Printf("decor: window %d: %v: requested %s, granted %s; keeping compositor-drawn tier",
			s.win.ID(), ErrCompositorRejectedMode, s.requested, granted)
	}
}

// Granted returns the mode the compositor last configured, or none before
// the first configure.
func (s *serverStrategy) Granted() wldecor.DecorationMode {
	return s.deco.Mode()
}

func (s *serverStrategy) Type() Type { return CompositorDrawn }
func (s *serverStrategy) SetTitle(string) {}
func (s *serverStrategy) SetMinimized() {}
func (s *serverStrategy) SetMaximized() {}
func (s *serverStrategy) SetFullscreen(*wldecor.Output) {}
func (s *serverStrategy) Restore() {}
func (s *serverStrategy) Resize(int32, int32) {}

func (s *serverStrategy) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if !s.acknowledged {
		s.display.RemoveEventHandlers(s.deco.ID())
	}
	if err := s.deco.Destroy(); err != nil {
		log.Printf("decor: window %d: destroy decoration: %v", s.win.ID(), err)
	}
}
