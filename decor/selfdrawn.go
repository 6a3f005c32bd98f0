package decor

import (
	"encoding/binary"
	"log"

	"github.com/bnema/wldecor"
	"github.com/pkg/errors"
)

// rect is a region's placement relative to the main surface origin.
type rect struct {
	X, Y, Width, Height int32
}

// borderLayout places the four decoration regions around a width x height
// main surface.
func borderLayout(width, height, titleBarHeight, borderWidth int32) [4]rect {
	var r [4]rect
	r[RoleTitleBar] = rect{0, -titleBarHeight, width, titleBarHeight}
	r[RoleLeftBorder] = rect{-borderWidth, -titleBarHeight, borderWidth, height + titleBarHeight}
	r[RoleRightBorder] = rect{width, -titleBarHeight, borderWidth, height + titleBarHeight}
	r[RoleBottomBorder] = rect{-borderWidth, height, width + 2*borderWidth, borderWidth}
	return r
}

// region is one decoration sub-surface. dest is the last placement committed.
type region struct {
	role     Role
	surface  *wldecor.Surface
	sub      *wldecor.Subsurface
	viewport *wldecor.Viewport
	dest     rect
}

// selfStrategy draws the title bar and borders itself as four synchronized
// sub-surfaces sharing one 1x1 buffer scaled by wp_viewport.
type selfStrategy struct {
	win    Window
	router InputRouter
	opts   Options

	buffer  *wldecor.Buffer
	regions [4]*region
	title   string

	width, height int32
	registered    bool
	hidden        bool
	destroyed     bool
}

func newSelfStrategy(g Globals, win Window, router InputRouter, opts Options) (s *selfStrategy, err error) {
	if g.Subcompositor == nil || g.Shm == nil || g.Compositor == nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, "wl_subcompositor and wl_shm are required")
	}

	s = &selfStrategy{win: win, router: router, opts: opts}
	defer func() {
		if err != nil {
			s.Destroy()
			s = nil
		}
	}()

	if s.buffer, err = createPixelBuffer(g.Shm, opts.BorderColor); err != nil {
		return nil, err
	}

	main := win.MainSurface()
	if g.Viewporter == nil {
		log.Printf("decor: window %d: no wp_viewporter, decoration regions stay 1x1", win.ID())
	}
	for _, role := range []Role{RoleTitleBar, RoleLeftBorder, RoleRightBorder, RoleBottomBorder} {
		r, err := createRegion(g, main, role, s.buffer)
		if r != nil {
			s.regions[role] = r
		}
		if err != nil {
			return nil, err
		}
	}

	if router != nil {
		for _, r := range s.regions {
			router.RegisterDecorationSurface(r.surface, win.ID(), r.role)
		}
		s.registered = true
	}

	s.Resize(win.Size())
	return s, nil
}

// createPixelBuffer builds the shared 1x1 ARGB8888 buffer. The temporary fd
// and pool are released before returning; the buffer keeps the memory alive.
func createPixelBuffer(shm *wldecor.Shm, color uint32) (*wldecor.Buffer, error) {
	const size = 4
	mem, err := wldecor.NewSharedMemory(size)
	if err != nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}
	defer mem.Close()

	binary.LittleEndian.PutUint32(mem.Data(), color)
	if err := mem.Unmap(); err != nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}

	pool, err := shm.CreatePool(mem.FD(), size)
	if err != nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}
	defer pool.Destroy()

	buffer, err := pool.CreateBuffer(0, 1, 1, size, wldecor.FormatARGB8888)
	if err != nil {
		return nil, errors.Wrap(ErrObjectCreationFailed, err.Error())
	}
	return buffer, nil
}

// createRegion returns the partially built region alongside an error so the
// caller can release it.
func createRegion(g Globals, main *wldecor.Surface, role Role, buffer *wldecor.Buffer) (*region, error) {
	surface, err := g.Compositor.CreateSurface()
	if err != nil {
		return nil, errors.Wrapf(ErrObjectCreationFailed, "%s surface: %v", role, err)
	}
	r := &region{role: role, surface: surface}

	if r.sub, err = g.Subcompositor.GetSubsurface(surface, main); err != nil {
		return r, errors.Wrapf(ErrObjectCreationFailed, "%s subsurface: %v", role, err)
	}
	if err = r.sub.SetSync(); err != nil {
		return r, errors.Wrapf(ErrObjectCreationFailed, "%s set_sync: %v", role, err)
	}
	if g.Viewporter != nil {
		if r.viewport, err = g.Viewporter.GetViewport(surface); err != nil {
			return r, errors.Wrapf(ErrObjectCreationFailed, "%s viewport: %v", role, err)
		}
	}
	if err = surface.Attach(buffer, 0, 0); err != nil {
		return r, errors.Wrapf(ErrObjectCreationFailed, "%s attach: %v", role, err)
	}
	if err = surface.Commit(); err != nil {
		return r, errors.Wrapf(ErrObjectCreationFailed, "%s commit: %v", role, err)
	}
	return r, nil
}

func (s *selfStrategy) Type() Type { return SelfDrawn }

// SetTitle records the title. It is not drawn.
func (s *selfStrategy) SetTitle(title string) {
	s.title = title
}

func (s *selfStrategy) SetMinimized() {}
func (s *selfStrategy) SetMaximized() {}

// Resize moves every region around the new size, commits each one, then
// commits the main surface once so all placements land together.
func (s *selfStrategy) Resize(width, height int32) {
	if s.destroyed || width <= 0 || height <= 0 {
		return
	}
	s.width, s.height = width, height
	if s.hidden {
		return
	}

	layout := borderLayout(width, height, s.opts.TitleBarHeight, s.opts.BorderWidth)
	for _, r := range s.regions {
		dest := layout[r.role]
		if err := r.sub.SetPosition(dest.X, dest.Y); err != nil {
			log.Printf("decor: window %d: %s position: %v", s.win.ID(), r.role, err)
			continue
		}
		if r.viewport != nil {
			if err := r.viewport.SetDestination(dest.Width, dest.Height); err != nil {
				log.Printf("decor: window %d: %s destination: %v", s.win.ID(), r.role, err)
				continue
			}
		}
		s.check(r.role.String()+" commit", r.surface.Commit())
		r.dest = dest
	}
	s.check("commit", s.win.MainSurface().Commit())
}

func (s *selfStrategy) check(what string, err error) {
	if err != nil {
		log.Printf("decor: window %d: %s: %v", s.win.ID(), what, err)
	}
}

// SetFullscreen hides the regions by detaching their buffer.
func (s *selfStrategy) SetFullscreen(*wldecor.Output) {
	if s.destroyed || s.hidden {
		return
	}
	s.hidden = true
	for _, r := range s.regions {
		s.check(r.role.String()+" detach", r.surface.Attach(nil, 0, 0))
		s.check(r.role.String()+" commit", r.surface.Commit())
	}
	s.check("commit", s.win.MainSurface().Commit())
}

// Restore shows the regions again at the current size.
func (s *selfStrategy) Restore() {
	if s.destroyed || !s.hidden {
		return
	}
	s.hidden = false
	for _, r := range s.regions {
		s.check(r.role.String()+" attach", r.surface.Attach(s.buffer, 0, 0))
		s.check(r.role.String()+" commit", r.surface.Commit())
	}
	s.Resize(s.width, s.height)
}

// Destroy unregisters the regions from the input router before any of their
// surfaces go away, then releases sub-surfaces, viewports, surfaces and
// finally the shared buffer.
func (s *selfStrategy) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	if s.registered {
		for _, r := range s.regions {
			s.router.UnregisterDecorationSurface(r.surface)
		}
	}
	for _, r := range s.regions {
		if r != nil && r.sub != nil {
			s.check(r.role.String()+" subsurface destroy", r.sub.Destroy())
		}
	}
	for _, r := range s.regions {
		if r != nil && r.viewport != nil {
			s.check(r.role.String()+" viewport destroy", r.viewport.Destroy())
		}
	}
	for _, r := range s.regions {
		if r != nil {
			s.check(r.role.String()+" surface destroy", r.surface.Destroy())
		}
	}
	if s.buffer != nil {
		s.check("buffer destroy", s.buffer.Destroy())
	}
}
