package decor

import (
	"log"
	"sync"

	"github.com/bnema/wldecor"
)

// cornerSize is the length along a region's edge that starts a diagonal
// resize instead of a straight one.
const cornerSize = 16

type routedSurface struct {
	windowID uint64
	role     Role
}

// PointerRouter sends pointer input on self-drawn decoration surfaces to
// interactive move and resize, and everything else to Content.
type PointerRouter struct {
	seat    *wldecor.Seat
	lookup  func(id uint64) Window
	opts    Options
	Content wldecor.PointerListener

	mu      sync.Mutex
	regions map[uint32]routedSurface
	focus   uint32
	x, y    wldecor.Fixed
}

// NewPointerRouter creates a router. lookup resolves a window id to the
// window whose toplevel receives move and resize requests.
func NewPointerRouter(seat *wldecor.Seat, lookup func(id uint64) Window, opts Options) *PointerRouter {
	return &PointerRouter{
		seat:    seat,
		lookup:  lookup,
		opts:    opts,
		regions: make(map[uint32]routedSurface),
	}
}

func (r *PointerRouter) RegisterDecorationSurface(surface *wldecor.Surface, windowID uint64, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions[surface.ID()] = routedSurface{windowID: windowID, role: role}
}

func (r *PointerRouter) UnregisterDecorationSurface(surface *wldecor.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regions, surface.ID())
	if r.focus == surface.ID() {
		r.focus = 0
	}
}

// Registered reports how many decoration surfaces are routed.
func (r *PointerRouter) Registered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regions)
}

func (r *PointerRouter) decoration(surfaceID uint32) (routedSurface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.regions[surfaceID]
	return rs, ok
}

func (r *PointerRouter) PointerEnter(serial uint32, surfaceID uint32, x, y wldecor.Fixed) {
	r.mu.Lock()
	r.focus, r.x, r.y = surfaceID, x, y
	_, deco := r.regions[surfaceID]
	r.mu.Unlock()

	if !deco && r.Content != nil {
		r.Content.PointerEnter(serial, surfaceID, x, y)
	}
}

func (r *PointerRouter) PointerLeave(serial uint32, surfaceID uint32) {
	r.mu.Lock()
	if r.focus == surfaceID {
		r.focus = 0
	}
	_, deco := r.regions[surfaceID]
	r.mu.Unlock()

	if !deco && r.Content != nil {
		r.Content.PointerLeave(serial, surfaceID)
	}
}

func (r *PointerRouter) PointerMotion(time uint32, x, y wldecor.Fixed) {
	r.mu.Lock()
	r.x, r.y = x, y
	_, deco := r.regions[r.focus]
	r.mu.Unlock()

	if !deco && r.Content != nil {
		r.Content.PointerMotion(time, x, y)
	}
}

func (r *PointerRouter) PointerButton(serial, time, button, state uint32) {
	r.mu.Lock()
	focus, x, y := r.focus, r.x, r.y
	r.mu.Unlock()

	rs, ok := r.decoration(focus)
	if !ok {
		if r.Content != nil {
			r.Content.PointerButton(serial, time, button, state)
		}
		return
	}
	if button != wldecor.BtnLeft || state != wldecor.PointerButtonPressed {
		return
	}

	win := r.lookup(rs.windowID)
	if win == nil || win.Toplevel() == nil {
		return
	}
	width, height := win.Size()
	dest := borderLayout(width, height, r.opts.TitleBarHeight, r.opts.BorderWidth)[rs.role]

	move, edge := decorationAction(rs.role, int32(x.Float64()), int32(y.Float64()), dest.Width, dest.Height)
	var err error
	if move {
		err = win.Toplevel().Move(r.seat, serial)
	} else {
		err = win.Toplevel().Resize(r.seat, serial, edge)
	}
	if err != nil {
		log.Printf("decor: window %d: %s press: %v", rs.windowID, rs.role, err)
	}
}

// decorationAction maps a press at surface-local x, y on a region of the
// given size to a move, or to the edge to resize from.
func decorationAction(role Role, x, y, width, height int32) (move bool, edge wldecor.ResizeEdge) {
	switch role {
	case RoleTitleBar:
		if y >= cornerSize/4 {
			return true, wldecor.ResizeEdgeNone
		}
		switch {
		case x < cornerSize:
			return false, wldecor.ResizeEdgeTopLeft
		case x >= width-cornerSize:
			return false, wldecor.ResizeEdgeTopRight
		}
		return false, wldecor.ResizeEdgeTop
	case RoleLeftBorder:
		switch {
		case y < cornerSize:
			return false, wldecor.ResizeEdgeTopLeft
		case y >= height-cornerSize:
			return false, wldecor.ResizeEdgeBottomLeft
		}
		return false, wldecor.ResizeEdgeLeft
	case RoleRightBorder:
		switch {
		case y < cornerSize:
			return false, wldecor.ResizeEdgeTopRight
		case y >= height-cornerSize:
			return false, wldecor.ResizeEdgeBottomRight
		}
		return false, wldecor.ResizeEdgeRight
	case RoleBottomBorder:
		switch {
		case x < cornerSize:
			return false, wldecor.ResizeEdgeBottomLeft
		case x >= width-cornerSize:
			return false, wldecor.ResizeEdgeBottomRight
		}
		return false, wldecor.ResizeEdgeBottom
	}
	return false, wldecor.ResizeEdgeNone
}
