// Package decor picks and drives the decoration mechanism of a toplevel
// window. A Manager tries, once per window and in a fixed order, libdecor
// (NativeHelper), xdg-decoration server-side mode (CompositorDrawn),
// sub-surface borders drawn by the client (SelfDrawn), and finally no
// decorations at all (Disabled). The chosen Strategy stays bound to the window
// until it is destroyed.
//
// Everything in this package runs on the thread that owns the display
// connection.
package decor

import (
	"github.com/bnema/wldecor"
	"github.com/pkg/errors"
)

var (
	// ErrObjectCreationFailed means a protocol or native object could not be created.
	ErrObjectCreationFailed = errors.New("decor: object creation failed")

	// ErrCompositorRejectedMode means the compositor granted another decoration mode.
	ErrCompositorRejectedMode = errors.New("decor: compositor rejected decoration mode")

	// ErrNoMainSurface means the window has no surface to decorate.
	ErrNoMainSurface = errors.New("decor: window has no main surface")
)

// Type identifies a decoration tier
type Type int

const (
	NativeHelper Type = iota
	CompositorDrawn
	SelfDrawn
	Disabled
)

func (t Type) String() string {
	switch t {
	case NativeHelper:
		return "native-helper"
	case CompositorDrawn:
		return "compositor-drawn"
	case SelfDrawn:
		return "self-drawn"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Strategy is the decoration mechanism bound to one window. Calls after
// Destroy are no-ops.
type Strategy interface {
	Type() Type
	SetTitle(title string)
	SetMinimized()
	SetMaximized()
	SetFullscreen(output *wldecor.Output)
	Restore()
	Resize(width, height int32)
	Destroy()
}

// Window is the part of the windowing layer a strategy needs. A strategy
// holds it without owning it; the window must keep its main surface alive
// until the strategy is destroyed.
type Window interface {
	ID() uint64
	MainSurface() *wldecor.Surface
	// Toplevel returns the xdg_toplevel of the main surface, or nil.
	Toplevel() *wldecor.Toplevel
	Size() (width, height int32)
	HandleResize(width, height int32)
	HandleCloseRequest()
}

// HelperWindow is implemented by windows whose main surface is also reachable
// as a libwayland wl_surface pointer, which libdecor requires.
//
// libdecor drives that pointer while the strategy commits MainSurface when
// libdecor asks for a commit. Both must name the same wl_surface on the same
// connection as Globals.HelperDisplay; a surface from a second connection
// would leave libdecor's frame and the window's content out of step.
type HelperWindow interface {
	HelperSurface() uintptr
}

// MinSizer is implemented by windows with a minimum content size.
type MinSizer interface {
	MinSize() (width, height int32)
}

// Role tells the input router what a decoration surface stands for.
type Role int

const (
	RoleTitleBar Role = iota
	RoleLeftBorder
	RoleRightBorder
	RoleBottomBorder
)

func (r Role) String() string {
	switch r {
	case RoleTitleBar:
		return "titleBar"
	case RoleLeftBorder:
		return "leftBorder"
	case RoleRightBorder:
		return "rightBorder"
	case RoleBottomBorder:
		return "bottomBorder"
	}
	return "unknown"
}

// InputRouter attributes pointer input on decoration surfaces to window
// actions instead of content.
type InputRouter interface {
	RegisterDecorationSurface(surface *wldecor.Surface, windowID uint64, role Role)
	UnregisterDecorationSurface(surface *wldecor.Surface)
}

// Globals are the bound protocol objects selection depends on. Viewporter,
// DecorationManager and HelperDisplay are optional.
type Globals struct {
	Compositor        *wldecor.Compositor
	Subcompositor     *wldecor.Subcompositor
	Shm               *wldecor.Shm
	Viewporter        *wldecor.Viewporter
	DecorationManager *wldecor.DecorationManager

	// HelperDisplay is the libwayland wl_display pointer given to libdecor.
	HelperDisplay uintptr
}

// GlobalsFrom copies the decoration-relevant globals of g
func GlobalsFrom(g *wldecor.Globals, helperDisplay uintptr) Globals {
	return Globals{
		Compositor:        g.Compositor,
		Subcompositor:     g.Subcompositor,
		Shm:               g.Shm,
		Viewporter:        g.Viewporter,
		DecorationManager: g.DecorationManager,
		HelperDisplay:     helperDisplay,
	}
}
