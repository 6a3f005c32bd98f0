package wldecor

import "encoding/binary"

// WmBase represents the xdg_wm_base global. Pings are answered automatically.
type WmBase struct {
	BaseProxy
}

// NewWmBase creates an unbound xdg_wm_base proxy
func NewWmBase(ctx *Context) *WmBase {
	return &WmBase{BaseProxy: BaseProxy{context: ctx}}
}

// GetXdgSurface gives surface the xdg_surface role
func (w *WmBase) GetXdgSurface(surface *Surface) (*XdgSurface, error) {
	xs := &XdgSurface{}
	w.context.newProxy(xs)

	// get_xdg_surface (opcode 2)
	if err := w.context.SendRequest(w, 2, xs.id, surface); err != nil {
		w.context.Unregister(xs)
		return nil, err
	}
	return xs, nil
}

// Destroy releases the global
func (w *WmBase) Destroy() error {
	return destroy(w, 0)
}

// Dispatch answers ping with pong
func (w *WmBase) Dispatch(event *Event) {
	if event.Opcode == 0 { // ping
		serial := event.Uint32()
		_ = w.context.SendRequest(w, 3, serial) // pong
	}
}

// XdgSurface represents an xdg_surface
type XdgSurface struct {
	BaseProxy

	// OnConfigure runs before the configure is acknowledged.
	OnConfigure func(serial uint32)
	configured  bool
}

// GetToplevel assigns the toplevel role
func (x *XdgSurface) GetToplevel() (*Toplevel, error) {
	tl := &Toplevel{}
	x.context.newProxy(tl)

	// get_toplevel (opcode 1)
	if err := x.context.SendRequest(x, 1, tl.id); err != nil {
		x.context.Unregister(tl)
		return nil, err
	}
	return tl, nil
}

// SetWindowGeometry sets the visible bounds of the window in surface coordinates
func (x *XdgSurface) SetWindowGeometry(px, py, width, height int32) error {
	return x.context.SendRequest(x, 3, px, py, width, height)
}

// Configured reports whether at least one configure was acknowledged
func (x *XdgSurface) Configured() bool {
	return x.configured
}

// Destroy destroys the xdg_surface
func (x *XdgSurface) Destroy() error {
	return destroy(x, 0)
}

// Dispatch handles configure
func (x *XdgSurface) Dispatch(event *Event) {
	if event.Opcode != 0 {
		return
	}
	serial := event.Uint32()
	if x.OnConfigure != nil {
		x.OnConfigure(serial)
	}
	_ = x.context.SendRequest(x, 4, serial) // ack_configure
	x.configured = true
}

// xdg_toplevel states
const (
	ToplevelStateMaximized  = 1
	ToplevelStateFullscreen = 2
	ToplevelStateResizing   = 3
	ToplevelStateActivated  = 4
)

// ResizeEdge values of xdg_toplevel.resize
type ResizeEdge uint32

const (
	ResizeEdgeNone        ResizeEdge = 0
	ResizeEdgeTop         ResizeEdge = 1
	ResizeEdgeBottom      ResizeEdge = 2
	ResizeEdgeLeft        ResizeEdge = 4
	ResizeEdgeTopLeft     ResizeEdge = 5
	ResizeEdgeBottomLeft  ResizeEdge = 6
	ResizeEdgeRight       ResizeEdge = 8
	ResizeEdgeTopRight    ResizeEdge = 9
	ResizeEdgeBottomRight ResizeEdge = 10
)

// Toplevel represents an xdg_toplevel
type Toplevel struct {
	BaseProxy

	// OnConfigure receives the proposed size (0 means client's choice) and states.
	OnConfigure func(width, height int32, states []uint32)
	// OnClose is called when the user asks to close the window.
	OnClose func()
}

// Destroy destroys the toplevel
func (t *Toplevel) Destroy() error {
	return destroy(t, 0)
}

// SetTitle sets the window title
func (t *Toplevel) SetTitle(title string) error {
	return t.context.SendRequest(t, 2, title)
}

// SetAppID sets the application id
func (t *Toplevel) SetAppID(appID string) error {
	return t.context.SendRequest(t, 3, appID)
}

// Move starts an interactive move grabbed on the given input serial
func (t *Toplevel) Move(seat *Seat, serial uint32) error {
	return t.context.SendRequest(t, 5, seat, serial)
}

// Resize starts an interactive resize from edge
func (t *Toplevel) Resize(seat *Seat, serial uint32, edge ResizeEdge) error {
	return t.context.SendRequest(t, 6, seat, serial, uint32(edge))
}

// SetMinSize sets the minimum window geometry size
func (t *Toplevel) SetMinSize(width, height int32) error {
	return t.context.SendRequest(t, 8, width, height)
}

// SetMaximized asks for the maximized state
func (t *Toplevel) SetMaximized() error {
	return t.context.SendRequest(t, 9)
}

// UnsetMaximized leaves the maximized state
func (t *Toplevel) UnsetMaximized() error {
	return t.context.SendRequest(t, 10)
}

// SetFullscreen asks for fullscreen, on output or one chosen by the compositor
func (t *Toplevel) SetFullscreen(output *Output) error {
	return t.context.SendRequest(t, 11, output)
}

// UnsetFullscreen leaves fullscreen
func (t *Toplevel) UnsetFullscreen() error {
	return t.context.SendRequest(t, 12)
}

// SetMinimized asks the compositor to minimize the window
func (t *Toplevel) SetMinimized() error {
	return t.context.SendRequest(t, 13)
}

// Dispatch handles configure and close
func (t *Toplevel) Dispatch(event *Event) {
	switch event.Opcode {
	case 0: // configure
		width := event.Int32()
		height := event.Int32()
		raw := event.Array()
		states := make([]uint32, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			states = append(states, binary.LittleEndian.Uint32(raw[i:]))
		}
		if t.OnConfigure != nil {
			t.OnConfigure(width, height, states)
		}
	case 1: // close
		if t.OnClose != nil {
			t.OnClose()
		}
	}
}
