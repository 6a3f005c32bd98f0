package wldecor

// DecorationMode is a zxdg_toplevel_decoration_v1 mode
type DecorationMode uint32

const (
	DecorationModeNone       DecorationMode = 0
	DecorationModeClientSide DecorationMode = 1
	DecorationModeServerSide DecorationMode = 2
)

func (m DecorationMode) String() string {
	switch m {
	case DecorationModeClientSide:
		return "client-side"
	case DecorationModeServerSide:
		return "server-side"
	}
	return "none"
}

// DecorationManager represents the zxdg_decoration_manager_v1 global
type DecorationManager struct {
	BaseProxy
}

// NewDecorationManager creates an unbound zxdg_decoration_manager_v1 proxy
func NewDecorationManager(ctx *Context) *DecorationManager {
	return &DecorationManager{BaseProxy: BaseProxy{context: ctx}}
}

// GetToplevelDecoration creates the decoration object of toplevel
func (m *DecorationManager) GetToplevelDecoration(toplevel *Toplevel) (*ToplevelDecoration, error) {
	deco := &ToplevelDecoration{}
	m.context.newProxy(deco)

	// get_toplevel_decoration (opcode 1)
	if err := m.context.SendRequest(m, 1, deco.id, toplevel); err != nil {
		m.context.Unregister(deco)
		return nil, err
	}
	return deco, nil
}

// Destroy releases the global
func (m *DecorationManager) Destroy() error {
	return destroy(m, 0)
}

// ToplevelDecoration represents a zxdg_toplevel_decoration_v1
type ToplevelDecoration struct {
	BaseProxy
	mode DecorationMode
}

// Destroy destroys the decoration object
func (d *ToplevelDecoration) Destroy() error {
	return destroy(d, 0)
}

// SetMode requests a decoration mode
func (d *ToplevelDecoration) SetMode(mode DecorationMode) error {
	return d.context.SendRequest(d, 1, uint32(mode))
}

// Mode returns the last mode configured by the compositor
func (d *ToplevelDecoration) Mode() DecorationMode {
	return d.mode
}

// Dispatch records the configured mode
func (d *ToplevelDecoration) Dispatch(event *Event) {
	if event.Opcode == 0 {
		d.mode = DecorationMode(event.Uint32())
	}
}
