package wldecor

// wl_subcompositor requests
const (
	opCodeSubcompositorDestroy       = 0
	opCodeSubcompositorGetSubsurface = 1
)

// wl_subsurface requests
const (
	opCodeSubsurfaceDestroy     = 0
	opCodeSubsurfaceSetPosition = 1
	opCodeSubsurfaceSetSync     = 4
)

// Subcompositor represents the wl_subcompositor global
type Subcompositor struct {
	BaseProxy
}

// NewSubcompositor creates an unbound wl_subcompositor proxy
func NewSubcompositor(ctx *Context) *Subcompositor {
	return &Subcompositor{BaseProxy: BaseProxy{context: ctx}}
}

// GetSubsurface turns surface into a sub-surface of parent
func (s *Subcompositor) GetSubsurface(surface, parent *Surface) (*Subsurface, error) {
	sub := &Subsurface{}
	s.context.newProxy(sub)

	if err := s.context.SendRequest(s, opCodeSubcompositorGetSubsurface, sub.id, surface, parent); err != nil {
		s.context.Unregister(sub)
		return nil, err
	}
	return sub, nil
}

// Destroy releases the global
func (s *Subcompositor) Destroy() error {
	return destroy(s, opCodeSubcompositorDestroy)
}

// Subsurface represents a wl_subsurface. Position changes are applied on the
// parent's next commit.
type Subsurface struct {
	BaseProxy
}

// Destroy removes the sub-surface role; the wl_surface stays alive
func (s *Subsurface) Destroy() error {
	return destroy(s, opCodeSubsurfaceDestroy)
}

// SetPosition places the sub-surface relative to the parent's origin
func (s *Subsurface) SetPosition(x, y int32) error {
	return s.context.SendRequest(s, opCodeSubsurfaceSetPosition, x, y)
}

// SetSync makes surface state apply only with the parent's commit
func (s *Subsurface) SetSync() error {
	return s.context.SendRequest(s, opCodeSubsurfaceSetSync)
}
