package wldecor

// Viewporter represents the wp_viewporter global
type Viewporter struct {
	BaseProxy
}

// NewViewporter creates an unbound wp_viewporter proxy
func NewViewporter(ctx *Context) *Viewporter {
	return &Viewporter{BaseProxy: BaseProxy{context: ctx}}
}

// GetViewport creates the viewport extension of surface
func (v *Viewporter) GetViewport(surface *Surface) (*Viewport, error) {
	vp := &Viewport{}
	v.context.newProxy(vp)

	// get_viewport (opcode 1)
	if err := v.context.SendRequest(v, 1, vp.id, surface); err != nil {
		v.context.Unregister(vp)
		return nil, err
	}
	return vp, nil
}

// Destroy releases the global
func (v *Viewporter) Destroy() error {
	return destroy(v, 0)
}

// Viewport represents a wp_viewport
type Viewport struct {
	BaseProxy
}

// Destroy removes the crop and scale state from the surface
func (v *Viewport) Destroy() error {
	return destroy(v, 0)
}

// SetDestination scales the surface to width x height. Both -1 unsets it.
func (v *Viewport) SetDestination(width, height int32) error {
	return v.context.SendRequest(v, 2, width, height)
}
