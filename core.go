package wldecor

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// Context tracks the client-side proxies of one display
type Context struct {
	display *Display
	proxies sync.Map // map[uint32]Proxy
	closed  atomic.Bool
}

// Proxy interface for Wayland protocol objects
type Proxy interface {
	Object
	SetID(uint32)
	Context() *Context
	Dispatch(*Event)
}

// BaseProxy provides base implementation for protocol objects
type BaseProxy struct {
	id      uint32
	context *Context
}

// Event represents a Wayland protocol event
type Event struct {
	ProxyID uint32
	Opcode  uint16
	data    []byte
	offset  int
}

// Data returns the raw event data
func (e *Event) Data() []byte {
	return e.data
}

// Offset returns the current read offset
func (e *Event) Offset() int {
	return e.offset
}

// NewContext creates a new context from a display
func NewContext(display *Display) *Context {
	return &Context{
		display: display,
	}
}

// Display returns the display this context belongs to
func (c *Context) Display() *Display {
	return c.display
}

// SendRequest queues a request through the context
func (c *Context) SendRequest(proxy Proxy, opcode uint32, args ...interface{}) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	return c.display.SendRequest(proxy.ID(), uint16(opcode), args...)
}

// SendRequestWithFDs queues a request with file descriptors through the context
func (c *Context) SendRequestWithFDs(proxy Proxy, opcode uint32, fds []int, args ...interface{}) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	return c.display.SendRequestWithFDs(proxy.ID(), uint16(opcode), fds, args...)
}

// Register registers a proxy object
func (c *Context) Register(proxy Proxy) {
	if proxy != nil && proxy.ID() != 0 {
		c.proxies.Store(proxy.ID(), proxy)
		c.display.objects.Store(proxy.ID(), proxy)
	}
}

// Unregister removes a proxy object
func (c *Context) Unregister(proxy Proxy) {
	if proxy != nil {
		c.proxies.Delete(proxy.ID())
		c.display.objects.Delete(proxy.ID())
	}
}

// Lookup returns the live proxy registered under id.
func (c *Context) Lookup(id uint32) (Proxy, bool) {
	p, ok := c.proxies.Load(id)
	if !ok {
		return nil, false
	}
	return p.(Proxy), true
}

// AllocateID allocates a new object ID
func (c *Context) AllocateID() uint32 {
	return c.display.AllocateID()
}

// Close closes the context and its display
func (c *Context) Close() error {
	c.closed.Store(true)
	return c.display.Close()
}

// newProxy allocates an id for a client-created object and registers it.
func (c *Context) newProxy(p interface {
	Proxy
	SetContext(*Context)
}) {
	p.SetContext(c)
	p.SetID(c.display.allocateID())
	c.Register(p)
}

// ID returns the proxy's object ID
func (p *BaseProxy) ID() uint32 {
	return p.id
}

// SetID sets the proxy's object ID
func (p *BaseProxy) SetID(id uint32) {
	p.id = id
}

// Context returns the proxy's context
func (p *BaseProxy) Context() *Context {
	return p.context
}

// SetContext sets the proxy's context
func (p *BaseProxy) SetContext(ctx *Context) {
	p.context = ctx
}

// Dispatch default implementation (does nothing)
func (p *BaseProxy) Dispatch(event *Event) {}

// destroy sends a destructor request and drops the proxy from the context.
func destroy(p Proxy, opcode uint32) error {
	ctx := p.Context()
	if ctx == nil {
		return nil
	}
	err := ctx.SendRequest(p, opcode)
	ctx.Unregister(p)
	return err
}

// Uint32 reads a uint32 from the event
func (e *Event) Uint32() uint32 {
	if e.offset+4 > len(e.data) {
		return 0
	}
	val := binary.LittleEndian.Uint32(e.data[e.offset:])
	e.offset += 4
	return val
}

// Int32 reads an int32 from the event
func (e *Event) Int32() int32 {
	return int32(e.Uint32())
}

// Fixed reads a fixed-point value from the event
func (e *Event) Fixed() Fixed {
	return Fixed(e.Int32())
}

// String reads a string from the event
func (e *Event) String() string {
	if e.offset+4 > len(e.data) {
		return ""
	}
	strlen := e.Uint32()
	if strlen == 0 || e.offset+int(strlen) > len(e.data) {
		return ""
	}
	// String includes null terminator in length
	str := string(e.data[e.offset : e.offset+int(strlen)-1])
	padding := (4 - (strlen % 4)) % 4
	e.offset += int(strlen + padding)
	return str
}

// Array reads a byte array from the event
func (e *Event) Array() []byte {
	if e.offset+4 > len(e.data) {
		return nil
	}
	arrlen := e.Uint32()
	if arrlen == 0 || e.offset+int(arrlen) > len(e.data) {
		return nil
	}
	arr := make([]byte, arrlen)
	copy(arr, e.data[e.offset:e.offset+int(arrlen)])
	padding := (4 - (arrlen % 4)) % 4
	e.offset += int(arrlen + padding)
	return arr
}

// Seat capability constants
const (
	SeatCapabilityPointer  = 1
	SeatCapabilityKeyboard = 2
	SeatCapabilityTouch    = 4
)

// Seat represents a wl_seat
type Seat struct {
	BaseProxy
	capabilities uint32
	name         string

	// OnCapabilities is called on every capabilities event.
	OnCapabilities func(capabilities uint32)
}

// NewSeat creates a new seat proxy
func NewSeat(ctx *Context) *Seat {
	return &Seat{
		BaseProxy: BaseProxy{
			context: ctx,
		},
	}
}

// GetPointer gets the pointer device
func (s *Seat) GetPointer() (*Pointer, error) {
	pointer := &Pointer{}
	s.context.newProxy(pointer)

	// get_pointer (opcode 0)
	if err := s.context.SendRequest(s, 0, pointer.id); err != nil {
		s.context.Unregister(pointer)
		return nil, err
	}
	return pointer, nil
}

// Release releases the seat
func (s *Seat) Release() error {
	return destroy(s, 3)
}

// Capabilities returns the seat capabilities
func (s *Seat) Capabilities() uint32 {
	return s.capabilities
}

// Name returns the seat name
func (s *Seat) Name() string {
	return s.name
}

// Dispatch handles events for the seat
func (s *Seat) Dispatch(event *Event) {
	switch event.Opcode {
	case 0: // capabilities
		s.capabilities = event.Uint32()
		if s.OnCapabilities != nil {
			s.OnCapabilities(s.capabilities)
		}
	case 1: // name
		s.name = event.String()
	}
}

// Surface represents a wl_surface
type Surface struct {
	BaseProxy
}

// NewSurface creates a new surface proxy
func NewSurface(ctx *Context) *Surface {
	return &Surface{
		BaseProxy: BaseProxy{
			context: ctx,
		},
	}
}

// Destroy destroys the surface
func (s *Surface) Destroy() error {
	return destroy(s, 0)
}

// Attach attaches a buffer to the surface. A nil buffer detaches the current one.
func (s *Surface) Attach(buffer *Buffer, x, y int32) error {
	return s.context.SendRequest(s, 1, buffer, x, y) // opcode 1
}

// Damage marks a region of the surface as damaged
func (s *Surface) Damage(x, y, width, height int32) error {
	return s.context.SendRequest(s, 2, x, y, width, height) // opcode 2
}

// SetOpaqueRegion sets the opaque region
func (s *Surface) SetOpaqueRegion(region *Region) error {
	return s.context.SendRequest(s, 4, region) // opcode 4
}

// SetInputRegion sets the input region
func (s *Surface) SetInputRegion(region *Region) error {
	return s.context.SendRequest(s, 5, region) // opcode 5
}

// Commit commits pending surface state
func (s *Surface) Commit() error {
	return s.context.SendRequest(s, 6) // opcode 6
}

// SetBufferScale sets the buffer scale
func (s *Surface) SetBufferScale(scale int32) error {
	return s.context.SendRequest(s, 8, scale) // opcode 8
}

// DamageBuffer marks a region of the buffer as damaged
func (s *Surface) DamageBuffer(x, y, width, height int32) error {
	return s.context.SendRequest(s, 9, x, y, width, height) // opcode 9
}

// Dispatch ignores enter/leave/preferred_buffer_* events
func (s *Surface) Dispatch(event *Event) {}

// Pointer button states
const (
	PointerButtonReleased = 0
	PointerButtonPressed  = 1
)

// BtnLeft is the evdev code of the primary pointer button
const BtnLeft = 0x110

// PointerListener receives wl_pointer events.
type PointerListener interface {
	PointerEnter(serial uint32, surfaceID uint32, x, y Fixed)
	PointerLeave(serial uint32, surfaceID uint32)
	PointerMotion(time uint32, x, y Fixed)
	PointerButton(serial, time, button, state uint32)
}

// Pointer represents a wl_pointer
type Pointer struct {
	BaseProxy
	listener PointerListener
}

// SetListener installs the pointer event listener
func (p *Pointer) SetListener(l PointerListener) {
	p.listener = l
}

// Release releases the pointer
func (p *Pointer) Release() error {
	return destroy(p, 1)
}

// Dispatch handles pointer events
func (p *Pointer) Dispatch(event *Event) {
	if p.listener == nil {
		return
	}
	switch event.Opcode {
	case 0: // enter
		serial := event.Uint32()
		surface := event.Uint32()
		x := event.Fixed()
		y := event.Fixed()
		p.listener.PointerEnter(serial, surface, x, y)
	case 1: // leave
		serial := event.Uint32()
		surface := event.Uint32()
		p.listener.PointerLeave(serial, surface)
	case 2: // motion
		time := event.Uint32()
		x := event.Fixed()
		y := event.Fixed()
		p.listener.PointerMotion(time, x, y)
	case 3: // button
		serial := event.Uint32()
		time := event.Uint32()
		button := event.Uint32()
		state := event.Uint32()
		p.listener.PointerButton(serial, time, button, state)
	}
}

// Output represents a wl_output
type Output struct {
	BaseProxy
}

// Region represents a wl_region
type Region struct {
	BaseProxy
}

// Add adds a rectangle to the region
func (r *Region) Add(x, y, width, height int32) error {
	return r.context.SendRequest(r, 1, x, y, width, height) // opcode 1
}

// Subtract subtracts a rectangle from the region
func (r *Region) Subtract(x, y, width, height int32) error {
	return r.context.SendRequest(r, 2, x, y, width, height) // opcode 2
}

// Destroy destroys the region
func (r *Region) Destroy() error {
	return destroy(r, 0)
}

// Compositor represents a wl_compositor
type Compositor struct {
	BaseProxy
}

// NewCompositor creates a new compositor proxy
func NewCompositor(ctx *Context) *Compositor {
	return &Compositor{
		BaseProxy: BaseProxy{
			context: ctx,
		},
	}
}

// CreateSurface creates a new surface
func (c *Compositor) CreateSurface() (*Surface, error) {
	surface := &Surface{}
	c.context.newProxy(surface)

	// create_surface (opcode 0)
	if err := c.context.SendRequest(c, 0, surface.id); err != nil {
		c.context.Unregister(surface)
		return nil, err
	}
	return surface, nil
}

// CreateRegion creates a new region
func (c *Compositor) CreateRegion() (*Region, error) {
	region := &Region{}
	c.context.newProxy(region)

	// create_region (opcode 1)
	if err := c.context.SendRequest(c, 1, region.id); err != nil {
		c.context.Unregister(region)
		return nil, err
	}
	return region, nil
}
