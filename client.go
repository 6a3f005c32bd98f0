// Package wldecor provides a pure-Go Wayland client with the protocol objects
// needed to negotiate window decorations.
//
// Requests are queued locally and only reach the compositor on Flush, so
// object creation never blocks on the connection. Events are read and routed
// to proxies by Dispatch or DispatchTimeout on the thread that owns the Display.
package wldecor

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	// ErrContextClosed is returned by requests sent after the context was closed.
	ErrContextClosed = errors.New("wldecor: context is closed")

	// ErrProtocol wraps wl_display.error events.
	ErrProtocol = errors.New("wldecor: protocol error")
)

// Pre-allocated buffer pool for request marshalling
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Fixed represents a 24.8 fixed-point number
type Fixed int32

// Float64 converts Fixed to float64
func (f Fixed) Float64() float64 {
	return float64(f) / 256.0
}

// NewFixed creates a Fixed from float64
func NewFixed(v float64) Fixed {
	return Fixed(v * 256.0)
}

// FD is a file descriptor argument. It is carried out-of-band via SCM_RIGHTS
// and occupies no space in the message body.
type FD int

// Object represents a Wayland object
type Object interface {
	ID() uint32
}

// Display represents a connection to the Wayland display
type Display struct {
	conn      *net.UnixConn
	objects   sync.Map // map[uint32]Object
	nextID    uint32
	sendMu    sync.Mutex
	recvMu    sync.Mutex
	listeners sync.Map // map[uint32]*sync.Map of opcode -> *[]func([]byte)

	dispatcher *EventDispatcher

	registry *Registry
	context  *Context

	// Requests queued since the last Flush, with their duplicated fds.
	out    bytes.Buffer
	outFDs []int

	lastError error

	headerBuf    [8]byte
	eventBodyBuf [4096]byte
}

// Registry represents the global registry
type Registry struct {
	id       uint32
	display  *Display
	globals  map[uint32]Global
	mu       sync.RWMutex
	handlers map[string]GlobalHandler
}

// callbackObject represents a wl_callback object
type callbackObject struct {
	BaseProxy
	display *Display
}

func (c *callbackObject) ID() uint32 {
	return c.id
}

// Dispatch handles callback events (opcode 0 = done)
func (c *callbackObject) Dispatch(event *Event) {
	if event.Opcode != 0 {
		return
	}
	listeners, ok := c.display.listeners.Load(c.id)
	if !ok {
		return
	}
	handlers, ok := listeners.(*sync.Map).Load(uint16(0))
	if !ok {
		return
	}
	for _, handler := range *handlers.(*[]func([]byte)) {
		if handler != nil {
			handler(event.data)
		}
	}
	c.display.listeners.Delete(c.id)
}

// Global represents a global object
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// GlobalHandler is called when a global is announced
type GlobalHandler func(registry *Registry, name uint32, version uint32)

// Connect connects to the Wayland display
func Connect(socketPath string) (*Display, error) {
	if socketPath == "" {
		socketPath = os.Getenv("WAYLAND_DISPLAY")
		if socketPath == "" {
			socketPath = "wayland-0"
		}
	}

	if !filepath.IsAbs(socketPath) {
		runDir := os.Getenv("XDG_RUNTIME_DIR")
		if runDir == "" {
			return nil, errors.New("XDG_RUNTIME_DIR not set")
		}
		socketPath = filepath.Join(runDir, socketPath)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Wayland")
	}

	d, err := NewDisplay(conn.(*net.UnixConn))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return d, nil
}

// NewDisplay wraps an already connected socket. The registry request is queued
// and sent on the first Flush.
func NewDisplay(conn *net.UnixConn) (*Display, error) {
	d := &Display{
		conn:       conn,
		nextID:     2, // 1 is reserved for wl_display
		dispatcher: NewEventDispatcher(),
	}

	d.context = NewContext(d)
	d.objects.Store(uint32(1), d)

	d.registry = &Registry{
		id:       d.allocateID(),
		display:  d,
		globals:  make(map[uint32]Global),
		handlers: make(map[string]GlobalHandler),
	}
	d.objects.Store(d.registry.id, d.registry)

	if err := d.getRegistry(); err != nil {
		return nil, errors.Wrap(err, "failed to get registry")
	}
	return d, nil
}

// Close flushes pending requests and closes the display connection
func (d *Display) Close() error {
	if err := d.Flush(); err != nil {
		log.Printf("wldecor: flush on close: %v", err)
	}
	return d.conn.Close()
}

// ID returns the display's object ID (always 1)
func (d *Display) ID() uint32 {
	return 1
}

// RegisterEventHandler registers an event handler on the fast dispatch path.
func (d *Display) RegisterEventHandler(objectID uint32, opcode uint16, handler EventHandler) {
	d.dispatcher.RegisterHandler(objectID, opcode, handler)
}

// RemoveEventHandlers drops the fast-path handlers of objectID.
func (d *Display) RemoveEventHandlers(objectID uint32) {
	d.dispatcher.RemoveHandlers(objectID)
}

func (d *Display) allocateID() uint32 {
	return atomic.AddUint32(&d.nextID, 1) - 1
}

// AllocateID allocates a new object ID
func (d *Display) AllocateID() uint32 {
	return d.allocateID()
}

// SendRequest queues a request for the compositor
func (d *Display) SendRequest(objectID uint32, opcode uint16, args ...interface{}) error {
	return d.SendRequestWithFDs(objectID, opcode, nil, args...)
}

// SendRequestWithFDs queues a request carrying file descriptors. The fds are
// duplicated, so callers may close theirs as soon as this returns.
func (d *Display) SendRequestWithFDs(objectID uint32, opcode uint16, fds []int, args ...interface{}) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	var header [8]byte
	_, _ = buf.Write(header[:])

	for _, arg := range args {
		if err := d.marshalArg(buf, arg); err != nil {
			return errors.Wrap(err, "failed to marshal argument")
		}
	}

	bufLen := buf.Len()
	if bufLen > 0xFFFF {
		return errors.Errorf("message too large: %d bytes", bufLen)
	}
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[0:4], objectID)
	// Upper 16 bits = size, lower 16 bits = opcode
	binary.LittleEndian.PutUint32(data[4:8], uint32(bufLen)<<16|uint32(opcode))

	dups := make([]int, 0, len(fds))
	for _, fd := range fds {
		dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
		if err != nil {
			closeFDs(dups)
			return errors.Wrapf(err, "dup fd %d", fd)
		}
		dups = append(dups, dup)
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	_, _ = d.out.Write(data)
	d.outFDs = append(d.outFDs, dups...)
	return nil
}

// Flush writes every queued request to the socket.
func (d *Display) Flush() error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	if d.out.Len() == 0 {
		return nil
	}
	err := d.sendmsgWithFDs(d.out.Bytes(), d.outFDs)
	closeFDs(d.outFDs)
	d.outFDs = d.outFDs[:0]
	d.out.Reset()
	return err
}

// Pending reports the number of queued request bytes.
func (d *Display) Pending() int {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	return d.out.Len()
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// marshalArg marshals a single argument
func (d *Display) marshalArg(buf *bytes.Buffer, arg interface{}) error {
	switch v := arg.(type) {
	case uint32:
		return binary.Write(buf, binary.LittleEndian, v)
	case int32:
		return binary.Write(buf, binary.LittleEndian, v)
	case Fixed:
		return binary.Write(buf, binary.LittleEndian, int32(v))
	case string:
		// String format: length (including null) + string + null + padding
		strlen := len(v) + 1
		if err := binary.Write(buf, binary.LittleEndian, uint32(strlen)); err != nil {
			return err
		}
		_, _ = buf.WriteString(v)
		_ = buf.WriteByte(0)
		padding := (4 - (strlen % 4)) % 4
		for i := 0; i < padding; i++ {
			_ = buf.WriteByte(0)
		}
	case []byte:
		arrlen := len(v)
		if err := binary.Write(buf, binary.LittleEndian, uint32(arrlen)); err != nil {
			return err
		}
		_, _ = buf.Write(v)
		padding := (4 - (arrlen % 4)) % 4
		for i := 0; i < padding; i++ {
			_ = buf.WriteByte(0)
		}
	case FD:
		// Sent via SCM_RIGHTS only
		return nil
	case nil:
		return binary.Write(buf, binary.LittleEndian, uint32(0))
	case Object:
		if isNilObject(v) {
			return binary.Write(buf, binary.LittleEndian, uint32(0))
		}
		return binary.Write(buf, binary.LittleEndian, v.ID())
	default:
		return errors.Errorf("unsupported argument type: %T", arg)
	}
	return nil
}

// isNilObject catches typed nil pointers passed as optional object arguments.
func isNilObject(o Object) bool {
	switch v := o.(type) {
	case *Surface:
		return v == nil
	case *Buffer:
		return v == nil
	case *Region:
		return v == nil
	case *Output:
		return v == nil
	case *Seat:
		return v == nil
	case *Toplevel:
		return v == nil
	}
	return false
}

// Dispatch blocks until one event is read and dispatched
func (d *Display) Dispatch() error {
	_, err := d.dispatch(time.Time{})
	return err
}

// DispatchTimeout waits at most timeout for the next event. It reports whether
// an event was dispatched.
func (d *Display) DispatchTimeout(timeout time.Duration) (bool, error) {
	return d.dispatch(time.Now().Add(timeout))
}

func (d *Display) dispatch(deadline time.Time) (bool, error) {
	d.recvMu.Lock()
	defer d.recvMu.Unlock()

	// Only the header read may time out; a message is never left half read.
	if !deadline.IsZero() {
		_ = d.conn.SetReadDeadline(deadline)
	}
	n, fds, err := d.recvmsgWithFDs(d.headerBuf[:])
	if !deadline.IsZero() {
		_ = d.conn.SetReadDeadline(time.Time{})
	}
	defer func() { closeFDs(fds) }()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to read header")
	}
	if n < 8 {
		if _, err := io.ReadFull(d.conn, d.headerBuf[n:]); err != nil {
			return false, errors.Wrap(err, "incomplete header")
		}
	}

	objectID := binary.LittleEndian.Uint32(d.headerBuf[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(d.headerBuf[4:8])
	size := sizeOpcode >> 16
	opcode := uint16(sizeOpcode & 0xffff)
	if size < 8 {
		return false, errors.Errorf("invalid message size %d for object %d", size, objectID)
	}

	var body []byte
	if size > 8 {
		bodySize := size - 8
		if bodySize <= uint32(len(d.eventBodyBuf)) {
			body = d.eventBodyBuf[:bodySize]
		} else {
			body = make([]byte, bodySize)
		}

		n, moreFds, err := d.recvmsgWithFDs(body)
		fds = append(fds, moreFds...)
		if err != nil {
			return false, errors.Wrap(err, "failed to read body")
		}
		if n < int(bodySize) {
			if _, err := io.ReadFull(d.conn, body[n:]); err != nil {
				return false, errors.Wrap(err, "failed to read remaining body")
			}
		}
	}

	if objectID == 1 {
		return true, d.handleDisplayEvent(opcode, body)
	}

	if obj, ok := d.objects.Load(objectID); ok {
		if proxy, ok := obj.(Proxy); ok && proxy != nil {
			proxy.Dispatch(&Event{
				ProxyID: objectID,
				Opcode:  opcode,
				data:    body,
			})
		}
	}

	d.dispatcher.Dispatch(objectID, opcode, body)

	if listeners, ok := d.listeners.Load(objectID); ok {
		if handlers, ok := listeners.(*sync.Map).Load(opcode); ok {
			for _, handler := range *handlers.(*[]func([]byte)) {
				handler(body)
			}
		}
	}

	return true, nil
}

// handleDisplayEvent handles events on the display object
func (d *Display) handleDisplayEvent(opcode uint16, data []byte) error {
	switch opcode {
	case 0: // error
		if len(data) < 8 {
			return errors.New("invalid error event")
		}
		ev := &Event{data: data}
		objectID := ev.Uint32()
		code := ev.Uint32()
		message := ev.String()

		d.lastError = errors.Wrapf(ErrProtocol, "object %d, code %d: %s", objectID, code, message)
		log.Printf("wldecor: %v", d.lastError)
		return d.lastError

	case 1: // delete_id
		if len(data) < 4 {
			return errors.New("invalid delete_id event")
		}
		id := binary.LittleEndian.Uint32(data[0:4])
		d.objects.Delete(id)
		d.context.proxies.Delete(id)
	}

	return nil
}

// LastError returns the last protocol error received from the compositor.
func (d *Display) LastError() error {
	return d.lastError
}

// Roundtrip flushes and blocks until the compositor has processed every
// request sent so far.
func (d *Display) Roundtrip() error {
	callbackID := d.allocateID()
	done := false

	d.AddListener(callbackID, 0, func(_ []byte) {
		done = true
	})
	d.objects.Store(callbackID, &callbackObject{
		BaseProxy: BaseProxy{
			context: d.context,
			id:      callbackID,
		},
		display: d,
	})

	// wl_display.sync (opcode 0)
	if err := d.SendRequest(1, 0, callbackID); err != nil {
		return err
	}
	if err := d.Flush(); err != nil {
		return errors.Wrap(err, "roundtrip flush")
	}

	const maxIterations = 10000
	for i := 0; i < maxIterations && !done; i++ {
		if err := d.Dispatch(); err != nil {
			return err
		}
	}
	if !done {
		return errors.New("roundtrip failed: max iterations reached")
	}
	return nil
}

// AddListener adds a raw event listener for an object
func (d *Display) AddListener(objectID uint32, opcode uint16, handler func([]byte)) {
	listeners, _ := d.listeners.LoadOrStore(objectID, &sync.Map{})
	opcodeMap := listeners.(*sync.Map)

	handlers, _ := opcodeMap.LoadOrStore(opcode, &[]func([]byte){})
	handlerSlice := handlers.(*[]func([]byte))
	*handlerSlice = append(*handlerSlice, handler)
}

func (d *Display) getRegistry() error {
	d.AddListener(d.registry.id, 0, d.registry.handleGlobal)
	d.AddListener(d.registry.id, 1, d.registry.handleGlobalRemove)

	// wl_display.get_registry (opcode 1)
	return d.SendRequest(1, 1, d.registry.id)
}

// Context returns the proxy context of this display
func (d *Display) Context() *Context {
	return d.context
}

// Registry returns the global registry
func (d *Display) Registry() *Registry {
	return d.registry
}

// ID returns the registry's object ID
func (r *Registry) ID() uint32 {
	return r.id
}

func (r *Registry) handleGlobal(data []byte) {
	ev := &Event{data: data}
	name := ev.Uint32()
	iface := ev.String()
	version := ev.Uint32()
	if iface == "" {
		return
	}

	r.mu.Lock()
	r.globals[name] = Global{
		Name:      name,
		Interface: iface,
		Version:   version,
	}
	handler, hasHandler := r.handlers[iface]
	wildcard, hasWildcard := r.handlers["*"]
	r.mu.Unlock()

	if hasHandler {
		handler(r, name, version)
	}
	if hasWildcard {
		wildcard(r, name, version)
	}
}

func (r *Registry) handleGlobalRemove(data []byte) {
	if len(data) < 4 {
		return
	}

	name := binary.LittleEndian.Uint32(data[0:4])

	r.mu.Lock()
	delete(r.globals, name)
	r.mu.Unlock()
}

// AddHandler adds a handler for a specific interface, or "*" for all
func (r *Registry) AddHandler(iface string, handler GlobalHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[iface] = handler
}

// Bind binds to a global object through the given proxy
func (r *Registry) Bind(name uint32, iface string, version uint32, proxy Proxy) error {
	if proxy.ID() == 0 {
		proxy.SetID(r.display.allocateID())
	}

	if proxy.Context() == nil {
		setter, ok := proxy.(interface{ SetContext(*Context) })
		if !ok {
			return errors.New("proxy doesn't have context and can't set it")
		}
		setter.SetContext(r.display.Context())
	}

	proxy.Context().Register(proxy)

	// wl_registry.bind (opcode 0): name, interface, version, new_id
	if err := r.display.SendRequest(r.id, 0, name, iface, version, proxy.ID()); err != nil {
		proxy.Context().Unregister(proxy)
		return err
	}

	return nil
}

// GetGlobals returns all announced globals
func (r *Registry) GetGlobals() map[uint32]Global {
	r.mu.RLock()
	defer r.mu.RUnlock()

	globals := make(map[uint32]Global, len(r.globals))
	for k, v := range r.globals {
		globals[k] = v
	}
	return globals
}

// FindGlobal finds a global by interface name
func (r *Registry) FindGlobal(iface string) (Global, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, global := range r.globals {
		if global.Interface == iface {
			return global, true
		}
	}
	return Global{}, false
}
