package wldecor

import (
	"sync"
	"sync/atomic"
)

// Event pool for handler dispatch
var eventPool = sync.Pool{
	New: func() interface{} {
		return &Event{
			data: make([]byte, 0, 256),
		}
	},
}

// EventHandler handles one event. The event is only valid during the call.
type EventHandler func(event *Event)

// EventDispatcher routes events to handlers keyed by object id and opcode.
// It complements Proxy.Dispatch for code that wants to observe an object
// without owning its proxy type.
type EventDispatcher struct {
	// Object IDs 0-1023
	handlers [1024]atomic.Pointer[handlerEntry]

	// Object IDs >= 1024
	extHandlers sync.Map
}

// handlerEntry stores handlers for a specific object
type handlerEntry struct {
	mu       sync.RWMutex
	handlers [32]EventHandler
	ext      map[uint16]EventHandler
}

func (e *handlerEntry) set(opcode uint16, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opcode < 32 {
		e.handlers[opcode] = handler
		return
	}
	if e.ext == nil {
		e.ext = make(map[uint16]EventHandler)
	}
	e.ext[opcode] = handler
}

func (e *handlerEntry) get(opcode uint16) EventHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if opcode < 32 {
		return e.handlers[opcode]
	}
	return e.ext[opcode]
}

// NewEventDispatcher creates an event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{}
}

func (d *EventDispatcher) entry(objectID uint32, create bool) *handlerEntry {
	if objectID < 1024 {
		if create {
			d.handlers[objectID].CompareAndSwap(nil, &handlerEntry{})
		}
		return d.handlers[objectID].Load()
	}
	if !create {
		if entry, ok := d.extHandlers.Load(objectID); ok {
			return entry.(*handlerEntry)
		}
		return nil
	}
	entry, _ := d.extHandlers.LoadOrStore(objectID, &handlerEntry{})
	return entry.(*handlerEntry)
}

// RegisterHandler registers an event handler, replacing any previous one
func (d *EventDispatcher) RegisterHandler(objectID uint32, opcode uint16, handler EventHandler) {
	d.entry(objectID, true).set(opcode, handler)
}

// RemoveHandlers drops every handler registered for objectID
func (d *EventDispatcher) RemoveHandlers(objectID uint32) {
	if objectID < 1024 {
		d.handlers[objectID].Store(nil)
		return
	}
	d.extHandlers.Delete(objectID)
}

// Dispatch dispatches an event to its handler, if any
func (d *EventDispatcher) Dispatch(objectID uint32, opcode uint16, data []byte) {
	entry := d.entry(objectID, false)
	if entry == nil {
		return
	}
	handler := entry.get(opcode)
	if handler == nil {
		return
	}

	event := eventPool.Get().(*Event)
	event.ProxyID = objectID
	event.Opcode = opcode
	event.data = append(event.data[:0], data...)
	event.offset = 0

	handler(event)

	eventPool.Put(event)
}
