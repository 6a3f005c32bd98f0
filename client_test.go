package wldecor

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// Unit tests that don't require a compositor

func TestFixed(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{1.0, 1.0},
		{0.5, 0.5},
		{123.456, 123.456},
		{-1.5, -1.5},
		{0.0, 0.0},
		{256.0, 256.0},
	}

	for _, test := range tests {
		result := NewFixed(test.input).Float64()

		// Allow small precision differences
		diff := result - test.expected
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.01 {
			t.Errorf("Fixed conversion: input=%f, expected=%f, got=%f",
				test.input, test.expected, result)
		}
	}
}

func TestEventDispatcher(t *testing.T) {
	dispatcher := NewEventDispatcher()

	called := false
	dispatcher.RegisterHandler(123, 1, func(event *Event) {
		called = true
		if event.ProxyID != 123 || event.Opcode != 1 {
			t.Errorf("Expected ProxyID=123, Opcode=1, got ProxyID=%d, Opcode=%d", event.ProxyID, event.Opcode)
		}
		if got := event.Uint32(); got != 7 {
			t.Errorf("Expected argument 7, got %d", got)
		}
	})

	dispatcher.Dispatch(123, 1, []byte{7, 0, 0, 0})

	if !called {
		t.Error("Handler should have been called")
	}
}

func TestEventDispatcherMultipleHandlers(t *testing.T) {
	dispatcher := NewEventDispatcher()

	called1 := false
	called2 := false
	dispatcher.RegisterHandler(123, 1, func(*Event) { called1 = true })
	dispatcher.RegisterHandler(123, 2, func(*Event) { called2 = true })

	dispatcher.Dispatch(123, 1, []byte{})
	dispatcher.Dispatch(123, 2, []byte{})

	if !called1 {
		t.Error("Handler1 should have been called")
	}
	if !called2 {
		t.Error("Handler2 should have been called")
	}
}

func TestEventDispatcherRemoveHandlers(t *testing.T) {
	dispatcher := NewEventDispatcher()

	for _, id := range []uint32{12, 5000} {
		calls := 0
		dispatcher.RegisterHandler(id, 0, func(*Event) { calls++ })
		dispatcher.Dispatch(id, 0, nil)
		dispatcher.RemoveHandlers(id)
		dispatcher.Dispatch(id, 0, nil)

		if calls != 1 {
			t.Errorf("object %d: expected 1 call, got %d", id, calls)
		}
	}
}

func TestEventDispatcherHandlerMayRemoveItself(t *testing.T) {
	dispatcher := NewEventDispatcher()

	calls := 0
	dispatcher.RegisterHandler(40, 0, func(*Event) {
		calls++
		dispatcher.RemoveHandlers(40)
	})
	dispatcher.Dispatch(40, 0, nil)
	dispatcher.Dispatch(40, 0, nil)

	if calls != 1 {
		t.Errorf("expected a one-shot handler, got %d calls", calls)
	}
}

func TestMessageMarshalingBasic(t *testing.T) {
	// Create a display to test marshaling (without connecting)
	d := &Display{
		nextID: 2,
	}

	buf := &bytes.Buffer{}

	tests := []struct {
		name string
		arg  interface{}
		want []byte
	}{
		{
			name: "uint32",
			arg:  uint32(0x12345678),
			want: []byte{0x78, 0x56, 0x34, 0x12}, // little endian
		},
		{
			name: "int32",
			arg:  int32(-1),
			want: []byte{0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name: "Fixed",
			arg:  NewFixed(1.0),
			want: []byte{0x00, 0x01, 0x00, 0x00}, // 256 in little endian
		},
		{
			name: "string",
			arg:  "test",
			want: []byte{0x05, 0x00, 0x00, 0x00, 't', 'e', 's', 't', 0x00, 0x00, 0x00, 0x00}, // length + string + null + padding
		},
		{
			name: "array",
			arg:  []byte{1, 2},
			want: []byte{0x02, 0x00, 0x00, 0x00, 1, 2, 0x00, 0x00},
		},
		{
			name: "nil object",
			arg:  nil,
			want: []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "typed nil output",
			arg:  (*Output)(nil),
			want: []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "object",
			arg:  &Surface{BaseProxy: BaseProxy{id: 9}},
			want: []byte{0x09, 0x00, 0x00, 0x00},
		},
		{
			name: "fd",
			arg:  FD(3),
			want: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf.Reset()
			if err := d.marshalArg(buf, test.arg); err != nil {
				t.Fatalf("marshalArg failed: %v", err)
			}

			got := buf.Bytes()
			if !bytes.Equal(got, test.want) {
				t.Errorf("marshalArg(%v) = %v, want %v", test.arg, got, test.want)
			}
		})
	}
}

func TestMessageMarshalingUnsupported(t *testing.T) {
	d := &Display{nextID: 2}
	if err := d.marshalArg(&bytes.Buffer{}, 1.5); err == nil {
		t.Fatal("expected an error for float64")
	}
}

func TestMessageHeaderParsing(t *testing.T) {
	tests := []struct {
		name     string
		header   []byte
		wantID   uint32
		wantSize uint32
		wantOp   uint16
	}{
		{
			name:     "basic header",
			header:   []byte{0x05, 0x00, 0x00, 0x00, 0x02, 0x00, 0x0C, 0x00}, // ID=5, opcode=2, size=12 (size is upper 16 bits)
			wantID:   5,
			wantSize: 12,
			wantOp:   2,
		},
		{
			name:     "large values",
			header:   []byte{0xFF, 0xFF, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x10}, // ID=65535, opcode=255, size=4096
			wantID:   65535,
			wantSize: 4096,
			wantOp:   255,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			objectID := binary.LittleEndian.Uint32(test.header[0:4])
			sizeOpcode := binary.LittleEndian.Uint32(test.header[4:8])
			size := sizeOpcode >> 16
			opcode := sizeOpcode & 0xffff

			if objectID != test.wantID {
				t.Errorf("object ID = %d, want %d", objectID, test.wantID)
			}
			if size != test.wantSize {
				t.Errorf("size = %d, want %d", size, test.wantSize)
			}
			if uint16(opcode) != test.wantOp {
				t.Errorf("opcode = %d, want %d", opcode, test.wantOp)
			}
		})
	}
}

func TestAllocateID(t *testing.T) {
	d := &Display{
		nextID: 2, // Start at 2 (1 is reserved for display)
	}

	id1 := d.allocateID()
	id2 := d.allocateID()
	id3 := d.allocateID()

	if id1 != 2 {
		t.Errorf("First ID = %d, want 2", id1)
	}
	if id2 != 3 {
		t.Errorf("Second ID = %d, want 3", id2)
	}
	if id3 != 4 {
		t.Errorf("Third ID = %d, want 4", id3)
	}
}

func TestRegistryGlobalStorage(t *testing.T) {
	registry := &Registry{
		id:      2,
		globals: make(map[uint32]Global),
	}

	global1 := Global{Name: 1, Interface: "wl_compositor", Version: 4}
	global2 := Global{Name: 2, Interface: "wl_subcompositor", Version: 1}

	registry.globals[global1.Name] = global1
	registry.globals[global2.Name] = global2

	globals := registry.GetGlobals()
	if len(globals) != 2 {
		t.Errorf("GetGlobals() returned %d globals, want 2", len(globals))
	}

	found, exists := registry.FindGlobal("wl_compositor")
	if !exists {
		t.Error("wl_compositor should be found")
	}
	if found.Name != global1.Name || found.Version != global1.Version {
		t.Errorf("Found global = %+v, want %+v", found, global1)
	}

	if _, exists = registry.FindGlobal("zxdg_decoration_manager_v1"); exists {
		t.Error("zxdg_decoration_manager_v1 should not be found")
	}
}

func TestRegistryHandleGlobal(t *testing.T) {
	registry := &Registry{
		id:       2,
		globals:  make(map[uint32]Global),
		handlers: make(map[string]GlobalHandler),
	}

	var announced uint32
	registry.AddHandler("wp_viewporter", func(_ *Registry, name, version uint32) {
		announced = name
	})

	var data bytes.Buffer
	_ = binary.Write(&data, binary.LittleEndian, uint32(7))
	_ = (&Display{}).marshalArg(&data, "wp_viewporter")
	_ = binary.Write(&data, binary.LittleEndian, uint32(1))
	registry.handleGlobal(data.Bytes())

	if announced != 7 {
		t.Errorf("handler saw name %d, want 7", announced)
	}
	if g, ok := registry.FindGlobal("wp_viewporter"); !ok || g.Version != 1 {
		t.Errorf("FindGlobal = %+v, %v", g, ok)
	}

	var remove [4]byte
	binary.LittleEndian.PutUint32(remove[:], 7)
	registry.handleGlobalRemove(remove[:])
	if _, ok := registry.FindGlobal("wp_viewporter"); ok {
		t.Error("global should be removed")
	}
}

func BenchmarkEventDispatch(b *testing.B) {
	dispatcher := NewEventDispatcher()
	dispatcher.RegisterHandler(123, 1, func(event *Event) {})

	data := []byte{0x01, 0x02, 0x03, 0x04}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dispatcher.Dispatch(123, 1, data)
	}
}

func BenchmarkFixedConversion(b *testing.B) {
	values := []float64{1.0, 0.5, 123.456, -1.5, 256.789}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, v := range values {
			_ = NewFixed(v).Float64()
		}
	}
}
