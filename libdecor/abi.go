package libdecor

import "unsafe"

// Error codes passed to the context error callback
const (
	ErrorCompositorIncompatible    = 0
	ErrorInvalidFrameConfiguration = 1
)

// ErrorString names a libdecor error code
func ErrorString(code uint32) string {
	switch code {
	case ErrorCompositorIncompatible:
		return "compositor incompatible"
	case ErrorInvalidFrameConfiguration:
		return "invalid frame configuration"
	}
	return "unknown error"
}

// Window state bits reported by a configuration
const (
	WindowStateNone       = 0
	WindowStateActive     = 1 << 0
	WindowStateMaximized  = 1 << 1
	WindowStateFullscreen = 1 << 2
)

// Frame capabilities
const (
	ActionMove       = 1 << 0
	ActionResize     = 1 << 1
	ActionMinimize   = 1 << 2
	ActionFullscreen = 1 << 3
	ActionClose      = 1 << 4

	ActionAll = ActionMove | ActionResize | ActionMinimize | ActionFullscreen | ActionClose
)

// Interface mirrors struct libdecor_interface. libdecor keeps the pointer for
// the lifetime of the context, so instances must stay pinned until Unref.
type Interface struct {
	Error    uintptr // void (*)(struct libdecor *, enum libdecor_error, const char *)
	reserved [10]uintptr
}

// FrameInterface mirrors struct libdecor_frame_interface. libdecor keeps the
// pointer for the lifetime of the frame.
type FrameInterface struct {
	Configure    uintptr // void (*)(frame, configuration, user_data)
	Close        uintptr // void (*)(frame, user_data)
	Commit       uintptr // void (*)(frame, user_data)
	DismissPopup uintptr // void (*)(frame, const char *seat_name, user_data)
	reserved     [10]uintptr
}

// GoString copies a NUL-terminated C string.
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
