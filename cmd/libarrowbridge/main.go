// Command libarrowbridge is built with -buildmode=c-shared and exposes the
// boundary package as the C functions declared in include/arrow_bridge.h.
//
// Every handle is a small struct allocated with malloc that refers to its Go
// value through a cgo.Handle. Arrow structs are passed as void pointers to
// caller owned memory.
package main

// #include "handles.h"
import "C"

import (
	"context"
	"runtime/cgo"
	"time"
	"unsafe"

	"sql-arrow-bridge/internal/boundary"
)

func main() {}

// newError hands e over to the caller. nil stays NULL.
func newError(e *boundary.Error) *C.ArrowBridgeError {
	if e == nil {
		return nil
	}
	out := (*C.ArrowBridgeError)(C.malloc(C.size_t(unsafe.Sizeof(C.ArrowBridgeError{}))))
	out.message = C.CString(e.Message())
	out.kind = C.int(e.Kind())
	return out
}

//export arrow_bridge_error_message
func arrow_bridge_error_message(e *C.ArrowBridgeError) *C.char {
	return e.message
}

//export arrow_bridge_error_kind
func arrow_bridge_error_kind(e *C.ArrowBridgeError) C.int {
	return e.kind
}

//export arrow_bridge_error_free
func arrow_bridge_error_free(e *C.ArrowBridgeError) {
	C.free(unsafe.Pointer(e.message))
	C.free(unsafe.Pointer(e))
}

//export arrow_bridge_log_to_stderr
func arrow_bridge_log_to_stderr(level C.uint32_t) *C.ArrowBridgeError {
	return newError(boundary.LogToStderr(int(level)))
}

//export arrow_bridge_enable_connection_pooling
func arrow_bridge_enable_connection_pooling() *C.ArrowBridgeError {
	return newError(boundary.EnableConnectionPooling())
}

// goBytes copies len bytes at buf. NULL gives nil.
func goBytes(buf *C.uint8_t, n C.size_t) []byte {
	if buf == nil {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(buf), C.int(n))
}

// loginSeconds and querySeconds convert optional timeouts. NULL and 0 mean
// none.
func loginSeconds(v *C.uint32_t) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v) * time.Second
}

func querySeconds(v *C.size_t) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v) * time.Second
}

// take moves the value out of a handle, leaving the handle empty.
func take(h *C.uintptr_t) any {
	if *h == 0 {
		return nil
	}
	handle := cgo.Handle(*h)
	*h = 0
	v := handle.Value()
	handle.Delete()
	return v
}

func value(h C.uintptr_t) any {
	return cgo.Handle(h).Value()
}

var background = context.Background()
