package main

// #include "handles.h"
import "C"

import (
	"log/slog"
	"runtime/cgo"
	"unsafe"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/driver"
	"sql-arrow-bridge/internal/fetch"
)

// arrow_bridge_connection_make opens a session. user and password may be
// NULL. On failure connection_out is not written.
//
//export arrow_bridge_connection_make
func arrow_bridge_connection_make(
	driverBuf *C.uint8_t, driverLen C.size_t,
	connBuf *C.uint8_t, connLen C.size_t,
	user *C.uint8_t, userLen C.size_t,
	password *C.uint8_t, passwordLen C.size_t,
	loginTimeoutSec *C.uint32_t,
	connectionOut **C.ArrowBridgeConnection,
) *C.ArrowBridgeError {
	session, e := boundary.Connect(background, boundary.ConnectOptions{
		DriverName:       string(goBytes(driverBuf, driverLen)),
		ConnectionString: goBytes(connBuf, connLen),
		User:             goBytes(user, userLen),
		Password:         goBytes(password, passwordLen),
		LoginTimeout:     loginSeconds(loginTimeoutSec),
	})
	if e != nil {
		return newError(e)
	}

	out := (*C.ArrowBridgeConnection)(C.malloc(C.size_t(unsafe.Sizeof(C.ArrowBridgeConnection{}))))
	out.handle = C.uintptr_t(cgo.NewHandle(session))
	*connectionOut = out
	return nil
}

// arrow_bridge_connection_free closes the session unless it was handed to a
// reader or writer, and frees the handle.
//
//export arrow_bridge_connection_free
func arrow_bridge_connection_free(c *C.ArrowBridgeConnection) {
	if s, ok := take(&c.handle).(driver.Session); ok {
		if err := s.Close(); err != nil {
			slog.Warn("Closing connection failed", "error", err)
		}
	}
	C.free(unsafe.Pointer(c))
}

// arrow_bridge_parameter_string_make binds text, or NULL if charBuf is NULL.
// The parameter is consumed by arrow_bridge_reader_query.
//
//export arrow_bridge_parameter_string_make
func arrow_bridge_parameter_string_make(charBuf *C.uint8_t, charLen C.size_t, textEncoding C.uint8_t) *C.ArrowBridgeParameter {
	// Text is handed to the driver as a Go string, the encoding only has to
	// be a known one.
	if _, err := fetch.TextEncodingFromByte(uint8(textEncoding)); err != nil {
		panic(err)
	}
	p := driver.TextParam(goBytes(charBuf, charLen))

	out := (*C.ArrowBridgeParameter)(C.malloc(C.size_t(unsafe.Sizeof(C.ArrowBridgeParameter{}))))
	out.handle = C.uintptr_t(cgo.NewHandle(p))
	return out
}

// takeParams consumes the parameter handles.
func takeParams(params **C.ArrowBridgeParameter, n C.size_t) []driver.Param {
	if params == nil || n == 0 {
		return nil
	}
	handles := unsafe.Slice(params, int(n))
	out := make([]driver.Param, 0, len(handles))
	for _, h := range handles {
		p, _ := take(&h.handle).(driver.Param)
		out = append(out, p)
		C.free(unsafe.Pointer(h))
	}
	return out
}
