package main

// #include "handles.h"
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/columnar"
	"sql-arrow-bridge/internal/driver"
)

var errConnectionTaken = errors.Mark(
	errors.New("connection has already been handed to a reader or writer"),
	boundary.ErrInvalidArgument,
)

func writer(w *C.ArrowBridgeWriter) *boundary.Writer {
	return value(w.handle).(*boundary.Writer)
}

// arrow_bridge_writer_make moves the session out of connection and takes the
// schema, also on failure.
//
//export arrow_bridge_writer_make
func arrow_bridge_writer_make(
	connection *C.ArrowBridgeConnection,
	tableBuf *C.uint8_t, tableLen C.size_t,
	chunkSize C.size_t,
	schema unsafe.Pointer,
	writerOut **C.ArrowBridgeWriter,
) *C.ArrowBridgeError {
	session, _ := take(&connection.handle).(driver.Session)
	if session == nil {
		if s := cschema(schema); s != nil && !columnar.IsEmptySchema(s) {
			cdata.ReleaseCArrowSchema(s)
		}
		return newError(boundary.NewError(errConnectionTaken))
	}
	w, e := boundary.NewWriter(session, goBytes(tableBuf, tableLen), int(chunkSize), cschema(schema))
	if e != nil {
		return newError(e)
	}

	out := (*C.ArrowBridgeWriter)(C.malloc(C.size_t(unsafe.Sizeof(C.ArrowBridgeWriter{}))))
	out.handle = C.uintptr_t(cgo.NewHandle(w))
	*writerOut = out
	return nil
}

// arrow_bridge_writer_write_batch takes array and schema.
//
//export arrow_bridge_writer_write_batch
func arrow_bridge_writer_write_batch(w *C.ArrowBridgeWriter, array, schema unsafe.Pointer) *C.ArrowBridgeError {
	return newError(writer(w).WriteBatch(background, carray(array), cschema(schema)))
}

//export arrow_bridge_writer_flush
func arrow_bridge_writer_flush(w *C.ArrowBridgeWriter) *C.ArrowBridgeError {
	return newError(writer(w).Flush(background))
}

// arrow_bridge_writer_free drops rows that were not flushed.
//
//export arrow_bridge_writer_free
func arrow_bridge_writer_free(w *C.ArrowBridgeWriter) {
	if v, ok := take(&w.handle).(*boundary.Writer); ok {
		_ = v.Close()
	}
	C.free(unsafe.Pointer(w))
}
