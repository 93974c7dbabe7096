package main

// #include "handles.h"
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/cdata"

	"sql-arrow-bridge/internal/boundary"
	"sql-arrow-bridge/internal/driver"
)

func reader(r *C.ArrowBridgeReader) *boundary.Reader {
	return value(r.handle).(*boundary.Reader)
}

func carray(p unsafe.Pointer) *cdata.CArrowArray {
	return (*cdata.CArrowArray)(p)
}

func cschema(p unsafe.Pointer) *cdata.CArrowSchema {
	return (*cdata.CArrowSchema)(p)
}

//export arrow_bridge_reader_make
func arrow_bridge_reader_make(readerOut **C.ArrowBridgeReader) {
	out := (*C.ArrowBridgeReader)(C.malloc(C.size_t(unsafe.Sizeof(C.ArrowBridgeReader{}))))
	out.handle = C.uintptr_t(cgo.NewHandle(boundary.NewReader()))
	*readerOut = out
}

//export arrow_bridge_reader_free
func arrow_bridge_reader_free(r *C.ArrowBridgeReader) {
	if v, ok := take(&r.handle).(*boundary.Reader); ok {
		// Close errors are only logged at debug level.
		_ = v.Close()
	}
	C.free(unsafe.Pointer(r))
}

// arrow_bridge_reader_query moves the session out of connection and the
// parameters out of their handles, also on failure. The connection handle
// still has to be freed by the caller.
//
//export arrow_bridge_reader_query
func arrow_bridge_reader_query(
	r *C.ArrowBridgeReader,
	connection *C.ArrowBridgeConnection,
	queryBuf *C.uint8_t, queryLen C.size_t,
	parameters **C.ArrowBridgeParameter, parametersLen C.size_t,
	queryTimeoutSec *C.size_t,
) *C.ArrowBridgeError {
	session, _ := take(&connection.handle).(driver.Session)
	params := takeParams(parameters, parametersLen)
	if session == nil {
		return newError(boundary.NewError(errConnectionTaken))
	}
	return newError(reader(r).Query(background, session, goBytes(queryBuf, queryLen), params, querySeconds(queryTimeoutSec)))
}

// arrow_bridge_reader_bind_buffers takes the schema override if it is not
// NULL and not released.
//
//export arrow_bridge_reader_bind_buffers
func arrow_bridge_reader_bind_buffers(
	r *C.ArrowBridgeReader,
	maxNumRowsPerBatch C.size_t,
	maxBytesPerBatch C.size_t,
	maxTextSize C.size_t,
	maxBinarySize C.size_t,
	fallibleAllocations C.bool,
	fetchConcurrently C.bool,
	textEncoding C.uint8_t,
	schema unsafe.Pointer,
) *C.ArrowBridgeError {
	return newError(reader(r).BindBuffers(boundary.BufferOptions{
		MaxRowsPerBatch:     int(maxNumRowsPerBatch),
		MaxBytesPerBatch:    int(maxBytesPerBatch),
		MaxTextSize:         int(maxTextSize),
		MaxBinarySize:       int(maxBinarySize),
		FallibleAllocations: bool(fallibleAllocations),
		FetchConcurrently:   bool(fetchConcurrently),
		TextEncoding:        uint8(textEncoding),
	}, cschema(schema)))
}

// arrow_bridge_reader_next writes 1 to has_next and fills array and schema
// if there was another batch, 0 otherwise.
//
//export arrow_bridge_reader_next
func arrow_bridge_reader_next(r *C.ArrowBridgeReader, array, schema unsafe.Pointer, hasNext *C.int) *C.ArrowBridgeError {
	var next bool
	if e := reader(r).Next(carray(array), cschema(schema), &next); e != nil {
		return newError(e)
	}
	*hasNext = 0
	if next {
		*hasNext = 1
	}
	return nil
}

//export arrow_bridge_reader_more_results
func arrow_bridge_reader_more_results(r *C.ArrowBridgeReader, hasMoreResults *C.bool) *C.ArrowBridgeError {
	var more bool
	if e := reader(r).MoreResults(&more); e != nil {
		return newError(e)
	}
	*hasMoreResults = C.bool(more)
	return nil
}

//export arrow_bridge_reader_schema
func arrow_bridge_reader_schema(r *C.ArrowBridgeReader, outSchema unsafe.Pointer) *C.ArrowBridgeError {
	return newError(reader(r).Schema(cschema(outSchema)))
}

//export arrow_bridge_reader_into_concurrent
func arrow_bridge_reader_into_concurrent(r *C.ArrowBridgeReader) *C.ArrowBridgeError {
	return newError(reader(r).IntoConcurrent())
}
