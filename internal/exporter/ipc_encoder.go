package exporter

import (
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// IPCEncoder writes an Arrow IPC stream. Batches are written as they are,
// without converting values.
type IPCEncoder struct {
	w   io.Writer
	iw  *ipc.Writer
	err error
}

func NewIPCEncoder(w io.Writer) *IPCEncoder {
	return &IPCEncoder{w: w}
}

func (e *IPCEncoder) WriteSchema(schema *arrow.Schema) error {
	if e.iw != nil {
		return errors.New("ipc schema already written")
	}
	e.iw = ipc.NewWriter(e.w, ipc.WithSchema(schema))
	return nil
}

func (e *IPCEncoder) WriteBatch(rec arrow.Record) error {
	if e.err != nil {
		return e.err
	}
	if e.iw == nil {
		e.err = errors.New("ipc schema not written")
		return e.err
	}
	e.err = e.iw.Write(rec)
	return e.err
}

// Flush is a no-op, the IPC writer does not buffer messages.
func (e *IPCEncoder) Flush() error {
	return e.err
}

func (e *IPCEncoder) Error() error {
	return e.err
}

// Close writes the end of stream marker.
func (e *IPCEncoder) Close() error {
	if e.iw == nil {
		return e.err
	}
	err := e.iw.Close()
	e.iw = nil
	if e.err == nil {
		e.err = err
	}
	return err
}
