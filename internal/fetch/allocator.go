package fetch

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
)

// allocationFailure is the panic value of a LimitedAllocator running out of
// budget.
type allocationFailure struct {
	requested int
	limit     int64
}

func (f allocationFailure) Error() string {
	return fmt.Sprintf("allocating %d bytes would exceed the memory limit of %d bytes", f.requested, f.limit)
}

// LimitedAllocator hands out memory from mem until limit bytes are in use.
// Beyond that it panics, like a failing allocation. Readers with fallible
// allocations turn that panic into ErrAllocation.
type LimitedAllocator struct {
	mem   memory.Allocator
	limit int64
	used  atomic.Int64
}

// NewLimitedAllocator caps the memory handed out by mem.
func NewLimitedAllocator(mem memory.Allocator, limit int64) *LimitedAllocator {
	return &LimitedAllocator{mem: mem, limit: limit}
}

func (a *LimitedAllocator) Allocate(size int) []byte {
	a.reserve(size)
	return a.mem.Allocate(size)
}

func (a *LimitedAllocator) Reallocate(size int, b []byte) []byte {
	a.reserve(size - len(b))
	return a.mem.Reallocate(size, b)
}

func (a *LimitedAllocator) Free(b []byte) {
	a.used.Add(-int64(len(b)))
	a.mem.Free(b)
}

// InUse is the number of bytes currently handed out.
func (a *LimitedAllocator) InUse() int64 {
	return a.used.Load()
}

func (a *LimitedAllocator) reserve(delta int) {
	if a.used.Add(int64(delta)) > a.limit && delta > 0 {
		a.used.Add(-int64(delta))
		panic(allocationFailure{requested: delta, limit: a.limit})
	}
}

// recoverAllocation runs fn and converts an allocation failure panic into
// ErrAllocation. Any other panic is passed on.
func recoverAllocation(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			failure, ok := r.(allocationFailure)
			if !ok {
				panic(r)
			}
			err = errors.Mark(errors.Wrap(failure, "allocate fetch buffers"), ErrAllocation)
		}
	}()
	return fn()
}
