package fetch

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/errgroup"
)

type fetched struct {
	rec arrow.Record
	err error
}

// ConcurrentReader prefetches batches of a SequentialReader on a background
// goroutine. One batch waits in the queue while the next one is fetched.
// Batches are delivered in fetch order.
type ConcurrentReader struct {
	reader  *SequentialReader
	batches chan fetched
	stop    chan struct{}
	group   errgroup.Group
	once    sync.Once
	err     error
}

// NewConcurrentReader starts prefetching from r. The concurrent reader owns r
// from now on.
func NewConcurrentReader(r *SequentialReader) *ConcurrentReader {
	c := &ConcurrentReader{
		reader:  r,
		batches: make(chan fetched, 1),
		stop:    make(chan struct{}),
	}
	c.group.Go(c.produce)
	return c
}

func (c *ConcurrentReader) produce() error {
	defer close(c.batches)
	for {
		rec, err := c.reader.NextBatch()
		if rec == nil && err == nil {
			return nil
		}
		select {
		case c.batches <- fetched{rec: rec, err: err}:
			if err != nil {
				return nil
			}
		case <-c.stop:
			if rec != nil {
				rec.Release()
			}
			return nil
		}
	}
}

func (c *ConcurrentReader) Schema() *arrow.Schema {
	return c.reader.Schema()
}

// NextBatch returns the next prefetched batch, waiting for the producer if
// none is ready yet. After an error the producer is stopped and the same
// error is returned on every further call.
func (c *ConcurrentReader) NextBatch() (arrow.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	f, ok := <-c.batches
	if !ok {
		return nil, nil
	}
	if f.err != nil {
		c.err = f.err
	}
	return f.rec, f.err
}

// IntoSequential stops prefetching and hands back the sequential reader.
// Batches already fetched but not yet delivered are discarded.
func (c *ConcurrentReader) IntoSequential() *SequentialReader {
	c.shutdown()
	return c.reader
}

// Close stops prefetching and releases the reader with its cursor.
func (c *ConcurrentReader) Close() error {
	return c.IntoSequential().Close()
}

func (c *ConcurrentReader) shutdown() {
	c.once.Do(func() {
		close(c.stop)
		for f := range c.batches {
			if f.rec != nil {
				f.rec.Release()
			}
		}
		_ = c.group.Wait()
	})
}
