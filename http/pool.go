package http

import (
	"bufio"
	"errors"
	"io"
	"runtime"
	"sync/atomic"
)

var (
	ErrFull  = errors.New("ring buffer is full")
	ErrEmpty = errors.New("ring buffer is empty")
)

// connBuffers is the reusable per-connection state: one buffered reader and
// one buffered writer.
type connBuffers struct {
	br *bufio.Reader
	bw *bufio.Writer
}

func (b *connBuffers) reset(rw io.ReadWriter) {
	b.br.Reset(rw)
	b.bw.Reset(rw)
}

// connPool hands out connection buffers. Exactly capacity buffers exist, so
// capacity bounds the connections served at once: an empty ring means the
// server is full. The ring itself may be larger after power-of-two rounding.
type connPool struct {
	ready RingBuffer[*connBuffers]
}

func newConnPool(capacity int) *connPool {
	p := &connPool{ready: NewRingBuffer[*connBuffers](capacity)}
	for i := 0; i < capacity; i++ {
		_ = p.ready.Enqueue(&connBuffers{
			br: bufio.NewReaderSize(nil, DefaultReadBufferSize),
			bw: bufio.NewWriterSize(nil, DefaultWriteBufferSize),
		})
	}
	return p
}

func (p *connPool) acquire() (*connBuffers, bool) {
	b, err := p.ready.Dequeue()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (p *connPool) release(b *connBuffers) {
	b.reset(nil)
	_ = p.ready.Enqueue(b)
}

// RingBuffer is a bounded lock-free MPMC queue.
type RingBuffer[T any] struct {
	buffer []slot[T]
	mask   uint64
	enqPos uint64
	deqPos uint64
}

type slot[T any] struct {
	sequence uint64
	value    T
}

// NewRingBuffer creates a ring buffer whose size is size rounded up to a
// power of two.
func NewRingBuffer[T any](size int) RingBuffer[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	buf := make([]slot[T], n)
	for i := range buf {
		buf[i].sequence = uint64(i)
	}
	return RingBuffer[T]{
		buffer: buf,
		mask:   uint64(n - 1),
	}
}

func (q *RingBuffer[T]) Cap() int {
	return len(q.buffer)
}

// Enqueue adds an item to the ring buffer
func (q *RingBuffer[T]) Enqueue(val T) error {
	for {
		pos := atomic.LoadUint64(&q.enqPos)
		slot := &q.buffer[pos&q.mask]

		seq := atomic.LoadUint64(&slot.sequence)
		delta := int64(seq) - int64(pos)

		if delta == 0 {
			if atomic.CompareAndSwapUint64(&q.enqPos, pos, pos+1) {
				slot.value = val
				atomic.StoreUint64(&slot.sequence, pos+1)
				return nil
			}
		} else if delta < 0 {
			return ErrFull
		} else {
			runtime.Gosched()
		}
	}
}

// Dequeue removes and returns the oldest item
func (q *RingBuffer[T]) Dequeue() (T, error) {
	var zero T
	for {
		pos := atomic.LoadUint64(&q.deqPos)
		slot := &q.buffer[pos&q.mask]

		seq := atomic.LoadUint64(&slot.sequence)
		delta := int64(seq) - int64(pos+1)

		if delta == 0 {
			if atomic.CompareAndSwapUint64(&q.deqPos, pos, pos+1) {
				val := slot.value
				slot.value = zero
				atomic.StoreUint64(&slot.sequence, pos+q.mask+1)
				return val, nil
			}
		} else if delta < 0 {
			return zero, ErrEmpty
		} else {
			runtime.Gosched()
		}
	}
}
