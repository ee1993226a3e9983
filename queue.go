// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"code.hybscloud.com/atomix"
)

// Queue is a persistent bounded blocking FIFO queue.
//
// Elements are length-prefixed and appended to a linked chain of
// memory-mapped page files; a 24-byte index header records the element
// count and the head/tail cursors, so order and count survive process
// restarts. One Queue instance may be shared by any number of
// goroutines; a single mutex serializes all operations. Multi-process
// access to the same directory is not supported.
//
// Durability is best-effort: a crash between a page write and the index
// update loses at most the most recent enqueues, never produces a
// partial element. Call Sync for an explicit durability point.
type Queue[T any] struct {
	dir      string
	ser      Serializer[T]
	capacity int

	mu       sync.Mutex
	notFull  chan struct{}
	notEmpty chan struct{}
	closed   atomix.Bool

	idx   *index
	alloc *pageAllocator
	head  *page
	tail  *page
}

// Open creates or reopens the queue stored in the builder's directory.
//
// A missing or empty directory is initialized as a fresh queue with the
// configured capacity. A non-empty directory must contain a queue index
// (ErrNotQueueDir otherwise); its stored capacity overrides the
// configured one. A nil serializer selects the JSON codec.
func Open[T any](b *Builder, serializer Serializer[T]) (*Queue[T], error) {
	if serializer == nil {
		serializer = JSONSerializer[T]{}
	}
	opts := b.opts

	idx, fresh, err := openOrCreate(opts.dir, opts.capacity)
	if err != nil {
		return nil, err
	}

	alloc := newPageAllocator(opts.dir, opts.pageSize, opts.maxIdlePages)
	alloc.syncOnRelease = opts.syncOnRelease
	if err := alloc.scan(); err != nil {
		idx.close()
		return nil, err
	}

	q := &Queue[T]{
		dir:      opts.dir,
		ser:      serializer,
		capacity: idx.capacity(),
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
		idx:      idx,
		alloc:    alloc,
	}

	if fresh {
		// No page files exist yet; the first acquire creates page 1,
		// which is where a fresh index points both cursors.
		q.head, err = alloc.acquire()
	} else {
		q.head, err = alloc.acquireID(idx.headFile())
	}
	if err != nil {
		idx.close()
		return nil, err
	}
	if tailID := idx.tailFile(); tailID == q.head.id {
		q.tail = q.head
	} else if q.tail, err = alloc.acquireID(tailID); err != nil {
		alloc.closeAll()
		idx.close()
		return nil, err
	}
	return q, nil
}

func openOrCreate(dir string, capacity int) (ix *index, fresh bool, err error) {
	indexPath := filepath.Join(dir, indexName)
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("pbq: create directory %s: %w", dir, err)
		}
		ix, err = createIndex(indexPath, capacity)
		return ix, true, err
	case err != nil:
		return nil, false, fmt.Errorf("pbq: read directory %s: %w", dir, err)
	case len(entries) == 0:
		ix, err = createIndex(indexPath, capacity)
		return ix, true, err
	default:
		if _, err := os.Stat(indexPath); err != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrNotQueueDir, dir)
		}
		ix, err = openIndex(indexPath)
		return ix, false, err
	}
}

// Enqueue adds an element (non-blocking).
// Returns ErrWouldBlock if the queue is full, ErrClosed after Close.
// Panics if elem is nil.
func (q *Queue[T]) Enqueue(elem *T) error {
	data, err := q.encode(elem)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return ErrClosed
	}
	if q.idx.size() == q.capacity {
		return ErrWouldBlock
	}
	return q.enqueueLocked(data)
}

// Put adds an element, waiting while the queue is full.
//
// The wait is bounded by ctx: cancellation or an expired deadline
// returns ctx.Err() with the queue unchanged. A context that is
// already done fails immediately even if space is available.
// Panics if elem is nil.
func (q *Queue[T]) Put(ctx context.Context, elem *T) error {
	data, err := q.encode(elem)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	for {
		if q.closed.Load() {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.idx.size() < q.capacity {
			break
		}
		wake := q.notFull
		q.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
		q.mu.Lock()
	}
	err = q.enqueueLocked(data)
	q.mu.Unlock()
	return err
}

// Dequeue removes and returns the head element (non-blocking).
// Returns (zero-value, ErrWouldBlock) if the queue is empty.
func (q *Queue[T]) Dequeue() (T, error) {
	var zero T
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	if q.idx.size() == 0 {
		q.mu.Unlock()
		return zero, ErrWouldBlock
	}
	data, err := q.dequeueLocked()
	if err == nil {
		q.signal(&q.notFull)
	}
	q.mu.Unlock()
	if err != nil {
		return zero, err
	}
	return q.ser.Decode(data)
}

// Take removes and returns the head element, waiting while the queue
// is empty. The wait is bounded by ctx as in Put.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	q.mu.Lock()
	for {
		if q.closed.Load() {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if q.idx.size() > 0 {
			break
		}
		wake := q.notEmpty
		q.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		q.mu.Lock()
	}
	data, err := q.dequeueLocked()
	if err == nil {
		q.signal(&q.notFull)
	}
	q.mu.Unlock()
	if err != nil {
		return zero, err
	}
	return q.ser.Decode(data)
}

// Peek returns the head element without removing it. The head cursor
// is not advanced and no page is released.
// Returns (zero-value, ErrWouldBlock) if the queue is empty.
func (q *Queue[T]) Peek() (T, error) {
	var zero T
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	if q.idx.size() == 0 {
		q.mu.Unlock()
		return zero, ErrWouldBlock
	}
	cur := cursor{page: q.head, off: q.idx.headOffset()}
	data, err := q.readFrameAt(&cur)
	q.mu.Unlock()
	if err != nil {
		return zero, err
	}
	return q.ser.Decode(data)
}

// Drain removes up to max elements in FIFO order and returns them.
// It signals waiting producers once if anything was drained.
//
// The whole batch is removed from the queue before any element is
// decoded: if a decode fails, the elements decoded before it are
// returned together with the error, and the failed element and every
// later element of the batch are lost.
func (q *Queue[T]) Drain(max int) ([]T, error) {
	if max <= 0 {
		return nil, nil
	}
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	n := min(max, q.idx.size())
	frames := make([][]byte, 0, n)
	var ioErr error
	for range n {
		data, err := q.dequeueLocked()
		if err != nil {
			ioErr = err
			break
		}
		frames = append(frames, data)
	}
	// Waiting producers are woken once per batch, not per element.
	if len(frames) > 0 {
		q.signal(&q.notFull)
	}
	q.mu.Unlock()

	out := make([]T, 0, len(frames))
	for _, data := range frames {
		elem, err := q.ser.Decode(data)
		if err != nil {
			return out, err
		}
		out = append(out, elem)
	}
	return out, ioErr
}

// DrainAll removes and returns every element currently enqueued.
func (q *Queue[T]) DrainAll() ([]T, error) {
	return q.Drain(DefaultCapacity)
}

// All returns a snapshot iterator over the current contents in FIFO
// order. The queue lock is held for the whole iteration; cursors are
// not advanced and no page is released.
func (q *Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed.Load() {
			return
		}
		cur := cursor{page: q.head, off: q.idx.headOffset()}
		for range q.idx.size() {
			data, err := q.readFrameAt(&cur)
			if err != nil {
				return
			}
			elem, err := q.ser.Decode(data)
			if err != nil {
				return
			}
			if !yield(elem) {
				return
			}
		}
	}
}

// Len returns the number of elements currently enqueued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idx.size()
}

// Cap returns the maximum element count, fixed at queue creation.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Free returns the remaining capacity.
func (q *Queue[T]) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.idx.size()
}

// Sync flushes every mapped page and then the index to disk.
func (q *Queue[T]) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return ErrClosed
	}
	for _, p := range q.alloc.pages {
		if err := p.sync(); err != nil {
			return err
		}
	}
	return q.idx.sync()
}

// Close flushes and unmaps the index and every mapped page, and wakes
// all blocked producers and consumers with ErrClosed. Page files are
// kept on disk; reopening the directory restores the queue.
// Close is idempotent.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return nil
	}
	q.closed.Store(true)
	close(q.notFull)
	close(q.notEmpty)

	err := q.idx.sync()
	for _, p := range q.alloc.pages {
		if e := p.sync(); err == nil {
			err = e
		}
	}
	if e := q.alloc.closeAll(); err == nil {
		err = e
	}
	if e := q.idx.close(); err == nil {
		err = e
	}
	return err
}

func (q *Queue[T]) encode(elem *T) ([]byte, error) {
	if elem == nil {
		panic("pbq: element must not be nil")
	}
	return q.ser.Encode(*elem)
}

// enqueueLocked frames data into the page chain, bumps the size and
// wakes consumers.
func (q *Queue[T]) enqueueLocked(data []byte) error {
	var prefix [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
	if err := q.writeBytes(prefix[:]); err != nil {
		return err
	}
	if err := q.writeBytes(data); err != nil {
		return err
	}
	q.idx.setSize(q.idx.size() + 1)
	q.signal(&q.notEmpty)
	return nil
}

// dequeueLocked reads one frame from the page chain and drops the
// size. The caller signals not-full: once per element for single
// dequeues, once per batch for Drain.
func (q *Queue[T]) dequeueLocked() ([]byte, error) {
	var prefix [frameHeaderSize]byte
	if err := q.readBytes(prefix[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(prefix[:]))
	if err := q.readBytes(data); err != nil {
		return nil, err
	}
	q.idx.setSize(q.idx.size() - 1)
	return data, nil
}

// frameHeaderSize is the width of the element length prefix.
const frameHeaderSize = 4

// writeBytes appends src at the tail cursor, extending the chain with
// fresh pages as needed, and persists the cursor to the index.
func (q *Queue[T]) writeBytes(src []byte) error {
	tail := q.tail
	off := q.idx.tailOffset()
	for len(src) > 0 {
		avail := tail.remaining(off)
		if avail < len(src) {
			tail.write(off, src[:avail])
			next, err := q.alloc.acquire()
			if err != nil {
				return err
			}
			tail.setNext(next.id)
			tail = next
			off = 0
			src = src[avail:]
		} else {
			tail.write(off, src)
			off += len(src)
			src = nil
		}
	}
	q.tail = tail
	q.idx.setTailFile(tail.id)
	q.idx.setTailOffset(off)
	return nil
}

// readBytes fills dst from the head cursor, releasing each page it
// fully drains, and persists the cursor to the index.
func (q *Queue[T]) readBytes(dst []byte) error {
	head := q.head
	off := q.idx.headOffset()
	for len(dst) > 0 {
		avail := head.remaining(off)
		if avail < len(dst) {
			head.read(off, dst[:avail])
			next, err := q.alloc.acquireID(head.next())
			if err != nil {
				return err
			}
			if err := q.alloc.release(head); err != nil {
				return err
			}
			head = next
			off = 0
			dst = dst[avail:]
		} else {
			head.read(off, dst)
			off += len(dst)
			dst = nil
		}
	}
	q.head = head
	q.idx.setHeadFile(head.id)
	q.idx.setHeadOffset(off)
	return nil
}

// cursor is a local (page, offset) read position used by Peek and All.
type cursor struct {
	page *page
	off  int
}

// readFrameAt reads one length-prefixed element at cur and advances
// cur past it. Pages are traversed but never released.
func (q *Queue[T]) readFrameAt(cur *cursor) ([]byte, error) {
	var prefix [frameHeaderSize]byte
	if err := q.copyAt(cur, prefix[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(prefix[:]))
	if err := q.copyAt(cur, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (q *Queue[T]) copyAt(cur *cursor, dst []byte) error {
	for len(dst) > 0 {
		avail := cur.page.remaining(cur.off)
		if avail < len(dst) {
			cur.page.read(cur.off, dst[:avail])
			next, err := q.alloc.acquireID(cur.page.next())
			if err != nil {
				return err
			}
			cur.page = next
			cur.off = 0
			dst = dst[avail:]
		} else {
			cur.page.read(cur.off, dst)
			cur.off += len(dst)
			dst = nil
		}
	}
	return nil
}

// signal wakes every goroutine waiting on the given condition channel
// and re-arms it. Waiters re-check their predicate on wake, so extra
// wakeups are harmless.
func (q *Queue[T]) signal(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
