// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pbq provides a persistent bounded blocking FIFO queue.
//
// A queue lives in a single directory of memory-mapped files: a 24-byte
// index header recording the element count and the head/tail cursors,
// and a chain of fixed-size page files holding length-prefixed element
// bytes. Element order and count survive process restarts; reopening
// the directory resumes the queue where it left off.
//
// # Quick Start
//
//	q, err := pbq.Open[string](pbq.New("/var/lib/myapp/queue"), pbq.StringSerializer{})
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	s := "hello"
//	if err := q.Enqueue(&s); err != nil {
//	    // pbq.IsWouldBlock(err): queue is full
//	}
//
//	elem, err := q.Dequeue()
//	if pbq.IsWouldBlock(err) {
//	    // queue is empty
//	}
//
// # Blocking Operations
//
// Enqueue and Dequeue never wait; they return [ErrWouldBlock] when the
// queue is full or empty. Put and Take wait for space or data and are
// bounded by a context, which expresses both timeouts and cancellation:
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	elem, err := q.Take(ctx) // ctx.Err() after one second of emptiness
//
// # Configuration
//
// Queues are created through a builder:
//
//	q, err := pbq.Open[Event](
//	    pbq.New(dir).
//	        Capacity(1 << 16).
//	        PageSize(1 << 20).
//	        MaxIdlePages(4),
//	    nil, // JSON codec
//	)
//
// Capacity is fixed at creation and persisted; reopening an existing
// queue ignores the configured capacity. Page size bounds are
// [MinPageSize] and [MaxPageSize]. Released pages are kept mapped in a
// bounded idle cache for reuse; evicted pages are deleted from disk.
//
// # Serialization
//
// Elements cross the disk boundary through a [Serializer]. The package
// ships [JSONSerializer] (the default), [BytesSerializer] and
// [StringSerializer]. Serializers run outside the queue lock and must
// be safe for concurrent use.
//
// # Durability
//
// Writes go through shared memory mappings, so data reaches the page
// cache immediately and disk at the kernel's pace. A crash may lose
// the most recent enqueues but never exposes a partial element: on
// recovery the index describes a valid FIFO prefix of what was
// enqueued. Call Sync for an explicit durability point, or enable
// SyncOnRelease on the builder.
//
// # Concurrency
//
// One Queue instance may be shared by any number of goroutines; a
// single mutex serializes operations, and blocking calls wait on
// re-armed broadcast channels. Concurrent access to one directory from
// multiple processes is not supported.
package pbq
