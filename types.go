// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import "context"

// Producer is the interface for non-blocking enqueueing.
//
// The element is passed by pointer to avoid copying large structs; the
// queue stores the encoded bytes, so the original can be modified after
// Enqueue returns.
type Producer[T any] interface {
	// Enqueue adds an element (non-blocking).
	// Returns ErrWouldBlock if the queue is full.
	Enqueue(elem *T) error
}

// Consumer is the interface for non-blocking dequeueing.
type Consumer[T any] interface {
	// Dequeue removes and returns the head element (non-blocking).
	// Returns (zero-value, ErrWouldBlock) if the queue is empty.
	Dequeue() (T, error)
}

// BlockingProducer is the interface for enqueueing with waits.
type BlockingProducer[T any] interface {
	// Put adds an element, waiting while the queue is full.
	// The wait ends when ctx is cancelled or its deadline passes,
	// in which case ctx.Err() is returned and the queue is unchanged.
	Put(ctx context.Context, elem *T) error
}

// BlockingConsumer is the interface for dequeueing with waits.
type BlockingConsumer[T any] interface {
	// Take removes and returns the head element, waiting while the
	// queue is empty. The wait ends when ctx is cancelled or its
	// deadline passes, in which case ctx.Err() is returned and the
	// queue is unchanged.
	Take(ctx context.Context) (T, error)
}
