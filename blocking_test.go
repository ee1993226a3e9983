// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/pbq"
)

// retryWithTimeout retries f until it returns true or timeout expires.
// Reports failure with the given message if timeout is reached.
func retryWithTimeout(t *testing.T, timeout time.Duration, f func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	backoff := iox.Backoff{}
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout after %v: %s", timeout, msg)
		}
		backoff.Wait()
	}
}

// =============================================================================
// Blocking Put / Take
// =============================================================================

func TestPutBlocksUntilTake(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()).Capacity(2))

	for _, s := range []string{"a", "b"} {
		if err := q.Enqueue(&s); err != nil {
			t.Fatalf("Enqueue(%q): %v", s, err)
		}
	}

	var completed atomix.Bool
	done := make(chan error, 1)
	go func() {
		s := "c"
		err := q.Put(context.Background(), &s)
		completed.Store(true)
		done <- err
	}()

	// The producer must still be parked on the full queue.
	time.Sleep(50 * time.Millisecond)
	if completed.Load() {
		t.Fatal("Put on full queue returned before a Take")
	}

	got, err := q.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if got != "a" {
		t.Fatalf("Take: got %q, want %q", got, "a")
	}

	if err := <-done; err != nil {
		t.Fatalf("Put after space freed: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len after unblocked Put: got %d, want 2", q.Len())
	}
	for _, want := range []string{"b", "c"} {
		got, err := q.Dequeue()
		if err != nil || got != want {
			t.Fatalf("Dequeue: got %q, %v, want %q, nil", got, err, want)
		}
	}
}

func TestTakeBlocksUntilPut(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()))

	var completed atomix.Bool
	type result struct {
		elem string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		elem, err := q.Take(context.Background())
		completed.Store(true)
		done <- result{elem, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if completed.Load() {
		t.Fatal("Take on empty queue returned before a Put")
	}

	s := "x"
	if err := q.Put(context.Background(), &s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("Take after Put: %v", r.err)
	}
	if r.elem != "x" {
		t.Fatalf("Take after Put: got %q, want %q", r.elem, "x")
	}
}

func TestManyBlockedProducers(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()).Capacity(1))

	s := "seed"
	if err := q.Enqueue(&s); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const waiters = 4
	var unblocked atomix.Int64
	for range waiters {
		go func() {
			v := "w"
			if err := q.Put(context.Background(), &v); err == nil {
				unblocked.Add(1)
			}
		}()
	}

	// Each Take frees exactly one slot; every waiter gets through.
	for i := range waiters {
		retryWithTimeout(t, 3*time.Second, func() bool {
			return q.Len() == 1
		}, "queue refilled by a blocked producer")
		if _, err := q.Take(context.Background()); err != nil {
			t.Fatalf("Take #%d: %v", i, err)
		}
	}
	retryWithTimeout(t, 3*time.Second, func() bool {
		return unblocked.Load() == waiters
	}, "all blocked producers completed")
}

// =============================================================================
// Timeouts and Cancellation
// =============================================================================

func TestPutTimeout(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()).Capacity(1))

	s := "full"
	if err := q.Enqueue(&s); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	v := "late"
	err := q.Put(ctx, &v)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Put on full queue with deadline: got %v, want DeadlineExceeded", err)
	}
	// No state change on a timed-out wait.
	if q.Len() != 1 {
		t.Fatalf("Len after timed-out Put: got %d, want 1", q.Len())
	}
}

func TestTakeTimeout(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Take on empty queue with deadline: got %v, want DeadlineExceeded", err)
	}
	if q.Len() != 0 {
		t.Fatalf("Len after timed-out Take: got %d, want 0", q.Len())
	}
}

func TestTakeCancellation(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Take: got %v, want Canceled", err)
	}
}

func TestExpiredContextFailsImmediately(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A done context fails even though space and data checks would pass.
	s := "x"
	if err := q.Put(ctx, &s); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put with done context: got %v, want Canceled", err)
	}
	if err := q.Enqueue(&s); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Take(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Take with done context: got %v, want Canceled", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", q.Len())
	}
}

// =============================================================================
// Close Wakes Waiters
// =============================================================================

func TestCloseWakesBlockedWaiters(t *testing.T) {
	q := newStringQueue(t, pbq.New(t.TempDir()).Capacity(1))

	s := "seed"
	if err := q.Enqueue(&s); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Separate empty queue for the blocked consumer.
	empty := newStringQueue(t, pbq.New(t.TempDir()))

	putDone := make(chan error, 1)
	takeDone := make(chan error, 1)
	go func() {
		v := "blocked"
		putDone <- q.Put(context.Background(), &v)
	}()
	go func() {
		_, err := empty.Take(context.Background())
		takeDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := empty.Close(); err != nil {
		t.Fatalf("Close empty: %v", err)
	}

	if err := <-putDone; !errors.Is(err, pbq.ErrClosed) {
		t.Fatalf("blocked Put after Close: got %v, want ErrClosed", err)
	}
	if err := <-takeDone; !errors.Is(err, pbq.ErrClosed) {
		t.Fatalf("blocked Take after Close: got %v, want ErrClosed", err)
	}
}
