// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import "math"

const (
	// MinPageSize is the smallest accepted page size (512 KiB).
	MinPageSize = 1 << 19

	// MaxPageSize is the largest accepted page size (2 GiB).
	MaxPageSize = 1 << 31

	// DefaultPageSize is 128 MiB.
	DefaultPageSize = 1 << 27

	// DefaultMaxIdlePages is the default bound on the released-page
	// cache.
	DefaultMaxIdlePages = 16

	// DefaultCapacity is effectively unbounded.
	DefaultCapacity = math.MaxInt32
)

// Options configures queue creation.
type Options struct {
	dir           string
	capacity      int
	pageSize      int64
	maxIdlePages  int
	syncOnRelease bool
}

// Builder creates queues with fluent configuration.
//
// Example:
//
//	q, err := pbq.Open[string](pbq.New(dir).Capacity(1024), pbq.StringSerializer{})
//
// All setters validate eagerly and panic on invalid values; I/O errors
// are reported by Open.
type Builder struct {
	opts Options
}

// New creates a queue builder for the given directory.
//
// The directory is created on Open if it does not exist. Reopening an
// existing queue ignores the configured capacity; the stored value wins.
//
// Panics if dir is empty.
func New(dir string) *Builder {
	if dir == "" {
		panic("pbq: directory must not be empty")
	}
	return &Builder{opts: Options{
		dir:          dir,
		capacity:     DefaultCapacity,
		pageSize:     DefaultPageSize,
		maxIdlePages: DefaultMaxIdlePages,
	}}
}

// Capacity bounds the element count. Zero means the queue is always
// full and always empty. Panics if capacity < 0.
func (b *Builder) Capacity(capacity int) *Builder {
	if capacity < 0 {
		panic("pbq: capacity must be >= 0")
	}
	b.opts.capacity = capacity
	return b
}

// PageSize sets the size of every page file in bytes.
// Panics unless MinPageSize <= pageSize <= MaxPageSize.
func (b *Builder) PageSize(pageSize int64) *Builder {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		panic("pbq: page size must be >= 1<<19 and <= 1<<31")
	}
	b.opts.pageSize = pageSize
	return b
}

// MaxIdlePages bounds the cache of released pages kept mapped for
// reuse. Zero deletes pages as soon as they drain. Panics if n < 0.
func (b *Builder) MaxIdlePages(n int) *Builder {
	if n < 0 {
		panic("pbq: max idle pages must be >= 0")
	}
	b.opts.maxIdlePages = n
	return b
}

// SyncOnRelease flushes a page to disk whenever it is released into
// the idle cache. The default is to flush only on Sync and Close.
func (b *Builder) SyncOnRelease(sync bool) *Builder {
	b.opts.syncOnRelease = sync
	return b
}
