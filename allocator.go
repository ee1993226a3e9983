// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"code.hybscloud.com/pbq/internal/mmap"
)

// pageAllocator owns the page files of one queue directory.
//
// It hands out pages by id, keeps a bounded cache of released pages for
// reuse, and issues fresh ids from a monotonic counter. The allocator
// holds the authoritative id→page mapping; callers share page objects
// with it. All methods are called under the queue lock.
type pageAllocator struct {
	dir           string
	pageSize      int64
	maxIdle       int
	syncOnRelease bool

	nextID uint32
	pages  map[uint32]*page
	idle   []uint32 // released page ids, oldest first
}

func newPageAllocator(dir string, pageSize int64, maxIdle int) *pageAllocator {
	return &pageAllocator{
		dir:      dir,
		pageSize: pageSize,
		maxIdle:  maxIdle,
		nextID:   1,
		pages:    make(map[uint32]*page),
	}
}

// scan initializes the fresh-id counter from the files already present.
// The directory must exist.
func (a *pageAllocator) scan() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("pbq: read directory %s: %w", a.dir, err)
	}
	for _, e := range entries {
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil || id == 0 {
			continue
		}
		if uint32(id) >= a.nextID {
			a.nextID = uint32(id) + 1
		}
	}
	return nil
}

// acquire returns a fresh page with a zeroed successor pointer. The
// oldest idle page is reused when one is available; otherwise a new
// file is created under the next id.
func (a *pageAllocator) acquire() (*page, error) {
	if len(a.idle) > 0 {
		id := a.idle[0]
		a.idle = a.idle[1:]
		p := a.pages[id]
		p.setNext(0)
		return p, nil
	}
	id := a.nextID
	m, err := mmap.Create(a.path(id), a.pageSize)
	if err != nil {
		return nil, err
	}
	a.nextID++
	p := &page{id: id, size: int(a.pageSize), m: m}
	p.setNext(0)
	a.pages[id] = p
	return p, nil
}

// acquireID returns the page with the given id, removing it from the
// idle cache if present. The page file must exist.
func (a *pageAllocator) acquireID(id uint32) (*page, error) {
	if p, ok := a.pages[id]; ok {
		for i, idle := range a.idle {
			if idle == id {
				a.idle = append(a.idle[:i], a.idle[i+1:]...)
				break
			}
		}
		return p, nil
	}
	m, err := mmap.Open(a.path(id), a.pageSize)
	if err != nil {
		return nil, err
	}
	p := &page{id: id, size: int(a.pageSize), m: m}
	a.pages[id] = p
	return p, nil
}

// release marks a page idle. When the idle cache is full the oldest
// entry is evicted first: its mapping is closed and its file deleted.
func (a *pageAllocator) release(p *page) error {
	if a.syncOnRelease {
		if err := p.sync(); err != nil {
			return err
		}
	}
	if a.maxIdle == 0 {
		return a.evict(p.id)
	}
	if len(a.idle) >= a.maxIdle {
		oldest := a.idle[0]
		a.idle = a.idle[1:]
		if err := a.evict(oldest); err != nil {
			return err
		}
	}
	a.idle = append(a.idle, p.id)
	return nil
}

func (a *pageAllocator) evict(id uint32) error {
	p := a.pages[id]
	delete(a.pages, id)
	if err := p.close(); err != nil {
		return err
	}
	if err := os.Remove(a.path(id)); err != nil {
		return fmt.Errorf("pbq: remove page %d: %w", id, err)
	}
	return nil
}

// closeAll unmaps every page the allocator has mapped. Files are kept.
func (a *pageAllocator) closeAll() error {
	var firstErr error
	for id, p := range a.pages {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.pages, id)
	}
	a.idle = nil
	return firstErr
}

func (a *pageAllocator) path(id uint32) string {
	return filepath.Join(a.dir, strconv.FormatUint(uint64(id), 10))
}
