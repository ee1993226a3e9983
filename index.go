// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import (
	"encoding/binary"

	"code.hybscloud.com/pbq/internal/mmap"
)

// indexName is the header file inside every queue directory.
const indexName = ".index"

// The index is a 24-byte memory-mapped header with six little-endian
// uint32 fields at fixed offsets. It is the single source of truth for
// the element count and the head/tail cursors.
const (
	indexLength    = 24
	idxSize        = 0
	idxCapacity    = 4
	idxHeadFile    = 8
	idxHeadOffset  = 12
	idxTailFile    = 16
	idxTailOffset  = 20
)

type index struct {
	m *mmap.Map
}

// createIndex writes a fresh header: size 0, the given capacity, and
// both cursors on page 1 at offset 0.
func createIndex(path string, capacity int) (*index, error) {
	m, err := mmap.Create(path, indexLength)
	if err != nil {
		return nil, err
	}
	ix := &index{m: m}
	ix.setCapacity(capacity)
	ix.setHeadFile(1)
	ix.setTailFile(1)
	return ix, nil
}

// openIndex maps an existing header. The stored capacity is
// authoritative for the reopened queue.
func openIndex(path string) (*index, error) {
	m, err := mmap.Open(path, indexLength)
	if err != nil {
		return nil, err
	}
	return &index{m: m}, nil
}

func (ix *index) get(off int) int {
	return int(binary.LittleEndian.Uint32(ix.m.Data()[off:]))
}

func (ix *index) set(off, v int) {
	binary.LittleEndian.PutUint32(ix.m.Data()[off:], uint32(v))
}

func (ix *index) size() int             { return ix.get(idxSize) }
func (ix *index) setSize(n int)         { ix.set(idxSize, n) }
func (ix *index) capacity() int         { return ix.get(idxCapacity) }
func (ix *index) setCapacity(n int)     { ix.set(idxCapacity, n) }
func (ix *index) headFile() uint32      { return uint32(ix.get(idxHeadFile)) }
func (ix *index) setHeadFile(id uint32) { ix.set(idxHeadFile, int(id)) }
func (ix *index) headOffset() int       { return ix.get(idxHeadOffset) }
func (ix *index) setHeadOffset(n int)   { ix.set(idxHeadOffset, n) }
func (ix *index) tailFile() uint32      { return uint32(ix.get(idxTailFile)) }
func (ix *index) setTailFile(id uint32) { ix.set(idxTailFile, int(id)) }
func (ix *index) tailOffset() int       { return ix.get(idxTailOffset) }
func (ix *index) setTailOffset(n int)   { ix.set(idxTailOffset, n) }

func (ix *index) sync() error {
	return ix.m.Sync()
}

func (ix *index) close() error {
	return ix.m.Close()
}
