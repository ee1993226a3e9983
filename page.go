// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import (
	"encoding/binary"

	"code.hybscloud.com/pbq/internal/mmap"
)

// nextPtrSize is the width of the successor pointer stored at the end
// of every page.
const nextPtrSize = 4

// page is one fixed-size memory-mapped file inside the queue directory.
//
// The payload occupies [0, size-4); the final four bytes hold the id of
// the successor page (0 = none). Pages reference their successor by id
// only, never by object pointer.
type page struct {
	id   uint32
	size int
	m    *mmap.Map
}

// remaining reports the payload bytes still addressable at off.
func (p *page) remaining(off int) int {
	return p.size - nextPtrSize - off
}

// read copies len(dst) payload bytes starting at off into dst.
// The caller guarantees off+len(dst) <= size-4.
func (p *page) read(off int, dst []byte) {
	copy(dst, p.m.Data()[off:])
}

// write copies src into the payload starting at off.
// The caller guarantees off+len(src) <= size-4.
func (p *page) write(off int, src []byte) {
	copy(p.m.Data()[off:], src)
}

// next returns the successor page id, 0 if none.
func (p *page) next() uint32 {
	return binary.LittleEndian.Uint32(p.m.Data()[p.size-nextPtrSize:])
}

// setNext stores the successor page id.
func (p *page) setNext(id uint32) {
	binary.LittleEndian.PutUint32(p.m.Data()[p.size-nextPtrSize:], id)
}

func (p *page) sync() error {
	return p.m.Sync()
}

func (p *page) close() error {
	return p.m.Close()
}
