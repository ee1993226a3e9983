// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mmap provides fixed-size memory-mapped file regions.
package mmap

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map is a file mapped into memory at a fixed size.
type Map struct {
	file *os.File
	data []byte
}

// Create opens path, creating it if necessary, extends it to size bytes
// and maps it read-write.
func Create(path string, size int64) (*Map, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap: stat %s: %w", path, err)
	}
	if info.Size() < size {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("mmap: extend %s: %w", path, err)
		}
	}
	return mapFile(file, size)
}

// Open maps an existing file read-write. It fails if the file does not
// exist or is smaller than size bytes.
func Open(path string, size int64) (*Map, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap: stat %s: %w", path, err)
	}
	if info.Size() < size {
		file.Close()
		return nil, fmt.Errorf("mmap: %s is %d bytes, want at least %d", path, info.Size(), size)
	}
	return mapFile(file, size)
}

func mapFile(file *os.File, size int64) (*Map, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap: map %s: %w", file.Name(), err)
	}
	return &Map{file: file, data: data}, nil
}

// Data returns the mapped region. The slice is invalid after Close.
func (m *Map) Data() []byte {
	return m.data
}

// Sync flushes the mapped region to disk.
func (m *Map) Sync() error {
	if m.data == nil {
		return errors.New("mmap: region is closed")
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmap: sync %s: %w", m.file.Name(), err)
	}
	return nil
}

// Close unmaps the region and closes the backing file.
func (m *Map) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("mmap: unmap %s: %w", m.file.Name(), err)
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			return fmt.Errorf("mmap: close %s: %w", m.file.Name(), err)
		}
		m.file = nil
	}
	return nil
}
