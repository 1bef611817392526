// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// RawBuffer is a contiguous, read-only byte region backing an Image: either a
// memory-mapped file or a caller-supplied buffer. It remains valid for the
// lifetime of the Image that owns it.
type RawBuffer struct {
	data  []byte
	mm    mmap.MMap
	f     *os.File
	owned bool
}

// newRawBufferFromFile memory-maps the given file read-only.
func newRawBufferFromFile(f *os.File) (*RawBuffer, error) {
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &RawBuffer{data: data, mm: data, f: f, owned: true}, nil
}

// newRawBufferFromBytes wraps an existing buffer. When dup is true the
// buffer is duplicated so the caller may freely mutate the original; when
// false, the Image borrows the slice and the caller must keep it alive and
// immutable for the Image's lifetime.
func newRawBufferFromBytes(data []byte, dup bool) *RawBuffer {
	if !dup {
		return &RawBuffer{data: data, owned: false}
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return &RawBuffer{data: owned, owned: true}
}

// Len returns the total length of the backing region.
func (b *RawBuffer) Len() uint32 {
	return uint32(len(b.data))
}

// Bytes returns the full backing slice. Callers must not retain it past the
// owning Image's Close.
func (b *RawBuffer) Bytes() []byte {
	return b.data
}

// Slice returns data[offset:offset+size], or ErrOutsideBoundary if the span
// exceeds the buffer.
func (b *RawBuffer) Slice(offset, size uint32) ([]byte, error) {
	end := offset + size
	if end < offset || end > b.Len() {
		return nil, ErrOutsideBoundary
	}
	return b.data[offset:end], nil
}

// Close releases the backing mapping or file handle, if any. Safe to call on
// a buffer-backed RawBuffer.
func (b *RawBuffer) Close() error {
	if b.mm != nil {
		_ = b.mm.Unmap()
		b.mm = nil
	}
	if b.f != nil {
		err := b.f.Close()
		b.f = nil
		return err
	}
	return nil
}
