// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// ReadUint8 reads a single byte at offset.
func (b *RawBuffer) ReadUint8(offset uint32) (uint8, error) {
	s, err := b.Slice(offset, 1)
	if err != nil {
		return 0, err
	}
	return s[0], nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func (b *RawBuffer) ReadUint16(offset uint32) (uint16, error) {
	s, err := b.Slice(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(s), nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func (b *RawBuffer) ReadUint32(offset uint32) (uint32, error) {
	s, err := b.Slice(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s), nil
}

// ReadUint64 reads a little-endian uint64 at offset.
func (b *RawBuffer) ReadUint64(offset uint32) (uint64, error) {
	s, err := b.Slice(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s), nil
}

// StructUnpack decodes a fixed-size little-endian struct from offset into v.
func (b *RawBuffer) StructUnpack(v interface{}, offset, size uint32) error {
	s, err := b.Slice(offset, size)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(s), binary.LittleEndian, v)
}

// ReadCString reads a NUL-terminated ASCII string starting at offset,
// failing with ErrOutsideBoundary if no terminator is found before the
// buffer ends. maxLen bounds how far the scan may look, 0 meaning unbounded.
func (b *RawBuffer) ReadCString(offset, maxLen uint32) (string, uint32, error) {
	data := b.data
	if offset > uint32(len(data)) {
		return "", 0, ErrOutsideBoundary
	}
	end := uint32(len(data))
	if maxLen != 0 && offset+maxLen < end {
		end = offset + maxLen
	}
	i := offset
	for i < end && data[i] != 0 {
		i++
	}
	if i == end && (maxLen != 0 && i-offset == maxLen) {
		return "", 0, ErrOutsideBoundary
	}
	if i >= uint32(len(data)) {
		return "", 0, ErrOutsideBoundary
	}
	return string(data[offset:i]), i + 1 - offset, nil
}

// ReadUTF16String decodes a NUL-terminated UTF-16LE string starting at offset.
func (b *RawBuffer) ReadUTF16String(offset, maxBytes uint32) (string, error) {
	raw, err := b.Slice(offset, maxBytes)
	if err != nil {
		return "", err
	}
	n := bytes.Index(raw, []byte{0, 0})
	if n == 0 {
		return "", nil
	}
	if n < 0 {
		n = len(raw)
	} else if n%2 != 0 {
		n++
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(raw[:n])
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// alignUp4 rounds offset up to the next 4-byte boundary, matching the
// metadata root's per-stream-header alignment rule.
func alignUp4(offset uint32) uint32 {
	return (offset + 3) &^ 3
}

// isBitSet reports whether bit pos is set in n.
func isBitSet(n uint64, pos uint) bool {
	return n&(1<<pos) != 0
}
