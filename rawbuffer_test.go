// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import "testing"

func TestRawBufferSliceBounds(t *testing.T) {
	b := newRawBufferFromBytes([]byte{1, 2, 3, 4}, false)

	s, err := b.Slice(1, 2)
	if err != nil {
		t.Fatalf("Slice(1,2): %v", err)
	}
	if len(s) != 2 || s[0] != 2 || s[1] != 3 {
		t.Errorf("Slice(1,2) = %v, want [2 3]", s)
	}

	if _, err := b.Slice(3, 2); err != ErrOutsideBoundary {
		t.Errorf("Slice(3,2) err = %v, want ErrOutsideBoundary", err)
	}

	// offset+size overflowing uint32 must also be rejected, not wrap around.
	if _, err := b.Slice(0xffffffff, 2); err != ErrOutsideBoundary {
		t.Errorf("Slice(max,2) err = %v, want ErrOutsideBoundary", err)
	}
}

func TestRawBufferBorrowVsDuplicate(t *testing.T) {
	data := []byte{1, 2, 3}

	borrowed := newRawBufferFromBytes(data, false)
	data[0] = 0xff
	if borrowed.Bytes()[0] != 0xff {
		t.Error("borrowed RawBuffer should observe mutations to the caller's slice")
	}

	data2 := []byte{1, 2, 3}
	dup := newRawBufferFromBytes(data2, true)
	data2[0] = 0xff
	if dup.Bytes()[0] == 0xff {
		t.Error("duplicated RawBuffer must not observe mutations to the caller's slice")
	}
}

func TestRawBufferReadPrimitives(t *testing.T) {
	b := newRawBufferFromBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, false)

	v16, err := b.ReadUint16(0)
	if err != nil || v16 != 0x0201 {
		t.Errorf("ReadUint16(0) = %#x, %v, want 0x0201", v16, err)
	}
	v32, err := b.ReadUint32(0)
	if err != nil || v32 != 0x04030201 {
		t.Errorf("ReadUint32(0) = %#x, %v, want 0x04030201", v32, err)
	}
	v64, err := b.ReadUint64(0)
	if err != nil || v64 != 0x0807060504030201 {
		t.Errorf("ReadUint64(0) = %#x, %v, want 0x0807060504030201", v64, err)
	}
}
