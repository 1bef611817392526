// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"encoding/binary"
	"errors"
	"testing"
)

func newParsedTestImage(t *testing.T) *Image {
	t.Helper()
	img, err := OpenFromData("test.dll", buildTestImage(), false, nil)
	if err != nil {
		t.Fatalf("OpenFromData: %v", err)
	}
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func TestParseMetadataRootSuccess(t *testing.T) {
	img := newParsedTestImage(t)

	if img.metadata.version != "abcde" {
		t.Errorf("version = %q, want %q", img.metadata.version, "abcde")
	}
	want := formatGUID(testGUIDBytes)
	if img.GUID() != want {
		t.Errorf("GUID() = %q, want %q", img.GUID(), want)
	}
	if img.metadata.heapTables.Size == 0 {
		t.Error("heapTables.Size = 0, want nonzero")
	}
	if img.metadata.heapStrings.Offset != testStringsHeapOffset {
		t.Errorf("heapStrings.Offset = %d, want %d", img.metadata.heapStrings.Offset, testStringsHeapOffset)
	}
}

func TestParseMetadataRootBadSignature(t *testing.T) {
	raw := buildTestImage()
	raw[testMetadataOffset] = 'X'
	_, err := OpenFromData("bad.dll", raw, false, nil)
	if !errors.Is(err, ErrInvalidMetadataSignature) {
		t.Errorf("err = %v, want ErrInvalidMetadataSignature", err)
	}
}

func TestParseMetadataRootMissingGUIDHeap(t *testing.T) {
	raw := buildTestImage()
	// Shrink the #GUID stream's declared size below 16 in its stream header.
	guidStreamSizeOffset := testMetadataOffset + 60 + 4
	binary.LittleEndian.PutUint32(raw[guidStreamSizeOffset:], 8)
	_, err := OpenFromData("badguid.dll", raw, false, nil)
	if !errors.Is(err, ErrMissingGUIDHeap) {
		t.Errorf("err = %v, want ErrMissingGUIDHeap", err)
	}
}

func TestFormatGUID(t *testing.T) {
	got := formatGUID(testGUIDBytes)
	want := "04030201-0605-0807-090a-0b0c0d0e0f10"
	if got != want {
		t.Errorf("formatGUID = %q, want %q", got, want)
	}
}
