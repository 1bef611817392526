// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"encoding/binary"
	"testing"
)

const testManagedResourceBase = 1400

func buildTestImageWithManagedResource(payload []byte) []byte {
	raw := buildTestImage()
	le := binary.LittleEndian

	c := testCLIHeaderOffset
	le.PutUint32(raw[c+24:], testManagedResourceBase) // Resources.VirtualAddress
	le.PutUint32(raw[c+28:], uint32(4+len(payload)))  // Resources.Size

	le.PutUint32(raw[testManagedResourceBase:], uint32(len(payload)))
	copy(raw[testManagedResourceBase+4:], payload)
	return raw
}

func TestEntryPoint(t *testing.T) {
	img := newParsedTestImage(t)
	if img.EntryPoint() != 0x06000001 {
		t.Errorf("EntryPoint() = %#x, want 0x06000001", img.EntryPoint())
	}
}

func TestResourceRead(t *testing.T) {
	img, err := OpenFromData("resdata.dll", buildTestImageWithManagedResource([]byte("hello")), false, nil)
	if err != nil {
		t.Fatalf("OpenFromData: %v", err)
	}
	defer img.Close()

	data := img.Resource(0)
	if string(data) != "hello" {
		t.Errorf("Resource(0) = %q, want %q", data, "hello")
	}
}

func TestResourceNoneConfigured(t *testing.T) {
	img := newParsedTestImage(t)
	if data := img.Resource(0); data != nil {
		t.Errorf("Resource(0) = %v, want nil (no Resources directory)", data)
	}
}

func TestStrongNameAbsent(t *testing.T) {
	img := newParsedTestImage(t)
	if sn := img.StrongName(); sn != nil {
		t.Errorf("StrongName() = %v, want nil", sn)
	}
	if pos := img.StrongNamePosition(); pos != 0 {
		t.Errorf("StrongNamePosition() = %d, want 0", pos)
	}
}

func TestHasAuthenticodeEntryAbsent(t *testing.T) {
	img := newParsedTestImage(t)
	if img.HasAuthenticodeEntry() {
		t.Error("HasAuthenticodeEntry() = true, want false (no Certificate directory)")
	}
}
