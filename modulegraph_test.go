// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import "testing"

func TestParseModuleGraphAssemblyAndModuleRef(t *testing.T) {
	img := newParsedTestImage(t)

	if img.AssemblyName() != "TestAssembly" {
		t.Errorf("AssemblyName() = %q, want %q", img.AssemblyName(), "TestAssembly")
	}
	if img.ModuleCount() != 1 {
		t.Fatalf("ModuleCount() = %d, want 1", img.ModuleCount())
	}
	if img.FileCount() != 0 {
		t.Errorf("FileCount() = %d, want 0", img.FileCount())
	}

	name, err := img.stringAt(img.graph.moduleRefs[0].Name)
	if err != nil {
		t.Fatalf("stringAt: %v", err)
	}
	if name != "Other.dll" {
		t.Errorf("ModuleRef[0].Name = %q, want %q", name, "Other.dll")
	}
}

func TestPublicKey(t *testing.T) {
	img := newParsedTestImage(t)

	pk := img.PublicKey()
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if len(pk) != len(want) {
		t.Fatalf("PublicKey() = %x, want %x", pk, want)
	}
	for i := range want {
		if pk[i] != want[i] {
			t.Fatalf("PublicKey() = %x, want %x", pk, want)
		}
	}
}

func TestPublicKeyZeroToken(t *testing.T) {
	img := newParsedTestImage(t)
	img.graph.assembly.PublicKey = 0
	if pk := img.PublicKey(); pk != nil {
		t.Errorf("PublicKey() = %x, want nil for a zero token", pk)
	}
}

// TestValidFileNameSetAcceptsEverythingWhenEmpty exercises the "empty File
// table means accept everything" boundary case.
func TestValidFileNameSetAcceptsEverythingWhenEmpty(t *testing.T) {
	img := newParsedTestImage(t)

	set, err := img.graph.validFileNameSet(img)
	if err != nil {
		t.Fatalf("validFileNameSet: %v", err)
	}
	if set != nil {
		t.Errorf("validFileNameSet() = %v, want nil (accept everything)", set)
	}
}

func TestLoadModuleOutOfRange(t *testing.T) {
	img := newParsedTestImage(t)
	cache := NewCache(nil)

	if _, err := img.LoadModule(cache, 0); err != ErrOutsideBoundary {
		t.Errorf("LoadModule(0) err = %v, want ErrOutsideBoundary", err)
	}
	if _, err := img.LoadModule(cache, 2); err != ErrOutsideBoundary {
		t.Errorf("LoadModule(2) err = %v, want ErrOutsideBoundary", err)
	}
}
