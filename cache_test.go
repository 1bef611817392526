// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTestImageFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buildTestImage(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestCacheOpenDedupesByPath(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImageFile(t, dir, "a.dll")

	cache := NewCache(nil)
	img1, err := cache.Open(path, false)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	img2, err := cache.Open(path, false)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if img1 != img2 {
		t.Error("two Opens of the same path should return the same *Image")
	}
	if img1.refCount != 2 {
		t.Errorf("refCount = %d, want 2", img1.refCount)
	}

	if err := cache.Close(img1); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if cache.Loaded(path, false) == nil {
		t.Error("image should still be cached after one of two references is closed")
	}
	if err := cache.Close(img2); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if cache.Loaded(path, false) != nil {
		t.Error("image should be evicted from the cache once its refcount reaches zero")
	}
}

func TestCacheRefOnlyIsolatedFromNormal(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImageFile(t, dir, "b.dll")

	cache := NewCache(nil)
	normal, err := cache.Open(path, false)
	if err != nil {
		t.Fatalf("Open(refOnly=false): %v", err)
	}
	defer cache.Close(normal)

	refOnly, err := cache.Open(path, true)
	if err != nil {
		t.Fatalf("Open(refOnly=true): %v", err)
	}
	defer cache.Close(refOnly)

	if normal == refOnly {
		t.Error("ref-only and normal opens of the same path must not share an Image")
	}
	if cache.Loaded(path, false) == cache.Loaded(path, true) {
		t.Error("ref-only and normal path tables must be isolated")
	}
}

func TestCacheLoadedByGUID(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImageFile(t, dir, "c.dll")

	cache := NewCache(nil)
	img, err := cache.Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close(img)

	if got := cache.LoadedByGUID(img.GUID(), false); got != img {
		t.Errorf("LoadedByGUID(%q) = %v, want %v", img.GUID(), got, img)
	}
}

// TestCacheConcurrentOpenRace exercises the singleflight-backed two-thread
// open race: many goroutines opening the same path concurrently must all
// observe the same *Image, each holding one reference to it.
func TestCacheConcurrentOpenRace(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImageFile(t, dir, "race.dll")

	cache := NewCache(nil)
	const n = 16
	results := make([]*Image, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			img, err := cache.Open(path, false)
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			results[i] = img
		}(i)
	}
	wg.Wait()

	first := results[0]
	if first == nil {
		t.Fatal("first result is nil")
	}
	for i, img := range results {
		if img != first {
			t.Errorf("result[%d] = %p, want %p (all concurrent opens must return the same image)", i, img, first)
		}
	}
	if first.refCount != n {
		t.Errorf("refCount = %d, want %d", first.refCount, n)
	}
	for i := 0; i < n; i++ {
		cache.Close(first)
	}
}
