// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/singleflight"
)

// Cache is the process-wide image registry: four tables partitioned by
// ref_only, guarded by a single lock held only around lookup/insert/remove,
// never across file I/O or parsing. Concurrent Open calls on the same path
// are de-duplicated with singleflight so exactly one goroutine parses while
// the rest block on its result.
type Cache struct {
	mu sync.Mutex

	byPathNormal  map[string]*Image
	byPathRefOnly map[string]*Image
	byGUIDNormal  map[string]*Image
	byGUIDRefOnly map[string]*Image

	group singleflight.Group

	opts   *Options
	logger *log.Helper
}

// NewCache constructs an empty, ready-to-use Cache. Unit tests should
// instantiate a private Cache rather than sharing process-wide state
// rather than sharing process-wide state.
func NewCache(opts *Options) *Cache {
	if opts == nil {
		opts = &Options{}
	}
	return &Cache{
		byPathNormal:  make(map[string]*Image),
		byPathRefOnly: make(map[string]*Image),
		byGUIDNormal:  make(map[string]*Image),
		byGUIDRefOnly: make(map[string]*Image),
		opts:          opts,
		logger:        newLogger(opts),
	}
}

func (c *Cache) pathTable(refOnly bool) map[string]*Image {
	if refOnly {
		return c.byPathRefOnly
	}
	return c.byPathNormal
}

func (c *Cache) guidTable(refOnly bool) map[string]*Image {
	if refOnly {
		return c.byGUIDRefOnly
	}
	return c.byGUIDNormal
}

// Loaded performs a pure cache lookup by path with no loading.
func (c *Cache) Loaded(name string, refOnly bool) *Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathTable(refOnly)[name]
}

// LoadedByGUID performs a pure cache lookup by GUID with no loading.
func (c *Cache) LoadedByGUID(guid string, refOnly bool) *Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guidTable(refOnly)[guid]
}

// Open canonicalizes the path, looks it up under the lock, and on miss
// drops the lock to parse, then re-acquires it to publish (or discard a
// losing race).
func (c *Cache) Open(path string, refOnly bool) (*Image, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}

	c.mu.Lock()
	if existing, ok := c.pathTable(refOnly)[canonical]; ok {
		existing.AddRef()
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	// singleflight collapses concurrent misses on the same key into one
	// parse; losers block here and then fall through to the re-check below,
	// which will find the winner's entry already published.
	ran := false
	v, err, _ := c.group.Do(canonical, func() (interface{}, error) {
		ran = true
		img, err := Open(canonical, &Options{RefOnly: refOnly, RowWidther: c.opts.RowWidther, Logger: c.opts.Logger})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if existing, ok := c.pathTable(refOnly)[canonical]; ok {
			existing.AddRef()
			c.mu.Unlock()
			_ = img.Close()
			return existing, nil
		}
		c.pathTable(refOnly)[canonical] = img
		if img.assemblyName != "" {
			if _, ok := c.pathTable(refOnly)[img.assemblyName]; !ok {
				c.pathTable(refOnly)[img.assemblyName] = img
			}
		}
		if guid := img.GUID(); guid != "" {
			c.guidTable(refOnly)[guid] = img
		}
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, fmt.Errorf("clrimage: cache open %s: %w", canonical, err)
	}
	if !ran {
		c.mu.Lock()
		existing, ok := c.pathTable(refOnly)[canonical]
		if ok {
			existing.AddRef()
		}
		c.mu.Unlock()
		if !ok {
			return c.Open(path, refOnly)
		}
		return existing, nil
	}
	return v.(*Image), nil
}

// Close decrements img's reference count and, once it reaches zero, removes
// it from both cache tables (only if the stored entry is still this exact
// image) and rebuilds the GUID table before tearing the image down.
func (c *Cache) Close(img *Image) error {
	if !img.release() {
		return nil
	}

	c.mu.Lock()
	pt := c.pathTable(img.refOnly)
	if pt[img.name] == img {
		delete(pt, img.name)
	}
	if img.assemblyName != "" && pt[img.assemblyName] == img {
		delete(pt, img.assemblyName)
	}
	c.rebuildGUIDTable(img.refOnly)
	c.mu.Unlock()

	return img.teardown()
}

// rebuildGUIDTable re-derives the GUID table for the given ref_only
// partition by scanning the path table, so that if another image shares the
// GUID being removed, it remains reachable. Caller must hold c.mu.
func (c *Cache) rebuildGUIDTable(refOnly bool) {
	rebuilt := make(map[string]*Image)
	for _, img := range c.pathTable(refOnly) {
		if guid := img.GUID(); guid != "" {
			rebuilt[guid] = img
		}
	}
	if refOnly {
		c.byGUIDRefOnly = rebuilt
	} else {
		c.byGUIDNormal = rebuilt
	}
}
