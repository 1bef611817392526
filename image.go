// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
)

// Options configures how an image is opened and parsed.
type Options struct {
	// RefOnly marks the image as loaded for inspection only; ref-only images
	// are cached separately from normal images.
	RefOnly bool

	// Fast skips CLI header / metadata parsing: the header parser still runs,
	// nothing CLI-specific does.
	Fast bool

	// RowWidther overrides the module graph loader's default table-skip
	// arithmetic (see defaultrowwidther.go). Nil uses the built-in one.
	RowWidther RowWidther

	// Logger is a custom structured logger; nil uses a stderr logger at
	// warn level.
	Logger log.Logger
}

// Image is the central entity of this module: a parsed CLI/PE image,
// reference-counted and (when opened through a Cache) deduplicated by path
// and metadata GUID.
type Image struct {
	name         string // canonical path, or "data-<addr>" for buffer-backed images
	refOnly      bool
	ownsRawData  bool
	refCount     int32
	dynamic      bool

	buf     *RawBuffer
	headers *ImageHeaders
	cli     CLIHeader
	metadata *metadataRoot
	tables   *TableDescriptor
	graph    *moduleGraph

	assemblyName string
	moduleName   string
	assembly     *Image // non-owning back-pointer, set by the assembly layer

	rowWidther RowWidther

	Anomalies []string

	logger *log.Helper
}

func newLogger(opts *Options) *log.Helper {
	if opts != nil && opts.Logger != nil {
		return log.NewHelper(opts.Logger)
	}
	base := log.NewStdLogger(os.Stderr)
	return log.NewHelper(log.NewFilter(base, log.FilterLevel(log.LevelWarn)))
}

// Open opens and fully parses the image at path.
// It does not consult or populate any Cache; use Cache.Open for the
// deduplicating entry point.
func Open(path string, opts *Options) (*Image, error) {
	if opts == nil {
		opts = &Options{}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clrimage: opening %s: %w", path, err)
	}
	buf, err := newRawBufferFromFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("clrimage: mapping %s: %w", path, err)
	}
	img := &Image{
		name:        path,
		refOnly:     opts.RefOnly,
		refCount:    1,
		buf:         buf,
		ownsRawData: true,
		rowWidther:  opts.RowWidther,
		logger:      newLogger(opts),
	}
	if err := img.parse(opts); err != nil {
		buf.Close()
		return nil, err
	}
	return img, nil
}

// OpenFromData opens an image from an in-memory buffer. When dup is true,
// the buffer is duplicated so the caller may mutate the original afterwards
// without affecting the image.
func OpenFromData(name string, data []byte, dup bool, opts *Options) (*Image, error) {
	if opts == nil {
		opts = &Options{}
	}
	if name == "" {
		name = fmt.Sprintf("data-%p", &data)
	}
	buf := newRawBufferFromBytes(data, dup)
	img := &Image{
		name:        name,
		refOnly:     opts.RefOnly,
		refCount:    1,
		buf:         buf,
		ownsRawData: dup,
		rowWidther:  opts.RowWidther,
		logger:      newLogger(opts),
	}
	if err := img.parse(opts); err != nil {
		buf.Close()
		return nil, err
	}
	return img, nil
}

// parse runs the full header → CLI header → metadata root → table
// descriptor → module graph pipeline.
func (img *Image) parse(opts *Options) error {
	headers, err := parseHeaders(img.buf)
	if err != nil {
		return fmt.Errorf("clrimage: header parse: %w", err)
	}
	img.headers = headers

	if opts.Fast {
		return nil
	}

	if err := parseCLIHeader(img); err != nil {
		// Not every PE image is managed; absence of a CLI header is not
		// itself IMAGE_INVALID for pe_file_open-style callers, but Open
		// always wants a managed image.
		return fmt.Errorf("clrimage: CLI header parse: %w", err)
	}
	if err := parseMetadataRoot(img); err != nil {
		return fmt.Errorf("clrimage: metadata root parse: %w", err)
	}
	if err := parseTableDescriptor(img); err != nil {
		return fmt.Errorf("clrimage: table descriptor parse: %w", err)
	}
	if err := parseModuleGraph(img); err != nil {
		img.logger.Warnf("module graph parse failed: %v", err)
	}
	if err := img.GetAnomalies(); err != nil {
		img.logger.Warnf("anomaly detection failed: %v", err)
	}
	return nil
}

// AddRef increments the image's reference count.
func (img *Image) AddRef() {
	atomic.AddInt32(&img.refCount, 1)
}

// release decrements the reference count and reports whether it reached
// zero. Used directly by Close for standalone (non-cached) images and by
// Cache.Close for cached ones.
func (img *Image) release() bool {
	return atomic.AddInt32(&img.refCount, -1) == 0
}

// Close decrements the reference count and tears the image down once it
// reaches zero. For images obtained through a
// Cache, prefer Cache.Close so the cache tables are kept consistent.
func (img *Image) Close() error {
	if !img.release() {
		return nil
	}
	return img.teardown()
}

// teardown releases the backing buffer and recursively closes every child
// module/file image, releasing children before the buffer that backs them.
func (img *Image) teardown() error {
	for _, child := range img.childImages() {
		if child != nil {
			_ = child.Close()
		}
	}
	if img.buf != nil {
		return img.buf.Close()
	}
	return nil
}

// childImages returns every module/file child image slot populated so far.
func (img *Image) childImages() []*Image {
	if img.graph == nil {
		return nil
	}
	var out []*Image
	out = append(out, img.graph.modules...)
	out = append(out, img.graph.fileImages...)
	return out
}

// Name returns the image's canonical path or synthetic buffer name.
func (img *Image) Name() string { return img.name }

// GUID returns the 36-character hyphenated metadata GUID.
func (img *Image) GUID() string {
	if img.metadata == nil {
		return ""
	}
	return img.metadata.guid
}

// AssemblyName returns the name recorded in the single Assembly row, if any.
func (img *Image) AssemblyName() string { return img.assemblyName }

// IsDynamic reports whether this image was produced by an emit API and
// parsing was skipped.
func (img *Image) IsDynamic() bool { return img.dynamic }

// IsRefOnly reports whether the image was opened for inspection only.
func (img *Image) IsRefOnly() bool { return img.refOnly }

// Assembly returns the non-owning back-pointer to the owning assembly image,
// or nil if unset.
func (img *Image) Assembly() *Image { return img.assembly }

// SetAssembly publishes a weak back-pointer to the owning assembly image;
// it is not reference-counted.
func (img *Image) SetAssembly(a *Image) { img.assembly = a }

// ModuleCount returns the row count of the ModuleRef table.
func (img *Image) ModuleCount() int {
	if img.graph == nil {
		return 0
	}
	return len(img.graph.moduleRefs)
}

// FileCount returns the row count of the File table.
func (img *Image) FileCount() int {
	if img.graph == nil {
		return 0
	}
	return len(img.graph.files)
}

// TableRows returns the row count of the given metadata table ID.
func (img *Image) TableRows(table int) uint32 {
	if img.tables == nil {
		return 0
	}
	return img.tables.TableRows(table)
}
