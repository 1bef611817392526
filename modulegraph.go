// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"path/filepath"
)

// These three tables' rows are decoded directly by the core because none of
// them requires the generic coded-index row-width contract the rest of the
// metadata system needs: ModuleRef only carries a string-heap Name index;
// File carries Flags + Name + a blob-heap HashValue; Assembly carries only
// fixed-width scalars plus one blob index and two string indices. Module
// rows are skipped, not decoded.

// moduleRefRow is the ModuleRef table's single column.
type moduleRefRow struct {
	Name uint32 // string heap index
}

// fileRow is the File table's three columns.
type fileRow struct {
	Flags     uint32
	Name      uint32 // string heap index
	HashValue uint32 // blob heap index
}

// assemblyRow is the Assembly table's columns (at most one row per image).
type assemblyRow struct {
	HashAlgID        uint32
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
	Flags            uint32
	PublicKey        uint32 // blob heap index
	Name             uint32 // string heap index
	Culture          uint32 // string heap index
}

// moduleGraph holds the decoded ModuleRef/File/Assembly rows and the
// lazily-populated child-image slots for modules and files.
type moduleGraph struct {
	moduleRefs []moduleRefRow
	files      []fileRow
	assembly   *assemblyRow

	modules       []*Image
	modulesLoaded []bool
	fileImages    []*Image
	fileLoaded    []bool
}

func (img *Image) stringHeapIdxWidth() uint32 { return heapIndexWidth(img.tables.StringWide) }
func (img *Image) blobHeapIdxWidth() uint32   { return heapIndexWidth(img.tables.BlobWide) }

// readStringHeapIndex reads a string-heap index of the correct width at
// offset; the caller advances its cursor by stringHeapIdxWidth.
func (img *Image) readStringHeapIndex(offset uint32) (uint32, error) {
	if img.tables.StringWide {
		return img.buf.ReadUint32(offset)
	}
	v, err := img.buf.ReadUint16(offset)
	return uint32(v), err
}

func (img *Image) readBlobHeapIndex(offset uint32) (uint32, error) {
	if img.tables.BlobWide {
		return img.buf.ReadUint32(offset)
	}
	v, err := img.buf.ReadUint16(offset)
	return uint32(v), err
}

// stringAt resolves a #Strings heap index to its NUL-terminated value.
func (img *Image) stringAt(idx uint32) (string, error) {
	if idx == 0 {
		return "", nil
	}
	s, _, err := img.buf.ReadCString(img.metadata.heapStrings.Offset+idx, img.metadata.heapStrings.Size-idx)
	return s, err
}

// parseModuleGraph decodes the ModuleRef, File and Assembly table rows
// (skipping every other table, Module included) and allocates the parallel
// module/file image slots.
func parseModuleGraph(img *Image) error {
	g := &moduleGraph{}
	cursor := img.tables.TablesBase

	// Row order within tables_base follows table ID ascending; only the
	// three tables this module decodes are read, skipping the byte span of
	// every other present table via its row count times the row width that
	// the RowWidther supplies. When no RowWidther is wired,
	// defaultRowWidther is used.
	widther := img.rowWidther
	if widther == nil {
		widther = defaultRowWidther{}
	}
	for t := 0; t <= LAST; t++ {
		rows := img.tables.TableRows(t)
		if rows == 0 {
			continue
		}
		switch t {
		case TableModule:
			// Module rows (Generation uint16, Name str, Mvid guid, EncId
			// guid, EncBaseId guid) are not decoded; their Name is not read.
			// They are skipped by row width.
			cursor += widther.RowWidth(t, img.tables) * rows
			continue
		case TableModuleRef:
			for i := uint32(0); i < rows; i++ {
				name, err := img.readStringHeapIndex(cursor)
				if err != nil {
					return err
				}
				g.moduleRefs = append(g.moduleRefs, moduleRefRow{Name: name})
				cursor += img.stringHeapIdxWidth()
			}
			g.modules = make([]*Image, len(g.moduleRefs))
			g.modulesLoaded = make([]bool, len(g.moduleRefs))
			continue
		case TableFile:
			for i := uint32(0); i < rows; i++ {
				flags, err := img.buf.ReadUint32(cursor)
				if err != nil {
					return err
				}
				cursor += 4
				name, err := img.readStringHeapIndex(cursor)
				if err != nil {
					return err
				}
				cursor += img.stringHeapIdxWidth()
				hash, err := img.readBlobHeapIndex(cursor)
				if err != nil {
					return err
				}
				cursor += img.blobHeapIdxWidth()
				g.files = append(g.files, fileRow{Flags: flags, Name: name, HashValue: hash})
			}
			g.fileImages = make([]*Image, len(g.files))
			g.fileLoaded = make([]bool, len(g.files))
			continue
		case TableAssembly:
			var a assemblyRow
			a.HashAlgID, _ = img.buf.ReadUint32(cursor)
			cursor += 4
			a.MajorVersion, _ = img.buf.ReadUint16(cursor)
			a.MinorVersion, _ = img.buf.ReadUint16(cursor + 2)
			a.BuildNumber, _ = img.buf.ReadUint16(cursor + 4)
			a.RevisionNumber, _ = img.buf.ReadUint16(cursor + 6)
			cursor += 8
			a.Flags, _ = img.buf.ReadUint32(cursor)
			cursor += 4
			pk, err := img.readBlobHeapIndex(cursor)
			if err != nil {
				return err
			}
			a.PublicKey = pk
			cursor += img.blobHeapIdxWidth()
			nameIdx, err := img.readStringHeapIndex(cursor)
			if err != nil {
				return err
			}
			a.Name = nameIdx
			cursor += img.stringHeapIdxWidth()
			cultureIdx, err := img.readStringHeapIndex(cursor)
			if err != nil {
				return err
			}
			a.Culture = cultureIdx
			cursor += img.stringHeapIdxWidth()
			g.assembly = &a
			continue
		default:
			// Every other table's row width is this module's boundary with
			// the metadata layer: the byte-width arithmetic to skip past it
			// comes from RowWidther (defaultRowWidther unless an external
			// metadata layer supplies its own), never from decoding the
			// row's column values semantically.
			cursor += widther.RowWidth(t, img.tables) * rows
			continue
		}
	}

	img.graph = g
	if g.assembly != nil {
		name, err := img.stringAt(g.assembly.Name)
		if err == nil {
			img.assemblyName = name
		}
	}
	return nil
}

// validFileNameSet reports, for the File table row named by a ModuleRef's
// string-heap Name, whether that name is an acceptable load target: all
// rows are accepted when the File table is empty, otherwise only rows
// without FileContainsNoMetadata.
func (g *moduleGraph) validFileNameSet(img *Image) (map[string]bool, error) {
	if len(g.files) == 0 {
		return nil, nil // nil means "accept everything"
	}
	set := make(map[string]bool, len(g.files))
	for _, f := range g.files {
		if f.Flags&FileContainsNoMetadata != 0 {
			continue
		}
		name, err := img.stringAt(f.Name)
		if err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, nil
}

// LoadModule loads (or returns the already-loaded) child module at 1-based
// index i via the ModuleRef table, sharing the parent's assembly
// back-pointer and re-entering the process-wide cache.
func (img *Image) LoadModule(cache *Cache, i int) (*Image, error) {
	g := img.graph
	if g == nil || i < 1 || i > len(g.moduleRefs) {
		return nil, ErrOutsideBoundary
	}
	idx := i - 1
	if g.modulesLoaded[idx] {
		return g.modules[idx], nil
	}
	g.modulesLoaded[idx] = true

	name, err := img.stringAt(g.moduleRefs[idx].Name)
	if err != nil || name == "" {
		return nil, err
	}

	valid, err := g.validFileNameSet(img)
	if err != nil {
		return nil, err
	}
	if valid != nil && !valid[name] {
		return nil, nil
	}

	childPath := filepath.Join(filepath.Dir(img.name), name)
	child, err := cache.Open(childPath, img.refOnly)
	if err != nil {
		return nil, err
	}
	child.assembly = img.assembly
	g.modules[idx] = child
	return child, nil
}

// LoadFileForImage performs the File-table analogue of LoadModule, also
// propagating the parent's assembly reference into the child's own
// already-loaded modules.
func (img *Image) LoadFileForImage(cache *Cache, i int) (*Image, error) {
	g := img.graph
	if g == nil || i < 1 || i > len(g.files) {
		return nil, ErrOutsideBoundary
	}
	idx := i - 1
	if g.fileLoaded[idx] {
		return g.fileImages[idx], nil
	}
	g.fileLoaded[idx] = true

	if g.files[idx].Flags&FileContainsNoMetadata != 0 {
		return nil, nil
	}
	name, err := img.stringAt(g.files[idx].Name)
	if err != nil || name == "" {
		return nil, err
	}

	childPath := filepath.Join(filepath.Dir(img.name), name)
	child, err := cache.Open(childPath, img.refOnly)
	if err != nil {
		return nil, err
	}
	child.assembly = img.assembly
	for j, loaded := range child.graph.modulesLoaded {
		if loaded && child.graph.modules[j] != nil {
			child.graph.modules[j].assembly = img.assembly
		}
	}
	g.fileImages[idx] = child
	return child, nil
}

// PublicKey returns the blob-heap bytes of the Assembly row's PublicKey
// token, or nil if the token is 0 or there is no Assembly row
// (a public key token of zero is treated as absent).
func (img *Image) PublicKey() []byte {
	if img.graph == nil || img.graph.assembly == nil || img.graph.assembly.PublicKey == 0 {
		return nil
	}
	return img.blobAt(img.graph.assembly.PublicKey)
}

// blobAt reads a length-prefixed #Blob heap entry using ECMA-335 compressed
// unsigned integer encoding for the length prefix.
func (img *Image) blobAt(idx uint32) []byte {
	if idx == 0 {
		return nil
	}
	base := img.metadata.heapBlob.Offset + idx
	b0, err := img.buf.ReadUint8(base)
	if err != nil {
		return nil
	}
	var length uint32
	var lenBytes uint32
	switch {
	case b0&0x80 == 0:
		length = uint32(b0)
		lenBytes = 1
	case b0&0xC0 == 0x80:
		b1, err := img.buf.ReadUint8(base + 1)
		if err != nil {
			return nil
		}
		length = (uint32(b0&0x3f) << 8) | uint32(b1)
		lenBytes = 2
	default:
		rest, err := img.buf.Slice(base+1, 3)
		if err != nil {
			return nil
		}
		length = (uint32(b0&0x1f) << 24) | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2])
		lenBytes = 4
	}
	data, err := img.buf.Slice(base+lenBytes, length)
	if err != nil {
		return nil
	}
	return data
}
