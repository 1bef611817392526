// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// invalidOffset is the sentinel returned by RVAToOffset when the RVA does
// not fall within any section.
const invalidOffset = 0xffffffff

// sectionByRVA returns a pointer to the first section entry whose virtual
// range contains rva, or nil.
func (h *ImageHeaders) sectionByRVA(rva uint32) *SectionTableEntry {
	for i := range h.Sections {
		s := &h.Sections[i]
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.RawDataSize {
			return s
		}
	}
	return nil
}

// RVAToOffset converts a relative virtual address to a file offset via a
// linear scan of the section table, returning invalidOffset if rva lies
// outside every section.
func (img *Image) RVAToOffset(rva uint32) uint32 {
	s := img.headers.sectionByRVA(rva)
	if s == nil {
		return invalidOffset
	}
	return s.RawDataPtr + (rva - s.VirtualAddress)
}

// ensureSection lazily computes and caches the byte slice for section s,
// anchored at its file offset within raw_data.
func (img *Image) ensureSection(s *SectionTableEntry) ([]byte, error) {
	if s.mappedComputed {
		return s.mapped, nil
	}
	data, err := img.buf.Slice(s.RawDataPtr, s.RawDataSize)
	if err != nil {
		return nil, err
	}
	s.mapped = data
	s.mappedComputed = true
	return data, nil
}

// EnsureSectionIdx ensures and returns the byte slice for section index i.
func (img *Image) EnsureSectionIdx(i int) ([]byte, error) {
	if i < 0 || i >= len(img.headers.Sections) {
		return nil, ErrOutsideBoundary
	}
	return img.ensureSection(&img.headers.Sections[i])
}

// EnsureSection ensures and returns the byte slice for the named section.
func (img *Image) EnsureSection(name string) ([]byte, error) {
	for i := range img.headers.Sections {
		if img.headers.Sections[i].NameString() == name {
			return img.ensureSection(&img.headers.Sections[i])
		}
	}
	return nil, ErrOutsideBoundary
}

// RVAToPointer converts an RVA to a byte slice into raw_data starting at
// that address and running to the end of the containing section, ensuring
// the section is mapped first. Returns nil if the RVA maps to no section.
func (img *Image) RVAToPointer(rva uint32) []byte {
	s := img.headers.sectionByRVA(rva)
	if s == nil {
		return nil
	}
	mapped, err := img.ensureSection(s)
	if err != nil {
		return nil
	}
	delta := rva - s.VirtualAddress
	if delta > uint32(len(mapped)) {
		return nil
	}
	return mapped[delta:]
}

// IsWritable reports whether the section's MEM_WRITE characteristic is set.
// The flag is recorded but never enforced: this loader never patches image
// content.
func (s *SectionTableEntry) IsWritable() bool {
	return s.Flags&ImageScnMemWrite != 0
}
