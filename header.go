// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// DOSHeader is the MS-DOS stub header; only the two fields this loader
// actually uses are tracked.
type DOSHeader struct {
	Magic                 uint16
	AddressOfNewEXEHeader uint32
}

// COFFHeader is the IMAGE_FILE_HEADER.
type COFFHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// DataDirectory is one entry of the optional header's DataDirectory array.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// optionalHeader32FixedSize is sizeof(OptionalHeader32), the portion of the
// optional header before the data-directory array.
const optionalHeader32FixedSize = 96

// OptionalHeader32 is IMAGE_OPTIONAL_HEADER32; PE32+ is out of scope.
type OptionalHeader32 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	BaseOfData              uint32
	ImageBase               uint32
	SectionAlignment        uint32
	FileAlignment           uint32
	MajorOSVersion          uint16
	MinorOSVersion          uint16
	MajorImageVersion       uint16
	MinorImageVersion       uint16
	MajorSubsystemVersion   uint16
	MinorSubsystemVersion   uint16
	Win32VersionValue       uint32
	SizeOfImage             uint32
	SizeOfHeaders           uint32
	CheckSum                uint32
	Subsystem               uint16
	DllCharacteristics      uint16
	SizeOfStackReserve      uint32
	SizeOfStackCommit       uint32
	SizeOfHeapReserve       uint32
	SizeOfHeapCommit        uint32
	LoaderFlags             uint32
	NumberOfRvaAndSizes     uint32
}

// SectionTableEntry is IMAGE_SECTION_HEADER.
type SectionTableEntry struct {
	Name             [8]byte
	VirtualSize      uint32
	VirtualAddress   uint32
	RawDataSize      uint32
	RawDataPtr       uint32
	RelocPtr         uint32
	LinenoPtr        uint32
	RelocCount       uint16
	LineCount        uint16
	Flags            uint32
	mapped           []byte
	mappedComputed   bool
}

// NameString returns the section name trimmed of trailing NULs.
func (s *SectionTableEntry) NameString() string {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// ImageHeaders groups the DOS/COFF/optional/section-table parse results

type ImageHeaders struct {
	DOS            DOSHeader
	COFF           COFFHeader
	Optional       OptionalHeader32
	DataDirectory  [ImageNumberOfDirectoryEntries]DataDirectory
	Sections       []SectionTableEntry
	ntHeaderOffset uint32
}

// parseHeaders validates and decodes the MS-DOS stub, PE signature, COFF
// header, optional header and section table. Any mismatch
// returns an error and the caller must treat the image as IMAGE_INVALID.
func parseHeaders(buf *RawBuffer) (*ImageHeaders, error) {
	if buf.Len() < TinyPESize {
		return nil, ErrInvalidPESize
	}

	magic, err := buf.ReadUint16(0)
	if err != nil {
		return nil, err
	}
	if magic != ImageDOSSignature {
		return nil, ErrDOSMagicNotFound
	}

	peOffset, err := buf.ReadUint32(60)
	if err != nil {
		return nil, err
	}
	if peOffset >= buf.Len() {
		return nil, ErrInvalidElfanewValue
	}

	ntSig, err := buf.ReadUint32(peOffset)
	if err != nil {
		return nil, err
	}
	if ntSig != ImageNTSignature {
		return nil, ErrImageNtSignatureNotFound
	}

	h := &ImageHeaders{
		DOS:            DOSHeader{Magic: magic, AddressOfNewEXEHeader: peOffset},
		ntHeaderOffset: peOffset,
	}

	coffOffset := peOffset + 4
	if err := buf.StructUnpack(&h.COFF, coffOffset, 20); err != nil {
		return nil, err
	}
	if h.COFF.Machine != ImageFileMachineI386 {
		return nil, ErrUnsupportedMachine
	}

	optOffset := coffOffset + 20
	if err := buf.StructUnpack(&h.Optional, optOffset, optionalHeader32FixedSize); err != nil {
		return nil, err
	}
	if h.Optional.Magic != ImageNTOptionalHeader32Magic {
		return nil, ErrUnsupportedOptionalHeaderMagic
	}

	// PE32 fixes this field: the 96-byte OptionalHeader32 plus exactly 16
	// 8-byte data directories. Anything else and the section table (and
	// every offset derived below) can't be trusted.
	if h.COFF.SizeOfOptionalHeader != optionalHeader32FixedSize+ImageNumberOfDirectoryEntries*8 {
		return nil, ErrInvalidOptionalHeaderSize
	}

	// Data directories immediately follow the fixed optional-header fields.
	ddOffset := optOffset + optionalHeader32FixedSize
	n := h.Optional.NumberOfRvaAndSizes
	if n > ImageNumberOfDirectoryEntries {
		n = ImageNumberOfDirectoryEntries
	}
	for i := uint32(0); i < n; i++ {
		var dd DataDirectory
		if err := buf.StructUnpack(&dd, ddOffset+i*8, 8); err != nil {
			return nil, err
		}
		h.DataDirectory[i] = dd
	}

	sectionOffset := optOffset + uint32(h.COFF.SizeOfOptionalHeader)
	h.Sections = make([]SectionTableEntry, 0, h.COFF.NumberOfSections)
	for i := uint16(0); i < h.COFF.NumberOfSections; i++ {
		entryOffset := sectionOffset + uint32(i)*40
		if entryOffset+40 > buf.Len() {
			return nil, ErrSectionTableTruncated
		}
		var raw struct {
			Name           [8]byte
			VirtualSize    uint32
			VirtualAddress uint32
			RawDataSize    uint32
			RawDataPtr     uint32
			RelocPtr       uint32
			LinenoPtr      uint32
			RelocCount     uint16
			LineCount      uint16
			Flags          uint32
		}
		if err := buf.StructUnpack(&raw, entryOffset, 40); err != nil {
			return nil, err
		}
		h.Sections = append(h.Sections, SectionTableEntry{
			Name:           raw.Name,
			VirtualSize:    raw.VirtualSize,
			VirtualAddress: raw.VirtualAddress,
			RawDataSize:    raw.RawDataSize,
			RawDataPtr:     raw.RawDataPtr,
			RelocPtr:       raw.RelocPtr,
			LinenoPtr:      raw.LinenoPtr,
			RelocCount:     raw.RelocCount,
			LineCount:      raw.LineCount,
			Flags:          raw.Flags,
		})
	}

	return h, nil
}

// DataDir returns the requested data-directory entry.
func (h *ImageHeaders) DataDir(entry ImageDirectoryEntry) DataDirectory {
	return h.DataDirectory[entry]
}
