// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import "encoding/binary"

// testImageLayout documents the byte offsets baked into buildTestImage, kept
// as named constants so the test assertions below don't repeat magic numbers.
const (
	testPEOffset        = 128
	testSectionVA        = 1024 // VirtualAddress == RawDataPtr, so rva == file offset
	testSectionSize      = 1024
	testCLIHeaderOffset  = testSectionVA
	testMetadataOffset   = testCLIHeaderOffset + 72
	testGUIDHeapOffset   = testMetadataOffset + 96  // see buildTestImage
	testStringsHeapOffset = testGUIDHeapOffset + 16
	testBlobHeapOffset   = testStringsHeapOffset + 24
	testTablesHeapOffset = testBlobHeapOffset + 8
	testFileLength       = 2048

	testAssemblyNameIdx = 1  // "TestAssembly" in #Strings
	testModuleRefNameIdx = 14 // "Other.dll" in #Strings
	testPublicKeyBlobIdx = 1  // 4-byte public key in #Blob
)

var testGUIDBytes = []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

// buildTestImage assembles a minimal, self-consistent 32-bit CLI image: one
// section holding the CLI header, BSJB metadata root, #GUID/#Strings/#Blob
// heaps and a compressed #~ tables stream with exactly ModuleRef and
// Assembly rows populated (the File table is left absent, exercising the
// "accept everything" module-graph boundary case). All RVAs equal their
// file offset because the single section's VirtualAddress equals its
// RawDataPtr, keeping the fixture arithmetic in this file the only place
// that needs to reason about RVA-to-offset translation.
func buildTestImage() []byte {
	buf := make([]byte, testFileLength)
	le := binary.LittleEndian

	// DOS header.
	le.PutUint16(buf[0:], ImageDOSSignature)
	le.PutUint32(buf[60:], testPEOffset)

	// PE signature + COFF header.
	copy(buf[testPEOffset:], []byte("PE\x00\x00"))
	coffOffset := testPEOffset + 4
	le.PutUint16(buf[coffOffset:], ImageFileMachineI386)  // Machine
	le.PutUint16(buf[coffOffset+2:], 1)                   // NumberOfSections
	le.PutUint32(buf[coffOffset+4:], 0)                   // TimeDateStamp
	le.PutUint32(buf[coffOffset+8:], 0)                   // PointerToSymbolTable
	le.PutUint32(buf[coffOffset+12:], 0)                  // NumberOfSymbols
	le.PutUint16(buf[coffOffset+16:], 224)                // SizeOfOptionalHeader
	le.PutUint16(buf[coffOffset+18:], 0x0102)             // Characteristics

	// Optional header (96 bytes).
	optOffset := coffOffset + 20
	le.PutUint16(buf[optOffset:], ImageNTOptionalHeader32Magic)
	buf[optOffset+2] = 1 // MajorLinkerVersion
	buf[optOffset+3] = 0 // MinorLinkerVersion
	le.PutUint32(buf[optOffset+4:], 0)          // SizeOfCode
	le.PutUint32(buf[optOffset+8:], 0)          // SizeOfInitializedData
	le.PutUint32(buf[optOffset+12:], 0)         // SizeOfUninitializedData
	le.PutUint32(buf[optOffset+16:], testSectionVA) // AddressOfEntryPoint
	le.PutUint32(buf[optOffset+20:], 0)         // BaseOfCode
	le.PutUint32(buf[optOffset+24:], 0)         // BaseOfData
	le.PutUint32(buf[optOffset+28:], 0x400000)  // ImageBase
	le.PutUint32(buf[optOffset+32:], 0x1000)    // SectionAlignment
	le.PutUint32(buf[optOffset+36:], 0x200)     // FileAlignment
	le.PutUint16(buf[optOffset+40:], 4)         // MajorOSVersion
	le.PutUint16(buf[optOffset+42:], 0)         // MinorOSVersion
	le.PutUint16(buf[optOffset+44:], 0)         // MajorImageVersion
	le.PutUint16(buf[optOffset+46:], 0)         // MinorImageVersion
	le.PutUint16(buf[optOffset+48:], 4)         // MajorSubsystemVersion
	le.PutUint16(buf[optOffset+50:], 0)         // MinorSubsystemVersion
	le.PutUint32(buf[optOffset+52:], 0)         // Win32VersionValue
	le.PutUint32(buf[optOffset+56:], testSectionVA+testSectionSize) // SizeOfImage
	le.PutUint32(buf[optOffset+60:], 512)       // SizeOfHeaders
	le.PutUint32(buf[optOffset+64:], 0)         // CheckSum
	le.PutUint16(buf[optOffset+68:], 3)         // Subsystem
	le.PutUint16(buf[optOffset+70:], 0)         // DllCharacteristics
	le.PutUint32(buf[optOffset+72:], 0x100000)  // SizeOfStackReserve
	le.PutUint32(buf[optOffset+76:], 0x1000)    // SizeOfStackCommit
	le.PutUint32(buf[optOffset+80:], 0x100000)  // SizeOfHeapReserve
	le.PutUint32(buf[optOffset+84:], 0x1000)    // SizeOfHeapCommit
	le.PutUint32(buf[optOffset+88:], 0)         // LoaderFlags
	le.PutUint32(buf[optOffset+92:], ImageNumberOfDirectoryEntries) // NumberOfRvaAndSizes

	// Data directories (16 * 8 bytes).
	ddOffset := optOffset + 96
	setDD := func(entry ImageDirectoryEntry, va, size uint32) {
		o := ddOffset + uint32(entry)*8
		le.PutUint32(buf[o:], va)
		le.PutUint32(buf[o+4:], size)
	}
	setDD(ImageDirectoryEntryCLR, testCLIHeaderOffset, 72)

	// Section table: one ".text"-like section with VA == raw pointer.
	sectionOffset := optOffset + 224
	copy(buf[sectionOffset:], []byte(".text\x00\x00\x00"))
	le.PutUint32(buf[sectionOffset+8:], testSectionSize)  // VirtualSize
	le.PutUint32(buf[sectionOffset+12:], testSectionVA)   // VirtualAddress
	le.PutUint32(buf[sectionOffset+16:], testSectionSize) // RawDataSize (== RawDataPtr below, full section in file)
	le.PutUint32(buf[sectionOffset+20:], testSectionVA)   // RawDataPtr

	// CLI header (72 bytes) at testCLIHeaderOffset.
	c := testCLIHeaderOffset
	le.PutUint32(buf[c:], 72)                      // SizeOfHeader
	le.PutUint16(buf[c+4:], 2)                     // MajorRuntimeVersion
	le.PutUint16(buf[c+6:], 5)                     // MinorRuntimeVersion
	le.PutUint32(buf[c+8:], testMetadataOffset)    // MetaData.VirtualAddress
	le.PutUint32(buf[c+12:], 512)                  // MetaData.Size (generous upper bound)
	le.PutUint32(buf[c+16:], 0)                    // Flags
	le.PutUint32(buf[c+20:], 0x06000001)           // EntryPointToken

	// Metadata root (BSJB) at testMetadataOffset. Signature(4) + major(2) +
	// minor(2) + reserved(4) + verLen(4) + version bytes, then the stream
	// header list starts 2 bytes (reserved) + 2 bytes (stream count) later.
	m := testMetadataOffset
	copy(buf[m:], []byte("BSJB"))
	le.PutUint16(buf[m+4:], 1) // major
	le.PutUint16(buf[m+6:], 1) // minor
	le.PutUint32(buf[m+12:], 6)
	copy(buf[m+16:], []byte("abcde\x00"))
	le.PutUint16(buf[m+26:], 4) // stream count

	type streamDef struct {
		name     string
		offset   uint32
		size     uint32
		hdrStart uint32
	}
	streams := []streamDef{
		{"#~", testTablesHeapOffset - m, 56, m + 28},
		{"#Strings", testStringsHeapOffset - m, 24, m + 40},
		{"#GUID", testGUIDHeapOffset - m, 16, m + 60},
		{"#Blob", testBlobHeapOffset - m, 8, m + 76},
	}
	for _, s := range streams {
		le.PutUint32(buf[s.hdrStart:], s.offset)
		le.PutUint32(buf[s.hdrStart+4:], s.size)
		copy(buf[s.hdrStart+8:], append([]byte(s.name), 0))
	}

	// #GUID heap.
	copy(buf[testGUIDHeapOffset:], testGUIDBytes)

	// #Strings heap: index 0 is the empty string, index 1 "TestAssembly",
	// index 14 "Other.dll".
	copy(buf[testStringsHeapOffset+testAssemblyNameIdx:], append([]byte("TestAssembly"), 0))
	copy(buf[testStringsHeapOffset+testModuleRefNameIdx:], append([]byte("Other.dll"), 0))

	// #Blob heap: index 0 reserved, index 1 a 4-byte compressed blob.
	blob := testBlobHeapOffset
	buf[blob+testPublicKeyBlobIdx] = 0x04 // 1-byte compressed length prefix
	copy(buf[blob+testPublicKeyBlobIdx+1:], []byte{0xAA, 0xBB, 0xCC, 0xDD})

	// #~ tables stream header (24 bytes) + row counts + row data.
	t := testTablesHeapOffset
	buf[t+4] = 2    // MajorVersion
	buf[t+5] = 0    // MinorVersion
	buf[t+6] = 0x00 // HeapSizes: narrow string/GUID/blob indices
	validMask := uint64(1)<<uint(TableModuleRef) | uint64(1)<<uint(TableAssembly)
	le.PutUint64(buf[t+8:], validMask)
	le.PutUint64(buf[t+16:], 0) // SortedMask

	cursor := t + 24
	le.PutUint32(buf[cursor:], 1) // ModuleRef row count
	cursor += 4
	le.PutUint32(buf[cursor:], 1) // Assembly row count
	cursor += 4

	// ModuleRef row: Name (2-byte string-heap index).
	le.PutUint16(buf[cursor:], testModuleRefNameIdx)
	cursor += 2

	// Assembly row.
	le.PutUint32(buf[cursor:], 0x8004) // HashAlgID
	cursor += 4
	le.PutUint16(buf[cursor:], 1) // MajorVersion
	le.PutUint16(buf[cursor+2:], 0)
	le.PutUint16(buf[cursor+4:], 0)
	le.PutUint16(buf[cursor+6:], 0)
	cursor += 8
	le.PutUint32(buf[cursor:], 0) // Flags
	cursor += 4
	le.PutUint16(buf[cursor:], testPublicKeyBlobIdx) // PublicKey
	cursor += 2
	le.PutUint16(buf[cursor:], testAssemblyNameIdx) // Name
	cursor += 2
	le.PutUint16(buf[cursor:], 0) // Culture (empty string)
	cursor += 2

	return buf
}
