// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import "fmt"

// HeapSlice is a {offset, size} pair into raw_data for one named metadata heap.
type HeapSlice struct {
	Offset uint32
	Size   uint32
}

// StreamHeader is one entry of the metadata root's stream header list.
type StreamHeader struct {
	Offset uint32 // relative to raw_metadata
	Size   uint32
	Name   string
}

// metadataRoot holds everything parsed out of the BSJB metadata root.
type metadataRoot struct {
	rawMetadataOffset uint32
	versionMajor      uint16
	versionMinor      uint16
	version           string
	streams           []StreamHeader

	heapTables  HeapSlice
	heapStrings HeapSlice
	heapUS      HeapSlice
	heapBlob    HeapSlice
	heapGUID    HeapSlice

	uncompressedMetadata bool
	guid                 string
}

// parseMetadataRoot decodes the BSJB metadata root at the CLI header's
// MetaData data directory.
func parseMetadataRoot(img *Image) error {
	dd := img.cli.MetaData
	offset := img.RVAToOffset(dd.VirtualAddress)
	if offset == invalidOffset {
		return ErrInvalidMetadataSignature
	}

	sig, err := img.buf.ReadUint32(offset)
	if err != nil {
		return err
	}
	if sig != MetadataRootSignature {
		return ErrInvalidMetadataSignature
	}

	root := &metadataRoot{rawMetadataOffset: offset}

	// Signature (4), MajorVersion (2), MinorVersion (2), then a 4-byte
	// reserved field before the version-string length.
	cursor := offset + 4
	root.versionMajor, err = img.buf.ReadUint16(cursor)
	if err != nil {
		return err
	}
	root.versionMinor, err = img.buf.ReadUint16(cursor + 2)
	if err != nil {
		return err
	}
	cursor += 4 + 4 // major, minor, reserved

	verLen, err := img.buf.ReadUint32(cursor)
	if err != nil {
		return err
	}
	cursor += 4
	verBytes, err := img.buf.Slice(cursor, verLen)
	if err != nil {
		return err
	}
	n := 0
	for n < len(verBytes) && verBytes[n] != 0 {
		n++
	}
	root.version = string(verBytes[:n])
	cursor = alignUp4(cursor + verLen)

	cursor += 2 // reserved
	streamCount, err := img.buf.ReadUint16(cursor)
	if err != nil {
		return err
	}
	cursor += 2

	root.streams = make([]StreamHeader, 0, streamCount)
	for i := uint16(0); i < streamCount; i++ {
		hdrOffset, err := img.buf.ReadUint32(cursor)
		if err != nil {
			return err
		}
		size, err := img.buf.ReadUint32(cursor + 4)
		if err != nil {
			return err
		}
		name, consumed, err := img.buf.ReadCString(cursor+8, 32)
		if err != nil {
			img.logger.Warnf("metadata stream header %d has an unterminated name", i)
			return err
		}
		cursor = alignUp4(cursor + 8 + consumed)

		sh := StreamHeader{Offset: hdrOffset, Size: size, Name: name}
		root.streams = append(root.streams, sh)

		heap := HeapSlice{Offset: offset + hdrOffset, Size: size}
		switch name {
		case streamTables:
			root.heapTables = heap
		case streamTablesU:
			root.heapTables = heap
			root.uncompressedMetadata = true
		case streamStrings:
			root.heapStrings = heap
		case streamUS:
			root.heapUS = heap
		case streamBlob:
			root.heapBlob = heap
		case streamGUID:
			root.heapGUID = heap
		default:
			img.logger.Debugf("skipping unknown metadata stream %q", name)
		}
	}

	if root.heapGUID.Size < 16 {
		return ErrMissingGUIDHeap
	}
	if root.heapTables.Size == 0 {
		return ErrMissingTablesStream
	}

	guidBytes, err := img.buf.Slice(root.heapGUID.Offset, 16)
	if err != nil {
		return err
	}
	root.guid = formatGUID(guidBytes)

	img.metadata = root
	return nil
}

// formatGUID renders 16 raw bytes as the canonical hyphenated GUID string,
// e.g. "01234567-89ab-cdef-0123-456789abcdef".
func formatGUID(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(b[3])<<24|uint32(b[2])<<16|uint32(b[1])<<8|uint32(b[0]),
		uint16(b[5])<<8|uint16(b[4]),
		uint16(b[7])<<8|uint16(b[6]),
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}
