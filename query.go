// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// EntryPoint returns the 32-bit method token recorded in the CLI header.
func (img *Image) EntryPoint() uint32 {
	return img.cli.EntryPointToken
}

// Resource returns the bytes of the managed resource stored at offset within
// the CLI header's Resources data directory: a 4-byte little-endian length
// prefix followed by that many bytes. Returns nil
// if the length prefix cannot be read within the resource region.
func (img *Image) Resource(offset uint32) []byte {
	dd := img.cli.Resources
	if dd.VirtualAddress == 0 || offset+4 > dd.Size {
		return nil
	}
	base := img.RVAToOffset(dd.VirtualAddress)
	if base == invalidOffset {
		return nil
	}
	length, err := img.buf.ReadUint32(base + offset)
	if err != nil {
		return nil
	}
	if offset+4+length > dd.Size {
		return nil
	}
	data, err := img.buf.Slice(base+offset+4, length)
	if err != nil {
		return nil
	}
	return data
}

// StrongName returns the strong-name signature blob recorded in the CLI
// header. No cryptographic validation is
// performed (Non-goal).
func (img *Image) StrongName() []byte {
	dd := img.cli.StrongNameSignature
	if dd.VirtualAddress == 0 {
		return nil
	}
	base := img.RVAToOffset(dd.VirtualAddress)
	if base == invalidOffset {
		return nil
	}
	data, err := img.buf.Slice(base, dd.Size)
	if err != nil {
		return nil
	}
	return data
}

// StrongNamePosition returns the file offset of the strong-name signature
// blob, or 0 if the image carries none.
func (img *Image) StrongNamePosition() uint32 {
	dd := img.cli.StrongNameSignature
	if dd.VirtualAddress == 0 {
		return 0
	}
	offset := img.RVAToOffset(dd.VirtualAddress)
	if offset == invalidOffset {
		return 0
	}
	return offset
}

// HasAuthenticodeEntry reports whether the certificate data directory is
// populated with more than just its own header (RVA != 0 and size > 8).
func (img *Image) HasAuthenticodeEntry() bool {
	dd := img.headers.DataDir(ImageDirectoryEntryCertificate)
	return dd.VirtualAddress != 0 && dd.Size > 8
}
