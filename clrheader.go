// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// CLIHeader is IMAGE_COR20_HEADER, the fixed-size record pointed to by the
// CLI data directory.
type CLIHeader struct {
	SizeOfHeader            uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

// parseCLIHeader maps the CLI data-directory entry to a file offset and
// decodes the fixed-size CLIHeader record. Fields from
// CodeManagerTable onward should be zero per ECMA-335; non-zero values are
// tolerated silently.
func parseCLIHeader(img *Image) error {
	dd := img.headers.DataDir(ImageDirectoryEntryCLR)
	if dd.VirtualAddress == 0 {
		return ErrNoCLIHeader
	}
	offset := img.RVAToOffset(dd.VirtualAddress)
	if offset == invalidOffset {
		return ErrNoCLIHeader
	}
	var h CLIHeader
	if err := img.buf.StructUnpack(&h, offset, 72); err != nil {
		return err
	}
	img.cli = h
	return nil
}
