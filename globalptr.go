// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// AnoInvalidGlobalPtrReg is reported when the global pointer register offset
// is outside the image.
const AnoInvalidGlobalPtrReg = "Global pointer register offset outside of PE image"

// GlobalPtr returns the 32-bit value to be stored in the global pointer
// register, read at the RVA recorded in the GlobalPtr data directory. The directory's Size
// field is always 0; architectures without the concept of a global pointer
// (including every 32-bit CLI image this loader targets) leave it zeroed, in
// which case GlobalPtr returns 0 and ok is false.
func (img *Image) GlobalPtr() (value uint32, ok bool) {
	dd := img.headers.DataDir(ImageDirectoryEntryGlobalPtr)
	if dd.VirtualAddress == 0 {
		return 0, false
	}

	offset := img.RVAToOffset(dd.VirtualAddress)
	if offset == invalidOffset {
		img.addAnomaly(AnoInvalidGlobalPtrReg)
		return 0, false
	}

	v, err := img.buf.ReadUint32(offset)
	if err != nil {
		img.addAnomaly(AnoInvalidGlobalPtrReg)
		return 0, false
	}
	return v, true
}
