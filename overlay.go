// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// overlayOffset returns the file offset immediately past the end of the
// last section's raw data, i.e. where trailing appended data (an overlay,
// such as an installer payload or a detached signature) would begin.
func (img *Image) overlayOffset() uint32 {
	var end uint32
	for i := range img.headers.Sections {
		s := &img.headers.Sections[i]
		tail := s.RawDataPtr + s.RawDataSize
		if tail > end {
			end = tail
		}
	}
	return end
}

// HasOverlay reports whether data follows the last section's raw data.
func (img *Image) HasOverlay() bool {
	return img.buf.Len() > img.overlayOffset()
}

// Overlay returns the bytes appended after the last section's raw data, or
// nil if there is none.
func (img *Image) Overlay() []byte {
	offset := img.overlayOffset()
	total := img.buf.Len()
	if total <= offset {
		return nil
	}
	data, err := img.buf.Slice(offset, total-offset)
	if err != nil {
		return nil
	}
	return data
}
