// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// TableDescriptor is the decoded #~/#- stream header: heap index widths,
// which table IDs are present, and each present table's row count.
// Column layout and per-row width are not stored here; they come from a
// RowWidther (defaultRowWidther unless the caller supplies its own).
type TableDescriptor struct {
	MajorVersion uint8
	MinorVersion uint8
	StringWide   bool
	GUIDWide     bool
	BlobWide     bool
	ValidMask    uint64
	SortedMask   uint64
	RowCount     [LAST + 1]uint32
	TablesBase   uint32
}

// RowWidther is the narrow contract that tells this module how wide a row of
// a given table is, so that TablesBase-derived per-table base offsets can be
// computed. An external metadata layer may implement it; otherwise the
// bundled defaultRowWidther supplies the widths.
type RowWidther interface {
	RowWidth(table int, d *TableDescriptor) uint32
}

// parseTableDescriptor decodes the heap-sizes byte, valid/sorted bitmasks
// and per-table row counts from the #~ (or #-) heap, and computes
// tables_base.
func parseTableDescriptor(img *Image) error {
	heap := img.metadata.heapTables
	base := heap.Offset

	heapSizes, err := img.buf.ReadUint8(base + 6)
	if err != nil {
		return err
	}

	validMask, err := img.buf.ReadUint64(base + 8)
	if err != nil {
		return err
	}
	sortedMask, err := img.buf.ReadUint64(base + 16)
	if err != nil {
		return err
	}

	d := &TableDescriptor{
		StringWide: isBitSet(uint64(heapSizes), 0),
		GUIDWide:   isBitSet(uint64(heapSizes), 1),
		BlobWide:   isBitSet(uint64(heapSizes), 2),
		ValidMask:  validMask,
		SortedMask: sortedMask,
	}

	majMin, err := img.buf.Slice(base+4, 2)
	if err != nil {
		return err
	}
	d.MajorVersion = majMin[0]
	d.MinorVersion = majMin[1]

	cursor := base + 24
	consumed := 0
	for t := 0; t < 64; t++ {
		if !isBitSet(validMask, uint(t)) {
			continue
		}
		if t > LAST {
			img.logger.Warnf("metadata table index %#x exceeds LAST (%#x), ignoring", t, LAST)
			continue
		}
		rows, err := img.buf.ReadUint32(cursor)
		if err != nil {
			return err
		}
		d.RowCount[t] = rows
		cursor += 4
		consumed++
	}

	d.TablesBase = base + 24 + 4*uint32(consumed)
	if d.TablesBase != cursor {
		return ErrTableRowCountMismatch
	}

	img.tables = d
	return nil
}

// TableRows returns the row count for the given table ID, or 0 if the table
// is not present (bit unset in ValidMask).
func (d *TableDescriptor) TableRows(table int) uint32 {
	if table < 0 || table > LAST {
		return 0
	}
	return d.RowCount[table]
}

// heapIndexWidth returns 4 when wide is set, else 2 — the common width
// calculation the metadata-layer collaborator needs for every heap index

func heapIndexWidth(wide bool) uint32 {
	if wide {
		return 4
	}
	return 2
}
