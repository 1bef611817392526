// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// defaultRowWidther is a bundled realization of the RowWidther contract:
// enough to compute how many bytes a table's row occupies so the module
// graph loader (modulegraph.go) can skip past tables it doesn't itself
// decode on the way to ModuleRef/File/Assembly. It never interprets a row's
// column values semantically — only their byte widths — so it stops short
// of full metadata-table decoding; an external
// metadata layer is free to supply its own RowWidther instead.
type defaultRowWidther struct{}

// columnKind identifies how wide one column of a table row is, per
// ECMA-335 §II.24.2.6.
type columnKind int

const (
	colUint16 columnKind = iota
	colUint32
	colStringHeap
	colGUIDHeap
	colBlobHeap
	colSimpleIndex  // index into exactly one other table
	colCodedIndex   // index into one of several tables, tag bits encode which
)

type column struct {
	kind   columnKind
	tables []int // for colSimpleIndex/colCodedIndex: candidate tables
	tagBits int  // for colCodedIndex: number of low tag bits
}

// tableColumns maps table ID to its column list. Only tables actually
// reachable while walking toward ModuleRef/File/Assembly in ascending table
// ID order need to be present here for the module graph loader to succeed;
// entries are nonetheless filled in for every named Table* ID up to LAST so
// a consumer wanting the full layout (e.g. the external metadata layer) can
// reuse this table directly. IDs without a Table* constant have no entry and
// a row width of 0.
var tableColumns = map[int][]column{
	TableModule:         {{kind: colUint16}, {kind: colStringHeap}, {kind: colGUIDHeap}, {kind: colGUIDHeap}, {kind: colGUIDHeap}},
	TableTypeRef:        {{kind: colCodedIndex, tables: []int{TableModule, -1, TableModuleRef, TableAssemblyRef, TableTypeRef}, tagBits: 2}, {kind: colStringHeap}, {kind: colStringHeap}},
	TableTypeDef:        {{kind: colUint32}, {kind: colStringHeap}, {kind: colStringHeap}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableTypeRef, TableTypeSpec}, tagBits: 2}, {kind: colSimpleIndex, tables: []int{TableField}}, {kind: colSimpleIndex, tables: []int{TableMethodDef}}},
	TableField:          {{kind: colUint16}, {kind: colStringHeap}, {kind: colBlobHeap}},
	TableMethodDef:      {{kind: colUint32}, {kind: colUint16}, {kind: colUint16}, {kind: colStringHeap}, {kind: colBlobHeap}, {kind: colSimpleIndex, tables: []int{TableParam}}},
	TableParam:          {{kind: colUint16}, {kind: colUint16}, {kind: colStringHeap}},
	TableInterfaceImpl:  {{kind: colSimpleIndex, tables: []int{TableTypeDef}}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableTypeRef, TableTypeSpec}, tagBits: 2}},
	TableMemberRef:      {{kind: colCodedIndex, tables: []int{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}, tagBits: 3}, {kind: colStringHeap}, {kind: colBlobHeap}},
	TableConstant:       {{kind: colUint16}, {kind: colCodedIndex, tables: []int{TableField, TableParam, TableProperty}, tagBits: 2}, {kind: colBlobHeap}},
	TableCustomAttribute: {{kind: colCodedIndex, tables: []int{TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam, TableInterfaceImpl, TableMemberRef, TableModule, -1, TableProperty, TableEvent, TableStandAloneSig, TableModuleRef, TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile, TableExportedType, TableManifestResource, TableGenericParam, TableGenericParamConstraint, TableMethodSpec}, tagBits: 5}, {kind: colCodedIndex, tables: []int{TableMethodDef, TableMemberRef}, tagBits: 3}, {kind: colBlobHeap}},
	TableFieldMarshal:   {{kind: colCodedIndex, tables: []int{TableField, TableParam}, tagBits: 1}, {kind: colBlobHeap}},
	TableDeclSecurity:   {{kind: colUint16}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableMethodDef, TableAssembly}, tagBits: 2}, {kind: colBlobHeap}},
	TableClassLayout:    {{kind: colUint16}, {kind: colUint32}, {kind: colSimpleIndex, tables: []int{TableTypeDef}}},
	TableFieldLayout:    {{kind: colUint32}, {kind: colSimpleIndex, tables: []int{TableField}}},
	TableStandAloneSig:  {{kind: colBlobHeap}},
	TableEventMap:       {{kind: colSimpleIndex, tables: []int{TableTypeDef}}, {kind: colSimpleIndex, tables: []int{TableEvent}}},
	TableEvent:          {{kind: colUint16}, {kind: colStringHeap}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableTypeRef, TableTypeSpec}, tagBits: 2}},
	TablePropertyMap:    {{kind: colSimpleIndex, tables: []int{TableTypeDef}}, {kind: colSimpleIndex, tables: []int{TableProperty}}},
	TableProperty:       {{kind: colUint16}, {kind: colStringHeap}, {kind: colBlobHeap}},
	TableMethodSemantics: {{kind: colUint16}, {kind: colSimpleIndex, tables: []int{TableMethodDef}}, {kind: colCodedIndex, tables: []int{TableEvent, TableProperty}, tagBits: 1}},
	TableMethodImpl:     {{kind: colSimpleIndex, tables: []int{TableTypeDef}}, {kind: colCodedIndex, tables: []int{TableMethodDef, TableMemberRef}, tagBits: 1}, {kind: colCodedIndex, tables: []int{TableMethodDef, TableMemberRef}, tagBits: 1}},
	TableModuleRef:      {{kind: colStringHeap}},
	TableTypeSpec:       {{kind: colBlobHeap}},
	TableImplMap:        {{kind: colUint16}, {kind: colCodedIndex, tables: []int{TableField, TableMethodDef}, tagBits: 1}, {kind: colStringHeap}, {kind: colSimpleIndex, tables: []int{TableModuleRef}}},
	TableFieldRVA:       {{kind: colUint32}, {kind: colSimpleIndex, tables: []int{TableField}}},
	TableAssembly:       {{kind: colUint32}, {kind: colUint16}, {kind: colUint16}, {kind: colUint16}, {kind: colUint16}, {kind: colUint32}, {kind: colBlobHeap}, {kind: colStringHeap}, {kind: colStringHeap}},
	TableAssemblyProcessor: {{kind: colUint32}},
	TableAssemblyOS:     {{kind: colUint32}, {kind: colUint32}, {kind: colUint32}},
	TableAssemblyRef:    {{kind: colUint16}, {kind: colUint16}, {kind: colUint16}, {kind: colUint16}, {kind: colUint32}, {kind: colBlobHeap}, {kind: colStringHeap}, {kind: colStringHeap}, {kind: colBlobHeap}},
	TableAssemblyRefProcessor: {{kind: colUint32}, {kind: colSimpleIndex, tables: []int{TableAssemblyRef}}},
	TableAssemblyRefOS:  {{kind: colUint32}, {kind: colUint32}, {kind: colUint32}, {kind: colSimpleIndex, tables: []int{TableAssemblyRef}}},
	TableFile:           {{kind: colUint32}, {kind: colStringHeap}, {kind: colBlobHeap}},
	TableExportedType:   {{kind: colUint32}, {kind: colUint32}, {kind: colStringHeap}, {kind: colStringHeap}, {kind: colCodedIndex, tables: []int{TableFile, TableExportedType, TableAssemblyRef}, tagBits: 2}},
	TableManifestResource: {{kind: colUint32}, {kind: colUint32}, {kind: colStringHeap}, {kind: colCodedIndex, tables: []int{TableFile, TableAssemblyRef, -1}, tagBits: 2}},
	TableNestedClass:    {{kind: colSimpleIndex, tables: []int{TableTypeDef}}, {kind: colSimpleIndex, tables: []int{TableTypeDef}}},
	TableGenericParam:   {{kind: colUint16}, {kind: colUint16}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableMethodDef}, tagBits: 1}, {kind: colStringHeap}},
	TableMethodSpec:     {{kind: colCodedIndex, tables: []int{TableMethodDef, TableMemberRef}, tagBits: 1}, {kind: colBlobHeap}},
	TableGenericParamConstraint: {{kind: colSimpleIndex, tables: []int{TableGenericParam}}, {kind: colCodedIndex, tables: []int{TableTypeDef, TableTypeRef, TableTypeSpec}, tagBits: 2}},
}

// RowWidth computes the byte width of one row of the given table, using only
// row counts (d.RowCount, already known from the table descriptor) and heap
// index widths — never the row's own content.
func (defaultRowWidther) RowWidth(table int, d *TableDescriptor) uint32 {
	cols, ok := tableColumns[table]
	if !ok {
		return 0
	}
	var width uint32
	for _, c := range cols {
		switch c.kind {
		case colUint16:
			width += 2
		case colUint32:
			width += 4
		case colStringHeap:
			width += heapIndexWidth(d.StringWide)
		case colGUIDHeap:
			width += heapIndexWidth(d.GUIDWide)
		case colBlobHeap:
			width += heapIndexWidth(d.BlobWide)
		case colSimpleIndex:
			width += simpleIndexWidth(c.tables[0], d)
		case colCodedIndex:
			width += codedIndexWidth(c.tables, c.tagBits, d)
		}
	}
	return width
}

// simpleIndexWidth is 4 bytes if the referenced table's row count needs more
// than 16 bits, else 2.
func simpleIndexWidth(table int, d *TableDescriptor) uint32 {
	if d.TableRows(table) > 0xffff {
		return 4
	}
	return 2
}

// codedIndexWidth is 4 bytes if the largest candidate table's row count,
// shifted left by tagBits, would not fit in 16 bits, else 2. Entries of -1
// denote "no table" (the coded index can point at nothing) and contribute 0
// rows.
func codedIndexWidth(tables []int, tagBits int, d *TableDescriptor) uint32 {
	var maxRows uint32
	for _, t := range tables {
		if t < 0 {
			continue
		}
		if r := d.TableRows(t); r > maxRows {
			maxRows = r
		}
	}
	if maxRows<<uint(tagBits) > 0xffff {
		return 4
	}
	return 2
}
