// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

// TinyPESize is the smallest PE file size accepted, matching the smallest
// executable seen on 32-bit Windows XP.
const TinyPESize = 97

// ImageDOSSignature is the MZ signature at the start of every PE file.
const ImageDOSSignature = 0x5a4d

// ImageNTSignature is the PE\0\0 signature at ntHeaderOffset.
const ImageNTSignature = 0x00004550

// ImageFileMachineI386 is the only machine type this loader accepts; PE32+
// (AMD64, ARM64, ...) images are out of scope.
const ImageFileMachineI386 = 0x14c

// ImageNTOptionalHeader32Magic is the only optional-header magic accepted.
const ImageNTOptionalHeader32Magic = 0x10b

// ImageNumberOfDirectoryEntries is the fixed data-directory array length.
const ImageNumberOfDirectoryEntries = 16

// MetadataRootSignature is the 'BSJB' magic at the start of the CLI metadata root.
const MetadataRootSignature = 0x424a5342

// ImageDirectoryEntry indexes the optional header's DataDirectory array.
type ImageDirectoryEntry int

const (
	ImageDirectoryEntryExport ImageDirectoryEntry = iota
	ImageDirectoryEntryImport
	ImageDirectoryEntryResource
	ImageDirectoryEntryException
	ImageDirectoryEntryCertificate
	ImageDirectoryEntryBaseReloc
	ImageDirectoryEntryDebug
	ImageDirectoryEntryArchitecture
	ImageDirectoryEntryGlobalPtr
	ImageDirectoryEntryTLS
	ImageDirectoryEntryLoadConfig
	ImageDirectoryEntryBoundImport
	ImageDirectoryEntryIAT
	ImageDirectoryEntryDelayImport
	ImageDirectoryEntryCLR
	ImageDirectoryEntryReserved
)

func (entry ImageDirectoryEntry) String() string {
	names := map[ImageDirectoryEntry]string{
		ImageDirectoryEntryExport:       "Export",
		ImageDirectoryEntryImport:       "Import",
		ImageDirectoryEntryResource:     "Resource",
		ImageDirectoryEntryException:    "Exception",
		ImageDirectoryEntryCertificate:  "Security",
		ImageDirectoryEntryBaseReloc:    "Relocation",
		ImageDirectoryEntryDebug:        "Debug",
		ImageDirectoryEntryArchitecture: "Architecture",
		ImageDirectoryEntryGlobalPtr:    "GlobalPtr",
		ImageDirectoryEntryTLS:          "TLS",
		ImageDirectoryEntryLoadConfig:   "LoadConfig",
		ImageDirectoryEntryBoundImport:  "BoundImport",
		ImageDirectoryEntryIAT:          "IAT",
		ImageDirectoryEntryDelayImport:  "DelayImport",
		ImageDirectoryEntryCLR:          "CLR",
		ImageDirectoryEntryReserved:     "Reserved",
	}
	return names[entry]
}

// Section characteristics bits relevant to RVA mapping.
const (
	ImageScnMemExecute = 0x20000000
	ImageScnMemRead    = 0x40000000
	ImageScnMemWrite   = 0x80000000
)

// FileCharacteristics relevant to anomaly detection and subsystem checks.
const (
	ImageFileExecutableImage = 0x0002
	ImageFileDLL             = 0x2000
)

// File table Flags: a row with this flag set carries no metadata and is not
// a candidate module-reference target.
const FileContainsNoMetadata = 0x0001

// Metadata table IDs. Row counts for every table up to LAST are tracked, but
// only the ModuleRef, File and Assembly rows are decoded by the core.
const (
	TableModule = iota
	TableTypeRef
	TableTypeDef
	_
	TableField
	_
	TableMethodDef
	_
	TableParam
	TableInterfaceImpl
	TableMemberRef
	TableConstant
	TableCustomAttribute
	TableFieldMarshal
	TableDeclSecurity
	TableClassLayout
	TableFieldLayout
	TableStandAloneSig
	TableEventMap
	_
	TableEvent
	TablePropertyMap
	_
	TableProperty
	TableMethodSemantics
	TableMethodImpl
	TableModuleRef
	TableTypeSpec
	TableImplMap
	TableFieldRVA
	_
	_
	TableAssembly
	TableAssemblyProcessor
	TableAssemblyOS
	TableAssemblyRef
	TableAssemblyRefProcessor
	TableAssemblyRefOS
	TableFile
	TableExportedType
	TableManifestResource
	TableNestedClass
	TableGenericParam
	TableMethodSpec
	TableGenericParamConstraint
)

// LAST is the highest legal metadata-table index ECMA-335 defines.
const LAST = 0x2D

// Named metadata stream names, matched verbatim while walking the metadata
// root's stream header list.
const (
	streamTables  = "#~"
	streamTablesU = "#-"
	streamStrings = "#Strings"
	streamUS      = "#US"
	streamBlob    = "#Blob"
	streamGUID    = "#GUID"
)
