// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package clrimage loads and provides random-access reading of CLI
// (Common Language Infrastructure) managed-code images stored in the PE/COFF
// file format: header parsing, section/RVA mapping, CLI header and metadata
// root parsing, compressed metadata-table descriptor decoding, module-graph
// loading, PE resource tree walking, and a process-wide reference-counted
// image cache keyed by path and metadata GUID.
//
// Full per-table metadata decoding (types, methods, signatures, generics) is
// out of scope; this package exposes table row counts, table bases and heap
// slices for a higher-level metadata layer to consume.
package clrimage
