// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import (
	"go.mozilla.org/pkcs7"
)

// WIN_CERTIFICATE Revision values (presence only, never validated).
const (
	WinCertRevision1_0 = 0x0100
	WinCertRevision2_0 = 0x0200
)

// WIN_CERTIFICATE CertificateType values.
const (
	WinCertTypeX509           = 0x0001
	WinCertTypePKCSSignedData = 0x0002
	WinCertTypeReserved1      = 0x0003
	WinCertTypeTSStackSigned  = 0x0004
)

// WinCertificate is the fixed-size header preceding each entry in the
// certificate table pointed to by the Certificate data directory.
type WinCertificate struct {
	Length          uint32
	Revision        uint16
	CertificateType uint16
}

// Certificate is a single WIN_CERTIFICATE table entry, parsed structurally
// only: no signature, timestamp or chain-of-trust verification is performed
// (Non-goal — cryptographic validation belongs to a collaborator).
type Certificate struct {
	Header  WinCertificate
	Signers []CertInfo
	Raw     []byte
}

// CertInfo is the subset of a PKCS#7 signer's certificate fields this loader
// surfaces without validating them.
type CertInfo struct {
	Issuer       string
	Subject      string
	SerialNumber string
}

// Certificates parses the certificate table referenced by the Certificate
// data directory into a slice of WIN_CERTIFICATE entries. The directory's
// VirtualAddress is a raw file offset, not an RVA (ECMA-335/PE convention).
// Each entry's PKCS#7 SignedData blob is parsed far enough to recover signer
// certificate identities; no signature is checked.
func (img *Image) Certificates() ([]Certificate, error) {
	dd := img.headers.DataDir(ImageDirectoryEntryCertificate)
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, nil
	}

	var certs []Certificate
	offset := dd.VirtualAddress
	end := dd.VirtualAddress + dd.Size

	for offset < end {
		var hdr WinCertificate
		if err := img.buf.StructUnpack(&hdr, offset, 8); err != nil {
			break
		}
		if hdr.Length < 8 || offset+hdr.Length > end {
			img.addAnomaly(AnoInvalidCertificateTableEntry)
			break
		}

		raw, err := img.buf.Slice(offset+8, hdr.Length-8)
		if err != nil {
			break
		}

		cert := Certificate{Header: hdr, Raw: raw}
		if hdr.CertificateType == WinCertTypePKCSSignedData {
			cert.Signers = parsePKCS7Signers(raw)
		}
		certs = append(certs, cert)

		// Entries are 8-byte aligned (WIN_CERTIFICATE convention).
		offset += alignUp8(hdr.Length)
	}
	return certs, nil
}

// parsePKCS7Signers extracts issuer/subject/serial fields from every
// certificate embedded in a PKCS#7 SignedData blob. Parse errors are
// swallowed: structural introspection only, never a trust decision.
func parsePKCS7Signers(der []byte) []CertInfo {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil
	}
	infos := make([]CertInfo, 0, len(p7.Certificates))
	for _, c := range p7.Certificates {
		infos = append(infos, CertInfo{
			Issuer:       c.Issuer.String(),
			Subject:      c.Subject.String(),
			SerialNumber: c.SerialNumber.String(),
		})
	}
	return infos
}

func alignUp8(n uint32) uint32 {
	return (n + 7) &^ 7
}
