// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrimage

import "time"

// Anomalies found in an image. These don't prevent the Windows loader from
// loading the file but are interesting for malware-analysis-style
// introspection.
var (
	// AnoPETimeStampNull is reported when the file header timestamp is 0.
	AnoPETimeStampNull = "File Header timestamp set to 0"

	// AnoPETimeStampFuture is reported when the file header timestamp is
	// more than one day ahead of the current date.
	AnoPETimeStampFuture = "File Header timestamp set to the future"

	// AnoNumberOfSections10Plus is reported when number of sections is 10+.
	AnoNumberOfSections10Plus = "Number of sections is 10+"

	// AnoNumberOfSectionsNull is reported when sections count is 0.
	AnoNumberOfSectionsNull = "Number of sections is 0"

	// AnoAddressOfEntryPointNull is reported when address of entry point is 0.
	AnoAddressOfEntryPointNull = "Address of entry point is 0"

	// AnoAddressOfEPLessSizeOfHeaders is reported when address of entry
	// point is smaller than size of headers.
	AnoAddressOfEPLessSizeOfHeaders = "Address of entry point is smaller than size of headers, " +
		"the file cannot run under Windows 8"

	// AnoImageBaseNull is reported when the image base is null.
	AnoImageBaseNull = "Image base is 0"

	// ErrInvalidFileAlignment is reported when file alignment is larger than
	// 0x200 and not a power of 2.
	ErrInvalidFileAlignment = "FileAlignment larger than 0x200 and not a power of 2"

	// ErrInvalidSectionAlignment is reported when file alignment is lesser
	// than 0x200 and different from section alignment.
	ErrInvalidSectionAlignment = "FileAlignment lesser than 0x200 and different from section alignment"

	// AnoMajorSubsystemVersion is reported when MajorSubsystemVersion has a
	// value outside the standard 3..6 boundary.
	AnoMajorSubsystemVersion = "MajorSubsystemVersion is outside 3<-->6 boundary"

	// AnonWin32VersionValue is reported when Win32VersionValue is non-zero.
	AnonWin32VersionValue = "Win32VersionValue is a reserved field, must be set to zero"

	// AnoInvalidPEChecksum describes an optional header checksum field that
	// is inconsistent with the computed checksum. GetAnomalies does not
	// compute the checksum and never reports it.
	AnoInvalidPEChecksum = "Optional header checksum is invalid"

	// AnoNumberOfRvaAndSizes is reported when NumberOfRvaAndSizes differs
	// from 16.
	AnoNumberOfRvaAndSizes = "Optional header NumberOfRvaAndSizes != 16"

	// AnoReservedDataDirectoryEntry is reported when the last data directory
	// entry is not zero.
	AnoReservedDataDirectoryEntry = "Last data directory entry is a reserved field, must be set to zero"

	// AnoInvalidSizeOfImage is reported when SizeOfImage is not a multiple
	// of SectionAlignment.
	AnoInvalidSizeOfImage = "Invalid SizeOfImage value, should be multiple of SectionAlignment"

	// AnoInvalidCertificateTableEntry is reported when a WIN_CERTIFICATE
	// entry's Length field would run past the end of the certificate table.
	AnoInvalidCertificateTableEntry = "Certificate table entry length runs past the security directory"
)

// GetAnomalies reports anomalies found in the image's PE headers. 32-bit
// only: PE32+ anomaly checks are out of scope (Non-goal).
func (img *Image) GetAnomalies() error {
	h := img.headers

	if h.COFF.NumberOfSections >= 10 {
		img.addAnomaly(AnoNumberOfSections10Plus)
	}

	if h.COFF.TimeDateStamp == 0 {
		img.addAnomaly(AnoPETimeStampNull)
	}

	now := time.Now()
	future := uint32(now.Add(24 * time.Hour).Unix())
	if h.COFF.TimeDateStamp > future {
		img.addAnomaly(AnoPETimeStampFuture)
	}

	if h.COFF.NumberOfSections == 0 {
		img.addAnomaly(AnoNumberOfSectionsNull)
	}

	oh := h.Optional

	if oh.AddressOfEntryPoint != 0 && oh.AddressOfEntryPoint < oh.SizeOfHeaders {
		img.addAnomaly(AnoAddressOfEPLessSizeOfHeaders)
	}

	if oh.AddressOfEntryPoint == 0 {
		img.addAnomaly(AnoAddressOfEntryPointNull)
	}

	if oh.ImageBase == 0 {
		img.addAnomaly(AnoImageBaseNull)
	}

	if oh.SectionAlignment != 0 && oh.SizeOfImage%oh.SectionAlignment != 0 {
		img.addAnomaly(AnoInvalidSizeOfImage)
	}

	if oh.MajorSubsystemVersion < 3 || oh.MajorSubsystemVersion > 6 {
		img.addAnomaly(AnoMajorSubsystemVersion)
	}

	if oh.Win32VersionValue != 0 {
		img.addAnomaly(AnonWin32VersionValue)
	}

	if oh.NumberOfRvaAndSizes != ImageNumberOfDirectoryEntries {
		img.addAnomaly(AnoNumberOfRvaAndSizes)
	}

	if oh.FileAlignment > 0x200 && oh.FileAlignment&(oh.FileAlignment-1) != 0 {
		img.addAnomaly(ErrInvalidFileAlignment)
	}

	if oh.FileAlignment < 0x200 && oh.FileAlignment != oh.SectionAlignment {
		img.addAnomaly(ErrInvalidSectionAlignment)
	}

	if h.DataDir(ImageDirectoryEntryReserved) != (DataDirectory{}) {
		img.addAnomaly(AnoReservedDataDirectoryEntry)
	}

	return nil
}

// addAnomaly appends anomaly to the image's anomaly list, skipping
// duplicates.
func (img *Image) addAnomaly(anomaly string) {
	if !stringInSlice(anomaly, img.Anomalies) {
		img.Anomalies = append(img.Anomalies, anomaly)
	}
}

// stringInSlice checks whether a string exists in a slice of strings.
func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}
