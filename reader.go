// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/shawnclovie/SpotZip/internal"
)

// readEndOfCentralDirectory locates and decodes the end of central directory
// record. The search reads one tail window of up to eocdSearchWindow bytes
// and scans it backward in memory for the record signature.
func (a *Archive) readEndOfCentralDirectory() error {
	stat, err := a.file.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	fileSize := stat.Size()

	if fileSize < internal.EndOfCentralDirFixedSize {
		return fmt.Errorf("%w: file too small", ErrInvalidFormat)
	}

	window := min(int64(eocdSearchWindow), fileSize)
	buf := make([]byte, window)
	if _, err := a.file.ReadAt(buf, fileSize-window); err != nil && err != io.EOF {
		return fmt.Errorf("read archive tail: %w", err)
	}

	for p := len(buf) - internal.EndOfCentralDirFixedSize; p >= 0; p-- {
		if binary.LittleEndian.Uint32(buf[p:p+4]) != internal.EndOfCentralDirSignature {
			continue
		}
		eocd, err := internal.ReadEndOfCentralDir(bytes.NewReader(buf[p:]))
		if err != nil {
			// A payload byte run can mimic the signature; keep scanning.
			continue
		}
		a.eocd = eocd
		return nil
	}

	return fmt.Errorf("%w: no end of central directory signature found", ErrInvalidFormat)
}

// entries walks the central directory lazily. For each record it seeks to
// the referenced local file header, decodes it, and decodes the trailing
// data descriptor when bit 3 of the general purpose flag is set. Records the
// format subset excludes (ZIP64, encrypted) are skipped.
func (a *Archive) entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		offset := int64(a.eocd.CentralDirOffset)

		for i := 0; i < int(a.eocd.TotalNumberOfEntries); i++ {
			record, err := a.readCentralDirEntryAt(offset)
			if err != nil {
				yield(nil, fmt.Errorf("%w: central directory entry %d: %v", ErrInvalidFormat, i, err))
				return
			}
			recordOffset := offset
			offset += record.TotalSize()

			if reason := loadGuard(record); reason != nil {
				if a.config.OnEntrySkipped != nil {
					a.config.OnEntrySkipped(recordOffset, reason)
				}
				continue
			}

			entry, err := a.assembleEntry(record)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// loadGuard returns the reason an entry is refused at load, or nil when the
// entry is within the supported subset.
func loadGuard(record internal.CentralDirectory) error {
	if record.VersionNeededToExtract >= zip64VersionRequired {
		return fmt.Errorf("%w: ZIP64 entry", ErrInvalidFormat)
	}
	if record.GeneralPurposeBitFlag&encryptedFlag != 0 {
		return fmt.Errorf("%w: encrypted entry", ErrInvalidFormat)
	}
	return nil
}

func (a *Archive) readCentralDirEntryAt(offset int64) (internal.CentralDirectory, error) {
	sr := io.NewSectionReader(a.file, offset, int64(a.eocd.CentralDirOffset)+int64(a.eocd.CentralDirSize)-offset)
	return internal.ReadCentralDirEntry(sr)
}

// assembleEntry materializes an Entry from its central directory record plus
// the local file header and optional data descriptor it points at.
func (a *Archive) assembleEntry(record internal.CentralDirectory) (*Entry, error) {
	localOffset := int64(record.LocalHeaderOffset)
	sr := io.NewSectionReader(a.file, localOffset, int64(a.eocd.CentralDirOffset)-localOffset)

	localHeader, err := internal.ReadLocalFileHeader(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: local header of %q: %v", ErrInvalidFormat, record.Filename, err)
	}

	entry := &Entry{
		CentralDirectory: record,
		LocalHeader:      localHeader,
		path:             decodeFilename(record.Filename, record.GeneralPurposeBitFlag),
	}

	if record.GeneralPurposeBitFlag&dataDescriptorFlag != 0 {
		descOffset := localOffset + localHeader.TotalSize() + entry.payloadSize()
		dsr := io.NewSectionReader(a.file, descOffset, int64(a.eocd.CentralDirOffset)-descOffset)
		descriptor, err := internal.ReadDataDescriptor(dsr)
		if err != nil {
			return nil, fmt.Errorf("%w: data descriptor of %q: %v", ErrInvalidFormat, record.Filename, err)
		}
		entry.DataDescriptor = &descriptor
	}

	return entry, nil
}

// readCentralDirectoryBytes returns the raw central directory image, the
// byte run the writer preserves across an append.
func (a *Archive) readCentralDirectoryBytes() ([]byte, error) {
	buf := make([]byte, a.eocd.CentralDirSize)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := a.file.ReadAt(buf, int64(a.eocd.CentralDirOffset)); err != nil {
		return nil, fmt.Errorf("read central directory: %w", err)
	}
	return buf, nil
}
