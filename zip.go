// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spotzip creates, reads and mutates ZIP archives in the classic
// PKWARE APPNOTE layout (non-ZIP64, unencrypted), supporting the store and
// deflate compression methods.
//
// An Archive is a handle bound to one backing file and one access mode.
// Entries are appended in place - the existing central directory is moved
// past the new entry's local region and the end of central directory record
// is rewritten - and removed by rebuilding the archive into a temporary file
// that atomically replaces the original.
//
// # Basic usage
//
// Creating an archive and adding entries:
//
//	archive, _ := spotzip.Open("out.zip", spotzip.ModeCreate)
//	defer archive.Close()
//	archive.AddEntry(ctx, "readme.txt", int64(len(data)), bytes.NewReader(data),
//		spotzip.WithCompression(spotzip.Deflate))
//	archive.AddDirectory(ctx, "assets")
//	archive.AddSymlink(ctx, "latest", "readme.txt")
//
// Reading entries back:
//
//	archive, _ := spotzip.Open("out.zip", spotzip.ModeRead)
//	for entry, err := range archive.Entries() {
//		if err != nil {
//			break
//		}
//		crc, _ := archive.Extract(ctx, entry, os.Stdout)
//		_ = crc
//	}
//
// Long operations take a context.Context and optionally a Progress, which
// reports unit-counted completion and carries a cooperative cancel flag.
// Cancelling AddEntry mid-stream rolls the archive back to its previous
// state; cancelling Remove abandons the temporary file and leaves the
// original untouched.
//
// The Archive is single-threaded and non-reentrant: callers must serialize
// access to one handle.
package spotzip

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"

	"github.com/shawnclovie/SpotZip/internal"
)

// Archive-level constants. These are properties of the format subset and the
// engine, not runtime configuration.
const (
	// defaultChunkSize is the buffer size for chunked payload I/O.
	defaultChunkSize = 16 * 1024

	// eocdSearchWindow caps the backward scan for the end of central
	// directory record: 22-byte record plus the maximum 65535-byte comment,
	// rounded up.
	eocdSearchWindow = 66000

	// defaultFilePermissions applies to file and symlink entries when the
	// caller does not override them.
	defaultFilePermissions fs.FileMode = 0644

	// defaultDirectoryPermissions applies to directory entries.
	defaultDirectoryPermissions fs.FileMode = 0755

	// zipVersionRequired is the "version needed to extract" written for new
	// entries: 2.0, the level introducing deflate and directories.
	zipVersionRequired uint16 = 20

	// zip64VersionRequired marks entries this library refuses to load.
	zip64VersionRequired uint16 = 45

	// utf8Flag is bit 11 of the general purpose flag: filename and comment
	// are UTF-8.
	utf8Flag uint16 = 0x0800

	// encryptedFlag is bit 0 of the general purpose flag.
	encryptedFlag uint16 = 0x0001

	// dataDescriptorFlag is bit 3 of the general purpose flag: CRC and sizes
	// trail the payload in a data descriptor.
	dataDescriptorFlag uint16 = 0x0008
)

// Mode selects how an archive file is opened.
type Mode int

const (
	// ModeCreate initializes a new archive; the file must not pre-exist.
	ModeCreate Mode = iota
	// ModeRead opens an existing archive read-only.
	ModeRead
	// ModeUpdate opens an existing archive for mutation.
	ModeUpdate
)

// Config carries optional archive-level settings.
type Config struct {
	// OnEntrySkipped, when set, is invoked for each central directory record
	// the iterator refuses to load (ZIP64 or encrypted entries). The offset
	// is the record's absolute position in the archive file.
	OnEntrySkipped func(offset int64, reason error)
}

// Archive is a handle to one ZIP file. It owns the backing file handle
// exclusively and mirrors the end of central directory record in memory.
//
// The Archive is single-threaded and non-reentrant.
type Archive struct {
	file   *os.File
	path   string
	mode   Mode
	eocd   internal.EndOfCentralDirectory
	config Config
}

// Open binds an archive handle to the file at path.
//
// With ModeCreate the file must not exist; it is initialized with an empty
// end of central directory record. With ModeRead and ModeUpdate the file
// must exist and be accessible with the required permission, and its end of
// central directory record is located and decoded.
func Open(path string, mode Mode) (*Archive, error) {
	return OpenWithConfig(path, mode, Config{})
}

// OpenWithConfig is Open with archive-level settings.
func OpenWithConfig(path string, mode Mode, config Config) (*Archive, error) {
	a := &Archive{path: path, mode: mode, config: config}

	switch mode {
	case ModeCreate:
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotAccessible, path)
		}
		a.file = f
		if _, err := f.Write(a.eocd.Encode()); err != nil {
			f.Close()
			return nil, fmt.Errorf("write empty archive: %w", err)
		}
		return a, nil

	case ModeRead, ModeUpdate:
		flag := os.O_RDONLY
		if mode == ModeUpdate {
			flag = os.O_RDWR
		}
		f, err := os.OpenFile(path, flag, 0)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("%w: %s", ErrFileNotAccessible, path)
		}
		a.file = f
		if err := a.readEndOfCentralDirectory(); err != nil {
			f.Close()
			return nil, err
		}
		return a, nil
	}

	return nil, fmt.Errorf("%w: unsupported access mode %d", ErrUnknown, mode)
}

// Close releases the backing file handle.
func (a *Archive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Path returns the filesystem path the archive is bound to.
func (a *Archive) Path() string { return a.path }

// Mode returns the access mode the archive was opened with.
func (a *Archive) Mode() Mode { return a.mode }

// Comment returns the archive-level comment from the end of central
// directory record.
func (a *Archive) Comment() string { return a.eocd.Comment }

// EntryCount returns the number of entries recorded in the end of central
// directory record, including entries the iterator would skip.
func (a *Archive) EntryCount() int { return int(a.eocd.TotalNumberOfEntries) }

// Lookup returns the first entry whose path equals the requested string, or
// nil when no entry matches. Duplicate paths are permitted by the format;
// first hit wins.
func (a *Archive) Lookup(path string) (*Entry, error) {
	for entry, err := range a.Entries() {
		if err != nil {
			return nil, err
		}
		if entry.Path() == path {
			return entry, nil
		}
	}
	return nil, nil
}

// Entries returns a lazy iterator over the archive's entries in central
// directory order. Each entry is assembled from its central directory
// record, the local file header it points at, and the trailing data
// descriptor when bit 3 is set. ZIP64 and encrypted entries are skipped
// (reported through Config.OnEntrySkipped when set); a malformed record
// yields a non-nil error and ends the iteration.
func (a *Archive) Entries() iter.Seq2[*Entry, error] {
	return a.entries()
}

// TotalUnitCountForAdd returns the progress total AddEntry will plan for an
// entry of the given type and uncompressed size.
func TotalUnitCountForAdd(entryType EntryType, uncompressedSize int64) int64 {
	if entryType == EntryTypeDirectory {
		return 1
	}
	return uncompressedSize
}

// TotalUnitCountForExtract returns the progress total Extract will plan for
// the entry.
func TotalUnitCountForExtract(entry *Entry) int64 {
	if entry.Type() == EntryTypeDirectory {
		return 1
	}
	return entry.UncompressedSize()
}

// TotalUnitCountForRemove returns the progress total Remove will plan: the
// number of surviving local-region bytes to copy.
func (a *Archive) TotalUnitCountForRemove(entry *Entry) int64 {
	return int64(a.eocd.CentralDirOffset) - entry.localSize()
}
