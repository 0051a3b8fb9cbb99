// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"io/fs"
	"strings"
	"time"

	"github.com/shawnclovie/SpotZip/internal"
	"github.com/shawnclovie/SpotZip/internal/sys"
)

// EntryType classifies an archive entry.
type EntryType int

const (
	EntryTypeFile EntryType = iota
	EntryTypeDirectory
	EntryTypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeFile:
		return "file"
	case EntryTypeDirectory:
		return "directory"
	case EntryTypeSymlink:
		return "symlink"
	}
	return "unknown"
}

// Entry is one archive member as assembled from the central directory. It is
// an immutable value: it embeds copies of the entry's on-disk records and
// carries no reference back to the archive. Its offsets are only meaningful
// while the originating archive file exists unchanged.
type Entry struct {
	// CentralDirectory is the authoritative copy of the entry metadata.
	CentralDirectory internal.CentralDirectory
	// LocalHeader is the header found at CentralDirectory.LocalHeaderOffset.
	LocalHeader internal.LocalFileHeader
	// DataDescriptor trails the payload when bit 3 of the general purpose
	// flag is set; nil otherwise.
	DataDescriptor *internal.DataDescriptor

	path string // decoded once during assembly
}

// Path returns the decoded entry path. Directory entries carry a trailing
// slash, as stored.
func (e *Entry) Path() string { return e.path }

// Type derives the entry classification from the creator host system and the
// external file attributes. Unix creators carry POSIX mode bits in the upper
// half of the attributes; MS-DOS creators use the directory attribute bit;
// anything else falls back to the trailing slash convention.
func (e *Entry) Type() EntryType {
	host := sys.HostSystem(e.CentralDirectory.VersionMadeBy >> 8)

	if host.IsUnix() {
		switch (e.CentralDirectory.ExternalFileAttributes >> 16) & sys.S_IFMT {
		case sys.S_IFDIR:
			return EntryTypeDirectory
		case sys.S_IFLNK:
			return EntryTypeSymlink
		default:
			return EntryTypeFile
		}
	}

	if host.IsWindows() {
		if strings.HasSuffix(e.path, "/") || e.CentralDirectory.ExternalFileAttributes&0x10 != 0 {
			return EntryTypeDirectory
		}
		return EntryTypeFile
	}

	if strings.HasSuffix(e.path, "/") {
		return EntryTypeDirectory
	}
	return EntryTypeFile
}

// CompressionMethod returns the entry's compression method.
func (e *Entry) CompressionMethod() CompressionMethod {
	return CompressionMethod(e.CentralDirectory.CompressionMethod)
}

// UncompressedSize returns the payload size before compression.
func (e *Entry) UncompressedSize() int64 {
	if e.DataDescriptor != nil {
		return int64(e.DataDescriptor.UncompressedSize)
	}
	return int64(e.CentralDirectory.UncompressedSize)
}

// CompressedSize returns the payload size as stored in the archive.
func (e *Entry) CompressedSize() int64 {
	if e.DataDescriptor != nil {
		return int64(e.DataDescriptor.CompressedSize)
	}
	return int64(e.CentralDirectory.CompressedSize)
}

// CRC32 returns the checksum of the uncompressed payload.
func (e *Entry) CRC32() uint32 {
	if e.DataDescriptor != nil {
		return e.DataDescriptor.CRC32
	}
	return e.CentralDirectory.CRC32
}

// ModTime returns the entry's MS-DOS modification timestamp in UTC.
func (e *Entry) ModTime() time.Time {
	return msDosToTime(e.CentralDirectory.LastModFileDate, e.CentralDirectory.LastModFileTime)
}

// Mode returns the entry's permissions and type bits as an fs.FileMode.
// For non-Unix creators the mode is synthesized from the DOS attributes.
func (e *Entry) Mode() fs.FileMode {
	host := sys.HostSystem(e.CentralDirectory.VersionMadeBy >> 8)

	if host.IsUnix() {
		unixMode := e.CentralDirectory.ExternalFileAttributes >> 16
		mode := fs.FileMode(unixMode & 0777)
		switch unixMode & sys.S_IFMT {
		case sys.S_IFDIR:
			mode |= fs.ModeDir
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		}
		return mode
	}

	if e.Type() == EntryTypeDirectory {
		return 0755 | fs.ModeDir
	}
	mode := fs.FileMode(0644)
	if e.CentralDirectory.ExternalFileAttributes&0x01 != 0 {
		mode &^= 0222 // DOS ReadOnly
	}
	return mode
}

// localSize returns the total on-disk length of the entry's local region:
// local header with tails, payload, and the data descriptor when present.
func (e *Entry) localSize() int64 {
	size := e.LocalHeader.TotalSize() + e.payloadSize()
	if e.DataDescriptor != nil {
		size += e.DataDescriptor.TotalSize()
	}
	return size
}

// payloadSize returns the stored byte length of the payload, computed from
// the central directory record (the source of truth even when a data
// descriptor is present).
func (e *Entry) payloadSize() int64 {
	if e.CompressionMethod() != Store {
		return int64(e.CentralDirectory.CompressedSize)
	}
	return int64(e.CentralDirectory.UncompressedSize)
}

// dataOffset returns the archive offset of the first payload byte.
func (e *Entry) dataOffset() int64 {
	return int64(e.CentralDirectory.LocalHeaderOffset) + e.LocalHeader.TotalSize()
}
