// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

// HostSystem represents the host system on which a ZIP entry was created.
// It occupies the upper byte of the central directory's "version made by"
// field.
type HostSystem uint8

// Creator systems the attribute bridge distinguishes. Entries from any other
// value of the "version made by" table fall back to the trailing-slash name
// convention.
const (
	HostSystemFAT    HostSystem = 0  // MS-DOS and OS/2 (FAT / VFAT / FAT32 file systems)
	HostSystemUNIX   HostSystem = 3  // UNIX
	HostSystemNTFS   HostSystem = 10 // Windows NTFS
	HostSystemVFAT   HostSystem = 14 // VFAT
	HostSystemDarwin HostSystem = 19 // OS X (Darwin)
)

// IsUnix reports whether external file attributes written by this host carry
// POSIX mode bits in their upper 16 bits.
func (h HostSystem) IsUnix() bool {
	return h == HostSystemUNIX || h == HostSystemDarwin
}

// IsWindows reports whether external file attributes written by this host
// follow MS-DOS attribute conventions.
func (h HostSystem) IsWindows() bool {
	return h == HostSystemFAT || h == HostSystemNTFS || h == HostSystemVFAT
}

// Unix constants for file types (standard POSIX).
const (
	S_IFMT  = 0170000 // File type mask
	S_IFREG = 0100000 // Regular file
	S_IFDIR = 0040000 // Directory
	S_IFLNK = 0120000 // Symlink
)
