// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extract streams the entry's decompressed content into dst and returns the
// CRC32 of the delivered bytes. Directory entries produce no bytes and a
// zero checksum. The entry's compression method must be store or deflate.
func (a *Archive) Extract(ctx context.Context, entry *Entry, dst io.Writer, opts ...Option) (uint32, error) {
	if entry == nil {
		return 0, fmt.Errorf("%w: nil entry", ErrUnknown)
	}
	if !entry.CompressionMethod().isSupported() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCompressionMethod, entry.CentralDirectory.CompressionMethod)
	}

	o := resolveOptions(opts)
	o.progress.setTotal(TotalUnitCountForExtract(entry))

	if entry.Type() == EntryTypeDirectory {
		if err := checkCancel(ctx, o.progress); err != nil {
			return 0, err
		}
		o.progress.add(1)
		return 0, nil
	}

	payload := io.NewSectionReader(a.file, entry.dataOffset(), int64(entry.CentralDirectory.CompressedSize))
	return readPayload(ctx, dst, payload, entry.CompressionMethod(), o.chunkSize, o.progress)
}

// ExtractToPath materializes the entry at destPath: regular files are
// written with the entry's permissions and modification time, directory
// entries become directories, and symlink entries become symbolic links
// pointing at the stored target. Parent directories are created as needed.
// Returns the CRC32 of the entry content.
//
// Entry paths are attacker-controlled data on read: a name that is absolute
// or climbs out of its root with ".." is refused with ErrInsecurePath (Zip
// Slip protection) before anything touches the filesystem.
func (a *Archive) ExtractToPath(ctx context.Context, entry *Entry, destPath string, opts ...Option) (uint32, error) {
	if entry == nil {
		return 0, fmt.Errorf("%w: nil entry", ErrUnknown)
	}
	if !isSecureEntryPath(entry.Path()) {
		return 0, fmt.Errorf("%w: %s", ErrInsecurePath, entry.Path())
	}

	switch entry.Type() {
	case EntryTypeDirectory:
		if err := os.MkdirAll(destPath, entry.Mode().Perm()); err != nil {
			return 0, fmt.Errorf("create directory: %w", err)
		}
		crc, err := a.Extract(ctx, entry, io.Discard, opts...)
		if err != nil {
			return 0, err
		}
		restoreAttributes(destPath, entry)
		return crc, nil

	case EntryTypeSymlink:
		var target strings.Builder
		crc, err := a.Extract(ctx, entry, &target, opts...)
		if err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(destPath), defaultDirectoryPermissions); err != nil {
			return 0, fmt.Errorf("create parent directory: %w", err)
		}
		if err := os.Symlink(target.String(), destPath); err != nil {
			return 0, fmt.Errorf("create symlink: %w", err)
		}
		return crc, nil

	default:
		if err := os.MkdirAll(filepath.Dir(destPath), defaultDirectoryPermissions); err != nil {
			return 0, fmt.Errorf("create parent directory: %w", err)
		}
		f, err := os.Create(destPath)
		if err != nil {
			return 0, fmt.Errorf("create file: %w", err)
		}
		crc, err := a.Extract(ctx, entry, f, opts...)
		closeErr := f.Close()
		if err != nil {
			return 0, err
		}
		if closeErr != nil {
			return 0, fmt.Errorf("close output file: %w", closeErr)
		}
		restoreAttributes(destPath, entry)
		return crc, nil
	}
}

// isSecureEntryPath reports whether a decoded entry path stays inside any
// extraction root: non-empty, relative, forward slashes only, no ".."
// elements.
func isSecureEntryPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return false
		}
	}
	return true
}

// restoreAttributes applies the entry's permissions and modification time to
// the extracted object. Best effort: failures are ignored as they may occur
// on file systems that don't support these operations.
func restoreAttributes(path string, entry *Entry) {
	perm := entry.Mode().Perm()
	if perm == 0 {
		perm = defaultFilePermissions
	}
	os.Chmod(path, perm)
	os.Chtimes(path, time.Now(), entry.ModTime())
}
