// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Remove deletes one entry by rebuilding the archive into a temporary
// sibling file without the entry's local region and central directory
// record, then atomically replacing the original file. Surviving local
// regions are copied byte-for-byte; their central directory records are
// re-issued with offsets shifted by the removed region's length.
//
// Cancellation aborts with no mutation to the original archive; the
// temporary file is discarded.
func (a *Archive) Remove(ctx context.Context, entry *Entry, opts ...Option) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: archive is opened read-only", ErrFileNotAccessible)
	}
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrUnknown)
	}

	o := resolveOptions(opts)

	removedOffset := int64(entry.CentralDirectory.LocalHeaderOffset)
	removedLocalSize := entry.localSize()
	removedRecordSize := entry.CentralDirectory.TotalSize()

	o.progress.setTotal(int64(a.eocd.CentralDirOffset) - removedLocalSize)

	stat, err := a.file.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".spotzip-*")
	if err != nil {
		return fmt.Errorf("create temporary archive: %w", err)
	}
	// The temporary file becomes the archive; carry the original mode over.
	if err := tmp.Chmod(stat.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var centralDir bytes.Buffer
	var found bool

	for survivor, err := range a.Entries() {
		if err != nil {
			return err
		}
		if !found && survivor.CentralDirectory.LocalHeaderOffset == entry.CentralDirectory.LocalHeaderOffset {
			found = true
			continue
		}

		if err := a.copyLocalRegion(ctx, tmp, survivor, o.chunkSize, o.progress); err != nil {
			return err
		}

		record := survivor.CentralDirectory
		if int64(record.LocalHeaderOffset) > removedOffset {
			record.LocalHeaderOffset -= uint32(removedLocalSize)
		}
		centralDir.Write(record.Encode())
	}

	if !found {
		return fmt.Errorf("%w: entry %q not present", ErrUnknown, entry.Path())
	}

	centralDirOffset := int64(a.eocd.CentralDirOffset) - removedLocalSize
	if _, err := tmp.Write(centralDir.Bytes()); err != nil {
		return fmt.Errorf("write central directory: %w", err)
	}

	eocd := a.eocd
	eocd.TotalNumberOfEntriesOnThisDisk--
	eocd.TotalNumberOfEntries--
	eocd.CentralDirSize -= uint32(removedRecordSize)
	eocd.CentralDirOffset = uint32(centralDirOffset)
	if _, err := tmp.Write(eocd.Encode()); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("flush temporary archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary archive: %w", err)
	}

	// Replace the original and reopen the backing handle in read-write mode.
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	tmp = nil

	reopened, err := os.OpenFile(a.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: reopen %s", ErrFileNotAccessible, a.path)
	}
	a.file = reopened
	a.eocd = eocd
	return nil
}

// copyLocalRegion copies one entry's full local region (local header, tails,
// payload, optional data descriptor) byte-for-byte.
func (a *Archive) copyLocalRegion(ctx context.Context, dst io.Writer, entry *Entry, chunkSize int, progress *Progress) error {
	src := io.NewSectionReader(a.file, int64(entry.CentralDirectory.LocalHeaderOffset), entry.localSize())

	buf := make([]byte, chunkSize)
	for {
		if err := checkCancel(ctx, progress); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("copy local region of %q: %w", entry.Path(), err)
			}
			progress.add(int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read local region of %q: %w", entry.Path(), readErr)
		}
	}
}
