// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ZipItem creates a new archive at archivePath containing the file or
// directory tree rooted at sourcePath. Entry paths are relative to the
// source item's parent, so the item's own name becomes the archive root.
// Symbolic links are not followed; they are stored as symlink entries.
// File entries are deflated unless the caller overrides the method.
func ZipItem(ctx context.Context, sourcePath, archivePath string, opts ...Option) error {
	info, err := os.Lstat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, sourcePath)
		}
		return fmt.Errorf("%w: %s", ErrFileNotAccessible, sourcePath)
	}

	archive, err := Open(archivePath, ModeCreate)
	if err != nil {
		return err
	}
	defer archive.Close()

	opts = append([]Option{WithCompression(Deflate)}, opts...)
	base := filepath.Dir(sourcePath)

	if !info.IsDir() {
		return addFilesystemItem(ctx, archive, sourcePath, base, info, opts)
	}

	return filepath.WalkDir(sourcePath, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return addFilesystemItem(ctx, archive, walkPath, base, info, opts)
	})
}

// addFilesystemItem appends one filesystem object to the archive as the
// matching entry type, carrying over its mode and modification time.
func addFilesystemItem(ctx context.Context, archive *Archive, itemPath, base string, info fs.FileInfo, opts []Option) error {
	rel, err := filepath.Rel(base, itemPath)
	if err != nil {
		return err
	}
	name := filepath.ToSlash(rel)

	itemOpts := append([]Option{
		WithModTime(info.ModTime()),
		WithPermissions(info.Mode().Perm()),
	}, opts...)

	switch {
	case info.IsDir():
		return archive.AddDirectory(ctx, name, itemOpts...)

	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(itemPath)
		if err != nil {
			return fmt.Errorf("read link %s: %w", itemPath, err)
		}
		return archive.AddSymlink(ctx, name, target, itemOpts...)

	default:
		f, err := os.Open(itemPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return archive.AddEntry(ctx, name, info.Size(), f, itemOpts...)
	}
}

// UnzipItem extracts every entry of the archive at archivePath into
// destPath. Entry paths escaping the destination root are refused with
// ErrInsecurePath (Zip Slip protection).
func UnzipItem(ctx context.Context, archivePath, destPath string, opts ...Option) error {
	archive, err := Open(archivePath, ModeRead)
	if err != nil {
		return err
	}
	defer archive.Close()

	destPath = filepath.Clean(destPath)
	if err := os.MkdirAll(destPath, defaultDirectoryPermissions); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	for entry, err := range archive.Entries() {
		if err != nil {
			return err
		}

		target := filepath.Join(destPath, filepath.FromSlash(entry.Path()))
		if !strings.HasPrefix(target, destPath+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrInsecurePath, entry.Path())
		}

		if _, err := archive.ExtractToPath(ctx, entry, target, opts...); err != nil {
			return err
		}
	}
	return nil
}
