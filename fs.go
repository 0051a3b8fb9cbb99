// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// FS returns a read-only fs.FS view of the archive. The entry list is
// materialized once when FS is called; the view does not observe later
// mutations. Paths follow fs conventions: no trailing slashes, "." is the
// root.
func (a *Archive) FS() (fs.FS, error) {
	var entries []*Entry
	for entry, err := range a.Entries() {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return &archiveFS{archive: a, entries: entries}, nil
}

type archiveFS struct {
	archive *Archive
	entries []*Entry
}

// Open implements fs.FS. Regular files are decompressed in full into memory
// when opened; directories (explicit or implicit) support ReadDir.
func (afs *archiveFS) Open(name string) (fs.File, error) {
	entry, implicitDir, err := afs.find(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if implicitDir || entry.Type() == EntryTypeDirectory {
		return &fsDir{fsys: afs, name: name, entry: entry}, nil
	}

	var content bytes.Buffer
	if _, err := afs.archive.Extract(context.Background(), entry, &content); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{entry: entry, name: name, content: bytes.NewReader(content.Bytes())}, nil
}

// Stat implements fs.StatFS.
func (afs *archiveFS) Stat(name string) (fs.FileInfo, error) {
	entry, implicitDir, err := afs.find(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfo{name: path.Base(name), entry: entry, dir: implicitDir}, nil
}

// ReadDir implements fs.ReadDirFS.
func (afs *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := afs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// find resolves a name to its entry. The second result reports an implicit
// directory: a name that only exists as a prefix of deeper entries (or the
// root), with no entry of its own.
func (afs *archiveFS) find(name string) (*Entry, bool, error) {
	if !fs.ValidPath(name) {
		return nil, false, fs.ErrInvalid
	}
	if name == "." {
		return nil, true, nil
	}

	for _, e := range afs.entries {
		p := strings.TrimSuffix(e.Path(), "/")
		if p == name {
			return e, false, nil
		}
	}

	prefix := name + "/"
	for _, e := range afs.entries {
		if strings.HasPrefix(e.Path(), prefix) {
			return nil, true, nil
		}
	}

	return nil, false, fs.ErrNotExist
}

// fsFile is a regular file with its content materialized.
type fsFile struct {
	entry   *Entry
	name    string
	content *bytes.Reader
}

func (f *fsFile) Stat() (fs.FileInfo, error) {
	return fileInfo{name: path.Base(f.name), entry: f.entry}, nil
}
func (f *fsFile) Read(b []byte) (int, error) { return f.content.Read(b) }
func (f *fsFile) Close() error               { return nil }

// fsDir is a directory handle supporting ReadDir. The child list is built
// once on first use; the read position persists across calls as fs.File
// pagination semantics require.
type fsDir struct {
	fsys     *archiveFS
	name     string
	entry    *Entry // nil for implicit directories and the root
	children []fs.DirEntry
	listed   bool
	pos      int
}

func (d *fsDir) Stat() (fs.FileInfo, error) {
	return fileInfo{name: path.Base(d.name), entry: d.entry, dir: true}, nil
}
func (d *fsDir) Close() error { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

// ReadDir returns the next n immediate children of the directory, or all
// remaining children when n <= 0.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.children = d.list()
		d.listed = true
	}

	remaining := d.children[d.pos:]
	if n <= 0 {
		d.pos = len(d.children)
		return remaining, nil
	}

	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if len(remaining) > n {
		remaining = remaining[:n]
	}
	d.pos += len(remaining)
	return remaining, nil
}

func (d *fsDir) list() []fs.DirEntry {
	dirPath := d.name + "/"
	if d.name == "." {
		dirPath = ""
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for _, e := range d.fsys.entries {
		entryPath := e.Path()
		if !strings.HasPrefix(entryPath, dirPath) {
			continue
		}

		rel := strings.TrimPrefix(entryPath, dirPath)
		rel = strings.TrimSuffix(rel, "/")
		if rel == "" {
			continue
		}

		childName, _, nested := strings.Cut(rel, "/")
		if seen[childName] {
			continue
		}
		seen[childName] = true

		isDir := nested || e.Type() == EntryTypeDirectory
		var info fs.FileInfo
		if nested {
			info = fileInfo{name: childName, dir: true}
		} else {
			info = fileInfo{name: childName, entry: e}
		}
		entries = append(entries, dirEntry{name: childName, isDir: isDir, info: info})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// fileInfo adapts an Entry to fs.FileInfo. A nil entry with dir set
// describes an implicit directory.
type fileInfo struct {
	name  string
	entry *Entry
	dir   bool
}

func (i fileInfo) Name() string { return i.name }

func (i fileInfo) Size() int64 {
	if i.entry == nil {
		return 0
	}
	return i.entry.UncompressedSize()
}

func (i fileInfo) Mode() fs.FileMode {
	if i.entry == nil {
		return fs.ModeDir | defaultDirectoryPermissions
	}
	return i.entry.Mode()
}

func (i fileInfo) ModTime() time.Time {
	if i.entry == nil {
		return time.Time{}
	}
	return i.entry.ModTime()
}

func (i fileInfo) IsDir() bool {
	return i.dir || (i.entry != nil && i.entry.Type() == EntryTypeDirectory)
}

func (i fileInfo) Sys() interface{} { return nil }

type dirEntry struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e dirEntry) Name() string               { return e.name }
func (e dirEntry) IsDir() bool                { return e.isDir }
func (e dirEntry) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e dirEntry) Info() (fs.FileInfo, error) { return e.info, nil }
