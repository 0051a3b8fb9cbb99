// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFSArchive(t *testing.T) fs.FS {
	t.Helper()
	archive := newTestArchive(t)
	addString(t, archive, "top.txt", "top level")
	require.NoError(t, archive.AddDirectory(context.Background(), "docs"))
	addString(t, archive, "docs/readme.md", "# readme", WithCompression(Deflate))
	addString(t, archive, "docs/guide/intro.md", "intro")

	fsys, err := archive.FS()
	require.NoError(t, err)
	return fsys
}

func TestFSConformance(t *testing.T) {
	fsys := newFSArchive(t)
	require.NoError(t, fstest.TestFS(fsys,
		"top.txt", "docs/readme.md", "docs/guide/intro.md"))
}

func TestFSReadFile(t *testing.T) {
	fsys := newFSArchive(t)

	content, err := fs.ReadFile(fsys, "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# readme", string(content))
}

func TestFSReadDir(t *testing.T) {
	fsys := newFSArchive(t)

	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "top.txt", entries[1].Name())
	assert.False(t, entries[1].IsDir())

	entries, err = fs.ReadDir(fsys, "docs")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "guide", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "readme.md", entries[1].Name())
}

func TestFSImplicitDirectory(t *testing.T) {
	fsys := newFSArchive(t)

	// "docs/guide" has no entry of its own; it exists only as a prefix.
	info, err := fs.Stat(fsys, "docs/guide")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFSNotExist(t *testing.T) {
	fsys := newFSArchive(t)

	_, err := fsys.Open("missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
