// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFirstAndLast(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "head", "head data")
	addString(t, archive, "mid", "mid data")
	addString(t, archive, "tail", "tail data")

	head, err := archive.Lookup("head")
	require.NoError(t, err)
	require.NoError(t, archive.Remove(context.Background(), head))

	tail, err := archive.Lookup("tail")
	require.NoError(t, err)
	require.NoError(t, archive.Remove(context.Background(), tail))

	entries := collectEntries(t, archive)
	require.Len(t, entries, 1)
	assert.Equal(t, "mid", entries[0].Path())
	content, _ := extractString(t, archive, entries[0])
	assert.Equal(t, "mid data", content)
}

func TestRemoveOnlyEntry(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "solo", "alone")

	solo, err := archive.Lookup("solo")
	require.NoError(t, err)
	require.NoError(t, archive.Remove(context.Background(), solo))

	assert.Empty(t, collectEntries(t, archive))
	assert.Zero(t, archive.EntryCount())

	// The emptied archive can accept new entries again.
	addString(t, archive, "fresh", "fresh data")
	assert.Len(t, collectEntries(t, archive), 1)
}

func TestRemoveReadMode(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "e", "data")
	path := archive.Path()
	require.NoError(t, archive.Close())

	readOnly, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer readOnly.Close()

	e, err := readOnly.Lookup("e")
	require.NoError(t, err)
	require.ErrorIs(t, readOnly.Remove(context.Background(), e), ErrFileNotAccessible)
}

func TestRemoveCancelledLeavesOriginal(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "a", strings.Repeat("A", 4096))
	addString(t, archive, "b", strings.Repeat("B", 4096))
	before := archiveBytes(t, archive.Path())

	progress := NewProgress(0)
	progress.Cancel()

	target, err := archive.Lookup("b")
	require.NoError(t, err)
	err = archive.Remove(context.Background(), target, WithProgress(progress))
	require.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, before, archiveBytes(t, archive.Path()))

	// No temporary file is left behind.
	dir := filepath.Dir(archive.Path())
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, n := range names {
		assert.False(t, strings.HasPrefix(n.Name(), ".spotzip-"), n.Name())
	}
}

func TestRemoveProgress(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "keep", strings.Repeat("k", 10000))
	addString(t, archive, "drop", "d")

	target, err := archive.Lookup("drop")
	require.NoError(t, err)

	want := archive.TotalUnitCountForRemove(target)
	progress := NewProgress(0)
	require.NoError(t, archive.Remove(context.Background(), target, WithProgress(progress)))

	assert.Equal(t, want, progress.TotalUnitCount())
	assert.Equal(t, want, progress.CompletedUnitCount())
}

func TestRemoveEOCDConsistency(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "a", "A")
	addString(t, archive, "b", "B")
	addString(t, archive, "c", "C")

	target, err := archive.Lookup("b")
	require.NoError(t, err)
	removedRecord := target.CentralDirectory.TotalSize()
	sizeBefore := int64(archive.eocd.CentralDirSize)

	require.NoError(t, archive.Remove(context.Background(), target))

	assert.Equal(t, uint16(2), archive.eocd.TotalNumberOfEntries)
	assert.Equal(t, sizeBefore-removedRecord, int64(archive.eocd.CentralDirSize))

	// The file parses from scratch with the same trailer.
	path := archive.Path()
	require.NoError(t, archive.Close())
	reopened, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.EntryCount())
}
