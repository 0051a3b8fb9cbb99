// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cancelAfterReader trips the progress cancel flag once limit bytes have
// been handed out, so the next chunk poll observes it mid-stream.
type cancelAfterReader struct {
	r        io.Reader
	progress *Progress
	limit    int
	read     int
}

func (c *cancelAfterReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	if c.read >= c.limit {
		c.progress.Cancel()
	}
	return n, err
}

func archiveBytes(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// TestAddEntryCancelRollback checks that cancelling mid-stream leaves the
// archive byte-identical to its pre-call state.
func TestAddEntryCancelRollback(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "existing", "already here")
	before := archiveBytes(t, archive.Path())

	progress := NewProgress(0)
	src := &cancelAfterReader{
		r:        strings.NewReader(strings.Repeat("payload ", 1<<16)),
		progress: progress,
		limit:    defaultChunkSize,
	}

	err := archive.AddEntry(context.Background(), "cancelled", 8<<16, src,
		WithProgress(progress))
	require.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, before, archiveBytes(t, archive.Path()))

	// The handle stays usable after a rollback.
	entries := collectEntries(t, archive)
	require.Len(t, entries, 1)
	assert.Equal(t, "existing", entries[0].Path())
}

func TestAddEntryContextCancelled(t *testing.T) {
	archive := newTestArchive(t)
	before := archiveBytes(t, archive.Path())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := archive.AddEntry(ctx, "never", 4, strings.NewReader("data"))
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, before, archiveBytes(t, archive.Path()))
}

func TestAddEntryPreservesComment(t *testing.T) {
	archive := newTestArchive(t)
	archive.eocd.Comment = "sticky comment"
	archive.eocd.CommentLength = uint16(len("sticky comment"))
	addString(t, archive, "first", "1")
	addString(t, archive, "second", "2")
	path := archive.Path()
	require.NoError(t, archive.Close())

	reopened, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "sticky comment", reopened.Comment())
	assert.Len(t, collectEntries(t, reopened), 2)
}

func TestAddEntryProgress(t *testing.T) {
	archive := newTestArchive(t)
	content := strings.Repeat("x", 3*defaultChunkSize+100)

	progress := NewProgress(0)
	err := archive.AddEntry(context.Background(), "tracked", int64(len(content)),
		strings.NewReader(content), WithProgress(progress))
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), progress.TotalUnitCount())
	assert.Equal(t, int64(len(content)), progress.CompletedUnitCount())
	assert.InDelta(t, 1.0, progress.FractionCompleted(), 1e-9)
}

func TestAddDirectoryProgress(t *testing.T) {
	archive := newTestArchive(t)

	progress := NewProgress(0)
	require.NoError(t, archive.AddDirectory(context.Background(), "d", WithProgress(progress)))

	assert.Equal(t, int64(1), progress.TotalUnitCount())
	assert.Equal(t, int64(1), progress.CompletedUnitCount())
}

func TestProgressAggregation(t *testing.T) {
	parent := NewProgress(0)
	childA := NewProgress(100)
	childB := NewProgress(50)
	parent.AddChild(childA, 10)
	parent.AddChild(childB, 10)

	childA.add(100)
	childB.add(25)

	assert.Equal(t, int64(20), parent.TotalUnitCount())
	assert.Equal(t, int64(15), parent.CompletedUnitCount())

	parent.Cancel()
	assert.True(t, childA.IsCancelled())
	assert.True(t, childB.IsCancelled())
}

func TestNormalizeEntryPath(t *testing.T) {
	tests := []struct {
		in   string
		typ  EntryType
		want string
	}{
		{"plain.txt", EntryTypeFile, "plain.txt"},
		{"/rooted.txt", EntryTypeFile, "rooted.txt"},
		{"a\\b\\c.txt", EntryTypeFile, "a/b/c.txt"},
		{"dir", EntryTypeDirectory, "dir/"},
		{"dir/", EntryTypeDirectory, "dir/"},
		{"a/./b", EntryTypeFile, "a/b"},
		{".", EntryTypeFile, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeEntryPath(tt.in, tt.typ), tt.in)
	}
}

func TestEncodeExternalFileAttributes(t *testing.T) {
	assert.Equal(t, uint32(0o100644)<<16, encodeExternalFileAttributes(EntryTypeFile, 0644))
	assert.Equal(t, uint32(0o040755)<<16, encodeExternalFileAttributes(EntryTypeDirectory, 0755))
	assert.Equal(t, uint32(0o120644)<<16, encodeExternalFileAttributes(EntryTypeSymlink, 0644))
}

// TestAppendToReopenedArchive exercises the preserved-central-directory move
// across a close/reopen boundary.
func TestAppendToReopenedArchive(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "old", "old data")
	path := archive.Path()
	require.NoError(t, archive.Close())

	updated, err := Open(path, ModeUpdate)
	require.NoError(t, err)
	defer updated.Close()
	addString(t, updated, "new", "new data")

	entries := collectEntries(t, updated)
	require.Len(t, entries, 2)
	assert.Equal(t, "old", entries[0].Path())
	assert.Equal(t, "new", entries[1].Path())

	content, _ := extractString(t, updated, entries[0])
	assert.Equal(t, "old data", content)
	content, _ = extractString(t, updated, entries[1])
	assert.Equal(t, "new data", content)
}

func TestAddEntryEmptyFile(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "empty", "")

	entries := collectEntries(t, archive)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].UncompressedSize())

	var buf bytes.Buffer
	crc, err := archive.Extract(context.Background(), entries[0], &buf)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
	assert.Zero(t, crc)
}
