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

	"github.com/shawnclovie/SpotZip/internal"
)

// TestEOCDScanWithComment verifies the record is located behind trailing
// comments of representative lengths, including the maximum.
func TestEOCDScanWithComment(t *testing.T) {
	for _, commentLen := range []int{0, 1, 100, 65535} {
		comment := strings.Repeat("c", commentLen)

		archive := newTestArchive(t)
		archive.eocd.Comment = comment
		archive.eocd.CommentLength = uint16(commentLen)
		addString(t, archive, "entry", "content")
		path := archive.Path()
		require.NoError(t, archive.Close())

		reopened, err := Open(path, ModeRead)
		require.NoError(t, err, "comment length %d", commentLen)
		assert.Equal(t, comment, reopened.Comment())
		assert.Len(t, collectEntries(t, reopened), 1)
		reopened.Close()
	}
}

// patchCentralDirRecord applies edit to the first central directory record
// of the archive file at path.
func patchCentralDirRecord(t *testing.T, path string, edit func(record []byte)) {
	t.Helper()

	archive, err := Open(path, ModeRead)
	require.NoError(t, err)
	cdOffset := int64(archive.eocd.CentralDirOffset)
	require.NoError(t, archive.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edit(data[cdOffset:])
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestEntriesSkipEncrypted(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "locked", "secret")
	addString(t, archive, "open", "public")
	path := archive.Path()
	require.NoError(t, archive.Close())

	// Set bit 0 (encrypted) in the first record's general purpose flag.
	patchCentralDirRecord(t, path, func(record []byte) {
		record[8] |= 0x01
	})

	var skipped []int64
	reopened, err := OpenWithConfig(path, ModeRead, Config{
		OnEntrySkipped: func(offset int64, reason error) {
			skipped = append(skipped, offset)
			assert.ErrorIs(t, reason, ErrInvalidFormat)
		},
	})
	require.NoError(t, err)
	defer reopened.Close()

	entries := collectEntries(t, reopened)
	require.Len(t, entries, 1)
	assert.Equal(t, "open", entries[0].Path())
	assert.Equal(t, 2, reopened.EntryCount())
	assert.Len(t, skipped, 1)
}

func TestEntriesSkipZip64(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "wide", "x")
	addString(t, archive, "narrow", "y")
	path := archive.Path()
	require.NoError(t, archive.Close())

	// Raise the first record's "version needed to extract" to the ZIP64
	// threshold.
	patchCentralDirRecord(t, path, func(record []byte) {
		record[6] = 45
		record[7] = 0
	})

	reopened, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entries := collectEntries(t, reopened)
	require.Len(t, entries, 1)
	assert.Equal(t, "narrow", entries[0].Path())
}

// TestCP437Filename builds an archive whose filename byte 0x82 decodes as
// "é" under IBM Code Page 437 when bit 11 is clear.
func TestCP437Filename(t *testing.T) {
	rawName := "caf\x82"
	payload := []byte("legacy")

	local := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		CompressionMethod:      uint16(Store),
		CRC32:                  0,
		CompressedSize:         uint32(len(payload)),
		UncompressedSize:       uint32(len(payload)),
		FilenameLength:         uint16(len(rawName)),
		Filename:               rawName,
	}
	central := internal.CentralDirectory{
		VersionNeededToExtract: 20,
		CompressionMethod:      uint16(Store),
		CompressedSize:         uint32(len(payload)),
		UncompressedSize:       uint32(len(payload)),
		FilenameLength:         uint16(len(rawName)),
		Filename:               rawName,
	}

	localBytes := local.Encode()
	centralBytes := central.Encode()
	eocd := internal.EndOfCentralDirectory{
		TotalNumberOfEntriesOnThisDisk: 1,
		TotalNumberOfEntries:           1,
		CentralDirSize:                 uint32(len(centralBytes)),
		CentralDirOffset:               uint32(len(localBytes) + len(payload)),
	}

	var file []byte
	file = append(file, localBytes...)
	file = append(file, payload...)
	file = append(file, centralBytes...)
	file = append(file, eocd.Encode()...)

	path := filepath.Join(t.TempDir(), "legacy.zip")
	require.NoError(t, os.WriteFile(path, file, 0644))

	archive, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer archive.Close()

	entries := collectEntries(t, archive)
	require.Len(t, entries, 1)
	assert.Equal(t, "café", entries[0].Path())

	content, _ := extractString(t, archive, entries[0])
	assert.Equal(t, "legacy", content)
}

func TestExtractUnsupportedMethod(t *testing.T) {
	archive := newTestArchive(t)
	addString(t, archive, "victim", "data")
	entries := collectEntries(t, archive)
	require.Len(t, entries, 1)

	// Forge an entry claiming BZIP2.
	forged := *entries[0]
	forged.CentralDirectory.CompressionMethod = 12

	_, err := archive.Extract(context.Background(), &forged, os.Stdout)
	require.ErrorIs(t, err, ErrInvalidCompressionMethod)
}

func TestEntriesOnEmptyArchive(t *testing.T) {
	archive := newTestArchive(t)
	assert.Empty(t, collectEntries(t, archive))
	assert.Zero(t, archive.EntryCount())
}
