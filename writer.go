// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"
	"strings"
	"time"

	"github.com/shawnclovie/SpotZip/internal"
	"github.com/shawnclovie/SpotZip/internal/sys"
)

// Option configures a single archive operation.
type Option func(*operationOptions)

type operationOptions struct {
	modTime     time.Time
	permissions fs.FileMode
	method      CompressionMethod
	level       int
	chunkSize   int
	progress    *Progress
}

func resolveOptions(opts []Option) operationOptions {
	o := operationOptions{
		modTime:   time.Now(),
		method:    Store,
		level:     DeflateNormal,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultChunkSize
	}
	return o
}

// WithModTime sets the entry modification time (stored with 2-second DOS
// resolution, in UTC).
func WithModTime(t time.Time) Option {
	return func(o *operationOptions) { o.modTime = t }
}

// WithPermissions sets the POSIX permission bits encoded into the entry's
// external file attributes. Defaults: 0644 for files and symlinks, 0755 for
// directories.
func WithPermissions(perm fs.FileMode) Option {
	return func(o *operationOptions) { o.permissions = perm }
}

// WithCompression selects the compression method for a file entry. Ignored
// for directories and symlinks.
func WithCompression(method CompressionMethod) Option {
	return func(o *operationOptions) { o.method = method }
}

// WithDeflateLevel sets the DEFLATE level used when the method is Deflate.
func WithDeflateLevel(level int) Option {
	return func(o *operationOptions) { o.level = level }
}

// WithChunkSize overrides the buffer size for chunked payload I/O.
func WithChunkSize(size int) Option {
	return func(o *operationOptions) { o.chunkSize = size }
}

// WithProgress attaches a progress to the operation. The operation sets the
// total unit count when it starts and advances the completed count per
// chunk; the progress cancel flag aborts the operation cooperatively.
func WithProgress(p *Progress) Option {
	return func(o *operationOptions) { o.progress = p }
}

// AddEntry appends a file entry streaming its content from src. The declared
// uncompressedSize is used for progress planning and the 4 GiB placement
// check; the true size and CRC are measured from the stream and written back
// into the headers.
func (a *Archive) AddEntry(ctx context.Context, entryPath string, uncompressedSize int64, src io.Reader, opts ...Option) error {
	return a.addEntry(ctx, entryPath, EntryTypeFile, uncompressedSize, src, resolveOptions(opts))
}

// AddDirectory appends a directory entry. The stored path always carries a
// trailing slash.
func (a *Archive) AddDirectory(ctx context.Context, entryPath string, opts ...Option) error {
	return a.addEntry(ctx, entryPath, EntryTypeDirectory, 0, nil, resolveOptions(opts))
}

// AddSymlink appends a symbolic link entry whose payload is the link target,
// stored verbatim.
func (a *Archive) AddSymlink(ctx context.Context, entryPath, target string, opts ...Option) error {
	o := resolveOptions(opts)
	return a.addEntry(ctx, entryPath, EntryTypeSymlink, int64(len(target)), strings.NewReader(target), o)
}

// addEntry implements the append protocol: the existing central directory is
// snapshotted, the new local region is written over its former position with
// a provisional header, the header is rewritten once sizes and CRC are
// known, and the preserved central directory plus the new record and an
// updated end of central directory record follow the payload.
func (a *Archive) addEntry(ctx context.Context, entryPath string, entryType EntryType, declaredSize int64, src io.Reader, o operationOptions) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: archive is opened read-only", ErrFileNotAccessible)
	}

	name := normalizeEntryPath(entryPath, entryType)
	if name == "" {
		return fmt.Errorf("%w: empty entry path", ErrUnknown)
	}

	method := o.method
	if entryType != EntryTypeFile {
		method = Store
	}
	if !method.isSupported() {
		return fmt.Errorf("%w: %d", ErrInvalidCompressionMethod, method)
	}

	// Snapshot the byte run that moves past the new entry, and the trailer
	// that has to be restored on rollback.
	savedEOCD := a.eocd
	savedCentralDir, err := a.readCentralDirectoryBytes()
	if err != nil {
		return err
	}

	localOffset := int64(a.eocd.CentralDirOffset)
	originalSize := localOffset + int64(len(savedCentralDir)) + savedEOCD.TotalSize()

	dosDate, dosTime := timeToMSDOS(o.modTime)
	localHeader := internal.LocalFileHeader{
		VersionNeededToExtract: zipVersionRequired,
		GeneralPurposeBitFlag:  utf8Flag,
		CompressionMethod:      uint16(method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		FilenameLength:         uint16(len(name)),
		Filename:               name,
	}

	// Placement check with the declared size; the measured size is checked
	// again after streaming.
	if localOffset+localHeader.TotalSize()+max(declaredSize, 0) > math.MaxUint32 {
		return ErrInvalidCentralDirectoryOffset
	}

	if _, err := a.file.Seek(localOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to central directory start: %w", err)
	}
	if _, err := a.file.Write(localHeader.Encode()); err != nil {
		return fmt.Errorf("write provisional local header: %w", err)
	}

	o.progress.setTotal(TotalUnitCountForAdd(entryType, declaredSize))

	var stats streamStats
	switch entryType {
	case EntryTypeDirectory:
		if err := checkCancel(ctx, o.progress); err != nil {
			return a.rollback(localOffset, savedCentralDir, savedEOCD, originalSize, err)
		}
		o.progress.add(1)
	default:
		if src == nil {
			src = strings.NewReader("")
		}
		stats, err = writePayload(ctx, a.file, src, method, o.level, o.chunkSize, o.progress)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return a.rollback(localOffset, savedCentralDir, savedEOCD, originalSize, err)
			}
			return err
		}
	}

	endOfPayload := localOffset + localHeader.TotalSize() + stats.compressedSize
	if endOfPayload > math.MaxUint32 {
		return a.rollback(localOffset, savedCentralDir, savedEOCD, originalSize, ErrInvalidCentralDirectoryOffset)
	}

	localHeader.CRC32 = stats.crc32
	localHeader.CompressedSize = uint32(stats.compressedSize)
	localHeader.UncompressedSize = uint32(stats.uncompressedSize)
	if err := a.patchLocalHeaderSizes(localOffset, localHeader); err != nil {
		return err
	}

	permissions := o.permissions
	if permissions == 0 {
		permissions = defaultFilePermissions
		if entryType == EntryTypeDirectory {
			permissions = defaultDirectoryPermissions
		}
	}

	centralRecord := internal.CentralDirectory{
		VersionMadeBy:          uint16(sys.HostSystemUNIX)<<8 | zipVersionRequired,
		VersionNeededToExtract: localHeader.VersionNeededToExtract,
		GeneralPurposeBitFlag:  localHeader.GeneralPurposeBitFlag,
		CompressionMethod:      localHeader.CompressionMethod,
		LastModFileTime:        localHeader.LastModFileTime,
		LastModFileDate:        localHeader.LastModFileDate,
		CRC32:                  localHeader.CRC32,
		CompressedSize:         localHeader.CompressedSize,
		UncompressedSize:       localHeader.UncompressedSize,
		FilenameLength:         localHeader.FilenameLength,
		ExternalFileAttributes: encodeExternalFileAttributes(entryType, permissions),
		LocalHeaderOffset:      uint32(localOffset),
		Filename:               name,
	}
	centralRecordBytes := centralRecord.Encode()

	if _, err := a.file.Seek(endOfPayload, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end of payload: %w", err)
	}
	if _, err := a.file.Write(savedCentralDir); err != nil {
		return fmt.Errorf("write preserved central directory: %w", err)
	}
	if _, err := a.file.Write(centralRecordBytes); err != nil {
		return fmt.Errorf("write central directory record: %w", err)
	}

	eocd := savedEOCD
	eocd.TotalNumberOfEntriesOnThisDisk++
	eocd.TotalNumberOfEntries++
	eocd.CentralDirSize += uint32(len(centralRecordBytes))
	eocd.CentralDirOffset = uint32(endOfPayload)
	if _, err := a.file.Write(eocd.Encode()); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}

	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	a.eocd = eocd
	return nil
}

// rollback restores the archive to its pre-append image: the preserved
// central directory and trailer are rewritten at their original position and
// the file is truncated back to its original length.
func (a *Archive) rollback(centralDirOffset int64, savedCentralDir []byte, savedEOCD internal.EndOfCentralDirectory, originalSize int64, cause error) error {
	if _, err := a.file.Seek(centralDirOffset, io.SeekStart); err != nil {
		return fmt.Errorf("rollback seek: %w (after %w)", err, cause)
	}
	if _, err := a.file.Write(savedCentralDir); err != nil {
		return fmt.Errorf("rollback central directory: %w (after %w)", err, cause)
	}
	if _, err := a.file.Write(savedEOCD.Encode()); err != nil {
		return fmt.Errorf("rollback end of central directory: %w (after %w)", err, cause)
	}
	if err := a.file.Truncate(originalSize); err != nil {
		return fmt.Errorf("rollback truncate: %w (after %w)", err, cause)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("rollback flush: %w (after %w)", err, cause)
	}
	return cause
}

// patchLocalHeaderSizes rewrites the CRC and size fields of a provisional
// local header once the streamed values are known.
func (a *Archive) patchLocalHeaderSizes(offset int64, header internal.LocalFileHeader) error {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], header.CRC32)
	binary.LittleEndian.PutUint32(buf[4:8], header.CompressedSize)
	binary.LittleEndian.PutUint32(buf[8:12], header.UncompressedSize)

	// CRC32 sits 14 bytes into the local header.
	if _, err := a.file.WriteAt(buf[:], offset+14); err != nil {
		return fmt.Errorf("rewrite local header: %w", err)
	}
	return nil
}

// normalizeEntryPath converts an entry path to forward slashes, strips a
// leading slash, and enforces the trailing-slash convention for directories.
func normalizeEntryPath(entryPath string, entryType EntryType) string {
	name := strings.TrimPrefix(path.Clean(strings.ReplaceAll(entryPath, "\\", "/")), "/")
	if name == "." {
		return ""
	}
	if entryType == EntryTypeDirectory {
		name += "/"
	}
	return name
}

// encodeExternalFileAttributes packs a POSIX type and permission set into
// the upper 16 bits of the external file attributes field.
func encodeExternalFileAttributes(entryType EntryType, permissions fs.FileMode) uint32 {
	var typeMode uint32
	switch entryType {
	case EntryTypeDirectory:
		typeMode = sys.S_IFDIR
	case EntryTypeSymlink:
		typeMode = sys.S_IFLNK
	default:
		typeMode = sys.S_IFREG
	}
	return ((typeMode | uint32(permissions.Perm())) & 0xFFFF) << 16
}
