// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/flate"
)

var (
	// ErrCancelled is returned when an operation observes a cooperative
	// cancellation request between chunks of I/O.
	ErrCancelled = errors.New("zip: operation cancelled")

	// ErrFileNotFound is returned when the archive file does not exist.
	ErrFileNotFound = errors.New("zip: file not found")

	// ErrFileNotAccessible is returned when the archive file cannot be
	// opened with the permission the access mode requires, or when create
	// mode finds the path already occupied.
	ErrFileNotAccessible = errors.New("zip: file not accessible")

	// ErrInvalidFormat is returned when the end of central directory record
	// cannot be located, a record signature mismatches, or a record is
	// truncated.
	ErrInvalidFormat = errors.New("zip: not a valid zip file")

	// ErrInvalidCompressionMethod is returned when an entry's compression
	// method is neither store (0) nor deflate (8).
	ErrInvalidCompressionMethod = errors.New("zip: unsupported compression method")

	// ErrInvalidCentralDirectoryOffset is returned when a write would push
	// the start of the central directory past the 4 GiB boundary.
	ErrInvalidCentralDirectoryOffset = errors.New("zip: central directory offset exceeds 4 GiB")

	// ErrInsecurePath is returned when an entry path attempts directory
	// traversal out of the extraction root (Zip Slip).
	ErrInsecurePath = errors.New("zip: insecure file path")

	// ErrUnknown is the catch-all for failures that fit no other kind.
	ErrUnknown = errors.New("zip: unknown error")
)

// Errors surfaced from the DEFLATE engine, mirroring the zlib return codes
// Z_STREAM_ERROR, Z_DATA_ERROR, Z_MEM_ERROR, Z_BUF_ERROR and
// Z_VERSION_ERROR. With Go's flate only the stream and data kinds occur in
// practice; the remaining sentinels complete the closed set.
var (
	ErrDeflateStream  = errors.New("zip: deflate stream error")
	ErrDeflateData    = errors.New("zip: deflate data error")
	ErrDeflateMemory  = errors.New("zip: deflate memory error")
	ErrDeflateBuffer  = errors.New("zip: deflate buffer error")
	ErrDeflateVersion = errors.New("zip: deflate version error")
)

// mapFlateError translates an error from the flate layer into the closed
// sentinel set. Corrupt input maps to the data kind, everything else raised
// by the codec itself maps to the stream kind.
func mapFlateError(err error) error {
	if err == nil {
		return nil
	}

	var corrupt flate.CorruptInputError
	if errors.As(err, &corrupt) {
		return fmt.Errorf("%w: %v", ErrDeflateData, err)
	}
	var internal flate.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("%w: %v", ErrDeflateStream, err)
	}
	var read *flate.ReadError
	if errors.As(err, &read) {
		return fmt.Errorf("%w: %v", ErrDeflateStream, err)
	}
	var write *flate.WriteError
	if errors.As(err, &write) {
		return fmt.Errorf("%w: %v", ErrDeflateStream, err)
	}
	return err
}
