// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm of an archive entry.
type CompressionMethod uint16

// The two canonical methods this library reads and writes.
const (
	Store   CompressionMethod = 0 // No compression - payload stored as-is
	Deflate CompressionMethod = 8 // DEFLATE compression (RFC 1951)
)

// Compression levels for the DEFLATE algorithm.
const (
	DeflateNormal    = 6 // Default level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

func (m CompressionMethod) isSupported() bool {
	return m == Store || m == Deflate
}

// streamStats collects the bookkeeping of one payload stream: bytes consumed
// from the source, bytes landed in the archive, and the CRC32 of the
// uncompressed data.
type streamStats struct {
	uncompressedSize int64
	compressedSize   int64
	crc32            uint32
}

// writePayload streams src into dst chunk by chunk, accumulating the CRC32
// over the uncompressed bytes and honouring cancellation between chunks.
// For Deflate the chunks pass through a flate writer at the given level; for
// Store they are copied unchanged.
func writePayload(ctx context.Context, dst io.Writer, src io.Reader, method CompressionMethod, level, chunkSize int, progress *Progress) (streamStats, error) {
	counter := &byteCountWriter{dest: dst}
	hasher := crc32.NewIEEE()

	var sink io.Writer = counter
	var fw *flate.Writer
	if method == Deflate {
		var err error
		if fw, err = flate.NewWriter(counter, level); err != nil {
			return streamStats{}, mapFlateError(err)
		}
		sink = fw
	}

	var uncompressed int64
	buf := make([]byte, chunkSize)
	for {
		if err := checkCancel(ctx, progress); err != nil {
			return streamStats{}, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, err := sink.Write(buf[:n]); err != nil {
				return streamStats{}, mapFlateError(err)
			}
			uncompressed += int64(n)
			progress.add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return streamStats{}, fmt.Errorf("read source: %w", readErr)
		}
	}

	if fw != nil {
		if err := fw.Close(); err != nil {
			return streamStats{}, mapFlateError(err)
		}
	}

	return streamStats{
		uncompressedSize: uncompressed,
		compressedSize:   counter.bytesWritten,
		crc32:            hasher.Sum32(),
	}, nil
}

// readPayload streams the decompressed content of src into dst chunk by
// chunk, returning the CRC32 of the bytes delivered. Cancellation is polled
// between chunks.
func readPayload(ctx context.Context, dst io.Writer, src io.Reader, method CompressionMethod, chunkSize int, progress *Progress) (uint32, error) {
	if !method.isSupported() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCompressionMethod, method)
	}

	var r io.Reader = src
	if method == Deflate {
		fr := flate.NewReader(src)
		defer fr.Close()
		r = fr
	}

	hasher := crc32.NewIEEE()
	buf := make([]byte, chunkSize)
	for {
		if err := checkCancel(ctx, progress); err != nil {
			return 0, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, err := dst.Write(buf[:n]); err != nil {
				return 0, fmt.Errorf("write output: %w", err)
			}
			progress.add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, mapFlateError(readErr)
		}
	}

	return hasher.Sum32(), nil
}

// checkCancel reports ErrCancelled when either the context or the progress
// cancel flag requests an abort.
func checkCancel(ctx context.Context, progress *Progress) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if progress.IsCancelled() {
		return ErrCancelled
	}
	return nil
}
