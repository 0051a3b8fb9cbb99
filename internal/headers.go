// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal implements the binary record codec for the four ZIP
// structures this library works with: local file headers, data descriptors,
// central directory entries and the end of central directory record.
// All multi-byte integers on disk are little-endian.
package internal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Each record type is identified by a header signature. Signature values
// begin with the two byte constant marker of 0x4b50, representing the
// characters "PK".
const (
	CentralDirectorySignature uint32 = 0x02014b50
	LocalFileHeaderSignature  uint32 = 0x04034b50
	DataDescriptorSignature   uint32 = 0x08074b50
	EndOfCentralDirSignature  uint32 = 0x06054b50
)

// Fixed record sizes, signature included, variable tails excluded.
const (
	LocalFileHeaderFixedSize  = 30
	CentralDirectoryFixedSize = 46
	EndOfCentralDirFixedSize  = 22
	DataDescriptorBareSize    = 12
)

// ErrSignature is returned when a record does not start with its expected
// signature.
var ErrSignature = errors.New("header signature mismatch")

// LocalFileHeader is the 30-byte record preceding every entry payload,
// followed by the filename and extra field tails.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

// ReadLocalFileHeader decodes a local file header, its signature included,
// and reads the filename and extra field tails fully.
func ReadLocalFileHeader(src io.Reader) (LocalFileHeader, error) {
	var buf [LocalFileHeaderFixedSize]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read local file header: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != LocalFileHeaderSignature {
		return LocalFileHeader{}, fmt.Errorf("%w: got %#08x, want local file header", ErrSignature, sig)
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}

	if h.FilenameLength > 0 {
		filename := make([]byte, h.FilenameLength)
		if _, err := io.ReadFull(src, filename); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read filename: %w", err)
		}
		h.Filename = string(filename)
	}
	if h.ExtraFieldLength > 0 {
		h.ExtraField = make([]byte, h.ExtraFieldLength)
		if _, err := io.ReadFull(src, h.ExtraField); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read extra field: %w", err)
		}
	}

	return h, nil
}

// Encode returns the exact on-disk image of the header: the fixed 30-byte
// prefix followed by the filename and extra field tails.
func (h LocalFileHeader) Encode() []byte {
	buf := make([]byte, h.TotalSize())

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[LocalFileHeaderFixedSize:], h.Filename)
	copy(buf[LocalFileHeaderFixedSize+int(h.FilenameLength):], h.ExtraField)

	return buf
}

// TotalSize returns the on-disk length of the header including tails.
func (h LocalFileHeader) TotalSize() int64 {
	return LocalFileHeaderFixedSize + int64(h.FilenameLength) + int64(h.ExtraFieldLength)
}

// DataDescriptor trails an entry payload when bit 3 of the general purpose
// flag is set; CRC and sizes then live here instead of in the local header.
// The record exists in two forms: 12 bytes bare, or 16 bytes with a leading
// signature. Both are accepted on read; the signature presence is preserved
// so the record re-encodes byte-identically.
type DataDescriptor struct {
	HasSignature     bool
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// ReadDataDescriptor decodes a data descriptor, detecting the optional
// signature prefix by inspecting the first four bytes.
func ReadDataDescriptor(src io.Reader) (DataDescriptor, error) {
	var buf [16]byte
	if _, err := io.ReadFull(src, buf[:DataDescriptorBareSize]); err != nil {
		return DataDescriptor{}, fmt.Errorf("read data descriptor: %w", err)
	}

	var d DataDescriptor
	fields := buf[:DataDescriptorBareSize]
	if binary.LittleEndian.Uint32(buf[0:4]) == DataDescriptorSignature {
		d.HasSignature = true
		if _, err := io.ReadFull(src, buf[DataDescriptorBareSize:]); err != nil {
			return DataDescriptor{}, fmt.Errorf("read data descriptor: %w", err)
		}
		fields = buf[4:]
	}

	d.CRC32 = binary.LittleEndian.Uint32(fields[0:4])
	d.CompressedSize = binary.LittleEndian.Uint32(fields[4:8])
	d.UncompressedSize = binary.LittleEndian.Uint32(fields[8:12])
	return d, nil
}

// Encode returns the on-disk image of the descriptor in whichever of the two
// forms it was read as.
func (d DataDescriptor) Encode() []byte {
	buf := make([]byte, d.TotalSize())
	fields := buf
	if d.HasSignature {
		binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
		fields = buf[4:]
	}
	binary.LittleEndian.PutUint32(fields[0:4], d.CRC32)
	binary.LittleEndian.PutUint32(fields[4:8], d.CompressedSize)
	binary.LittleEndian.PutUint32(fields[8:12], d.UncompressedSize)
	return buf
}

// TotalSize returns the on-disk length of the descriptor: 12 or 16 bytes.
func (d DataDescriptor) TotalSize() int64 {
	if d.HasSignature {
		return DataDescriptorBareSize + 4
	}
	return DataDescriptorBareSize
}

// CentralDirectory is one 46-byte central directory entry followed by the
// filename, extra field and file comment tails. The extra field is kept as
// raw bytes so a decoded record re-encodes byte-identically; archive
// rewrites depend on that round-trip.
type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
	Comment                string
}

// ReadCentralDirEntry decodes one central directory entry, its signature
// included, and reads the three variable tails fully.
func ReadCentralDirEntry(src io.Reader) (CentralDirectory, error) {
	var buf [CentralDirectoryFixedSize]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, fmt.Errorf("read central directory entry: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != CentralDirectorySignature {
		return CentralDirectory{}, fmt.Errorf("%w: got %#08x, want central directory", ErrSignature, sig)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[30:32]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[42:46]),
	}

	if entry.FilenameLength > 0 {
		filename := make([]byte, entry.FilenameLength)
		if _, err := io.ReadFull(src, filename); err != nil {
			return CentralDirectory{}, fmt.Errorf("read filename: %w", err)
		}
		entry.Filename = string(filename)
	}
	if entry.ExtraFieldLength > 0 {
		entry.ExtraField = make([]byte, entry.ExtraFieldLength)
		if _, err := io.ReadFull(src, entry.ExtraField); err != nil {
			return CentralDirectory{}, fmt.Errorf("read extra field: %w", err)
		}
	}
	if entry.FileCommentLength > 0 {
		comment := make([]byte, entry.FileCommentLength)
		if _, err := io.ReadFull(src, comment); err != nil {
			return CentralDirectory{}, fmt.Errorf("read comment: %w", err)
		}
		entry.Comment = string(comment)
	}

	return entry, nil
}

// Encode returns the exact on-disk image of the entry: the fixed 46-byte
// prefix then the filename, extra field and comment tails in that order.
func (d CentralDirectory) Encode() []byte {
	buf := make([]byte, d.TotalSize())

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], d.FilenameLength)
	binary.LittleEndian.PutUint16(buf[30:32], d.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], d.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryFixedSize
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], d.ExtraField)
	copy(buf[offset:], d.Comment)

	return buf
}

// TotalSize returns the on-disk length of the entry including tails.
func (d CentralDirectory) TotalSize() int64 {
	return CentralDirectoryFixedSize + int64(d.FilenameLength) + int64(d.ExtraFieldLength) + int64(d.FileCommentLength)
}

// EndOfCentralDirectory is the 22-byte trailer anchoring archive parsing,
// plus an optional trailing comment of up to 65535 bytes.
type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

// ReadEndOfCentralDir decodes the end of central directory record, its
// signature included, and reads the comment tail fully.
func ReadEndOfCentralDir(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [EndOfCentralDirFixedSize]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read end of central directory: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != EndOfCentralDirSignature {
		return EndOfCentralDirectory{}, fmt.Errorf("%w: got %#08x, want end of central directory", ErrSignature, sig)
	}

	end := EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[4:6]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[6:8]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[8:10]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[20:22]),
	}
	if end.CommentLength > 0 {
		commentBuf := make([]byte, end.CommentLength)
		if _, err := io.ReadFull(src, commentBuf); err != nil {
			return EndOfCentralDirectory{}, fmt.Errorf("read comment: %w", err)
		}
		end.Comment = string(commentBuf)
	}

	return end, nil
}

// Encode returns the on-disk image of the record including the comment tail.
// The comment is truncated to the uint16 maximum.
func (e EndOfCentralDirectory) Encode() []byte {
	commentLen := min(len(e.Comment), math.MaxUint16)
	buf := make([]byte, EndOfCentralDirFixedSize+commentLen)

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], e.ThisDiskNum)
	binary.LittleEndian.PutUint16(buf[6:8], e.DiskNumWithTheStartOfCentralDir)
	binary.LittleEndian.PutUint16(buf[8:10], e.TotalNumberOfEntriesOnThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.TotalNumberOfEntries)
	binary.LittleEndian.PutUint32(buf[12:16], e.CentralDirSize)
	binary.LittleEndian.PutUint32(buf[16:20], e.CentralDirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))

	copy(buf[EndOfCentralDirFixedSize:], e.Comment[:commentLen])

	return buf
}

// TotalSize returns the on-disk length of the record including the comment.
func (e EndOfCentralDirectory) TotalSize() int64 {
	return EndOfCentralDirFixedSize + int64(min(len(e.Comment), math.MaxUint16))
}
