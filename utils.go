// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"io"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// byteCountWriter counts bytes written to a writer.
type byteCountWriter struct {
	dest         io.Writer
	bytesWritten int64
}

func (w *byteCountWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

// Time conversion functions.
//
// MS-DOS timestamps pack the date as day | month<<5 | (year-1980)<<9 and the
// time as sec/2 | min<<5 | hour<<11, giving 2-second resolution and a year
// range starting at 1980.

func timeToMSDOS(t time.Time) (dosDate uint16, dosTime uint16) {
	t = t.UTC()
	year := min(max(t.Year(), 1980), 2099) - 1980
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | month<<5 | day
	dosTime = hour<<11 | minute<<5 | second/2
	return dosDate, dosTime
}

func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// decodeFilename decodes raw filename bytes from a ZIP header. Bit 11 of the
// general purpose flag marks UTF-8; everything else is IBM Code Page 437,
// the historical "dos Latin US" default. An undecodable name yields "".
func decodeFilename(raw string, generalPurposeBitFlag uint16) string {
	if generalPurposeBitFlag&utf8Flag != 0 {
		if !utf8.ValidString(raw) {
			return ""
		}
		return raw
	}

	decoded, err := charmap.CodePage437.NewDecoder().String(raw)
	if err != nil {
		return ""
	}
	return decoded
}
