// Package metatest builds minimal media files with embedded metadata for tests.
package metatest

import (
	"bytes"
	"encoding/binary"
	"time"
)

const exifLayout = "2006:01:02 15:04:05"

// TIFF returns a big-endian TIFF structure holding Model in IFD0 and
// DateTimeOriginal in the Exif sub-IFD. Empty arguments omit the tag.
func TIFF(captured time.Time, model string) []byte {
	be := binary.BigEndian
	dateStr := ""
	if !captured.IsZero() {
		dateStr = captured.Format(exifLayout) + "\x00"
	}
	modelStr := ""
	if model != "" {
		modelStr = model + "\x00"
		// keep the value out of line so both parsers read it from the data area
		for len(modelStr) <= 4 {
			modelStr += "\x00"
		}
	}

	// Layout: header(8) | IFD0 | ExifIFD | data
	ifd0Entries := 1 // Exif pointer
	if modelStr != "" {
		ifd0Entries++
	}
	exifEntries := 0
	if dateStr != "" {
		exifEntries = 1
	}

	ifd0Off := uint32(8)
	exifOff := ifd0Off + 2 + 12*uint32(ifd0Entries) + 4
	dataOff := exifOff + 2 + 12*uint32(exifEntries) + 4
	dateOff := dataOff
	modelOff := dateOff + uint32(len(dateStr))

	var buf bytes.Buffer
	buf.WriteString("MM")
	binary.Write(&buf, be, uint16(42))
	binary.Write(&buf, be, ifd0Off)

	entry := func(tag, typ uint16, count, value uint32) {
		binary.Write(&buf, be, tag)
		binary.Write(&buf, be, typ)
		binary.Write(&buf, be, count)
		binary.Write(&buf, be, value)
	}

	binary.Write(&buf, be, uint16(ifd0Entries))
	if modelStr != "" {
		entry(0x0110, 2, uint32(len(modelStr)), modelOff)
	}
	entry(0x8769, 4, 1, exifOff)
	binary.Write(&buf, be, uint32(0))

	binary.Write(&buf, be, uint16(exifEntries))
	if dateStr != "" {
		entry(0x9003, 2, uint32(len(dateStr)), dateOff)
	}
	binary.Write(&buf, be, uint32(0))

	buf.WriteString(dateStr)
	buf.WriteString(modelStr)
	return buf.Bytes()
}

// JPEG wraps a TIFF block in an APP1 segment between SOI and EOI markers.
// payload is appended before EOI so distinct files get distinct bytes.
func JPEG(captured time.Time, model string, payload []byte) []byte {
	tiff := TIFF(captured, model)

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&buf, binary.BigEndian, uint16(2+6+len(tiff)))
	buf.WriteString("Exif\x00\x00")
	buf.Write(tiff)
	if len(payload) > 0 {
		// COM segment
		buf.Write([]byte{0xFF, 0xFE})
		binary.Write(&buf, binary.BigEndian, uint16(2+len(payload)))
		buf.Write(payload)
	}
	buf.Write([]byte{0xFF, 0xD9})
	return buf.Bytes()
}

// HEIC returns an ISO-BMFF-looking file whose EXIF block can only be found
// by scanning for the TIFF signature.
func HEIC(captured time.Time, model string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(24))
	buf.WriteString("ftypheic")
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteString("mif1heic")
	buf.WriteString("\x00\x00\x00\x06")
	buf.Write(TIFF(captured, model))
	return buf.Bytes()
}

// Seconds between 1904-01-01 and 1970-01-01
const quickTimeEpochOffset = 2082844800

// MP4 returns ftyp + moov/mvhd (version 0) with the given creation time.
// A zero time writes 0, which readers treat as unset.
func MP4(created time.Time) []byte {
	be := binary.BigEndian
	var ct uint32
	if !created.IsZero() {
		ct = uint32(created.Unix() + quickTimeEpochOffset)
	}

	var buf bytes.Buffer
	binary.Write(&buf, be, uint32(20))
	buf.WriteString("ftypisom")
	binary.Write(&buf, be, uint32(0x200))
	buf.WriteString("isom")

	binary.Write(&buf, be, uint32(8+108))
	buf.WriteString("moov")

	binary.Write(&buf, be, uint32(108))
	buf.WriteString("mvhd")
	// version 0, flags 0, then creation and modification times
	binary.Write(&buf, be, uint32(0))
	binary.Write(&buf, be, ct)
	binary.Write(&buf, be, ct)
	// timescale, duration, rate 1.0, volume 1.0, reserved
	binary.Write(&buf, be, uint32(1000))
	binary.Write(&buf, be, uint32(0))
	binary.Write(&buf, be, int32(0x00010000))
	binary.Write(&buf, be, int16(0x0100))
	binary.Write(&buf, be, int16(0))
	binary.Write(&buf, be, [2]uint32{})
	// unity matrix, pre_defined, next_track_ID
	binary.Write(&buf, be, [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000})
	binary.Write(&buf, be, [6]int32{})
	binary.Write(&buf, be, uint32(2))
	return buf.Bytes()
}
