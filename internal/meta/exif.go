package meta

import (
	"errors"
	"io"
	"strings"
	"time"

	exifsearch "github.com/dsoprea/go-exif/v3"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

const exifTimeLayout = "2006:01:02 15:04:05"

func init() {
	exif.RegisterParsers(mknote.All...)
}

// readGoexif decodes JPEG APP1 or bare TIFF structures.
// DateTime() prefers DateTimeOriginal and falls back to DateTime.
func readGoexif(r io.ReadSeeker) (Metadata, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return Metadata{}, err
	}

	var md Metadata
	if tm, err := x.DateTime(); err == nil && !tm.IsZero() {
		md.CapturedAt = &tm
		md.Source = "exif:DateTime"
		if _, err := x.Get(exif.DateTimeOriginal); err == nil {
			md.Source = "exif:DateTimeOriginal"
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil {
			md.CameraModel = cleanTagString(val)
		}
	}
	return md, nil
}

// searchExif scans the stream for an embedded TIFF/EXIF block. This covers
// HEIC/HEIF and PNG eXIf chunks, where the EXIF payload sits inside a
// container goexif does not understand.
func searchExif(r io.ReadSeeker) (Metadata, error) {
	raw, err := exifsearch.SearchAndExtractExifWithReader(r)
	if err != nil {
		if errors.Is(err, exifsearch.ErrNoExif) {
			return Metadata{}, nil
		}
		return Metadata{}, err
	}

	entries, _, err := exifsearch.GetFlatExifData(raw, nil)
	if err != nil {
		return Metadata{}, err
	}

	var original, modified, model string
	for _, entry := range entries {
		switch entry.TagName {
		case "DateTimeOriginal":
			original = entryString(entry)
		case "DateTime":
			modified = entryString(entry)
		case "Model":
			model = entryString(entry)
		}
	}

	var md Metadata
	if ts := parseExifTime(original); ts != nil {
		md.CapturedAt, md.Source = ts, "exif:DateTimeOriginal"
	} else if ts := parseExifTime(modified); ts != nil {
		md.CapturedAt, md.Source = ts, "exif:DateTime"
	}
	md.CameraModel = cleanTagString(model)
	return md, nil
}

func entryString(entry exifsearch.ExifTag) string {
	if s, ok := entry.Value.(string); ok {
		return s
	}
	return entry.Formatted
}

// parseExifTime parses an EXIF timestamp as local wall-clock time.
// Blank and all-zero placeholders yield nil.
func parseExifTime(s string) *time.Time {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" || s == "0000:00:00 00:00:00" {
		return nil
	}
	ts, err := time.ParseInLocation(exifTimeLayout, s, time.Local)
	if err != nil {
		return nil
	}
	return &ts
}
