package meta

import (
	"strings"
	"unicode"

	"github.com/franz/toki/internal/media"
	"golang.org/x/text/unicode/norm"
)

const nameTimeLayout = "20060102_150405"

// CanonicalName synthesizes YYYYMMDD_HHMMSS_<A|C>_<Camera>_<hash8>.<ext>
// for a record whose extraction and hashing are complete. Coarse records
// are dated by their modification time.
func CanonicalName(r *media.Record) string {
	var b strings.Builder
	b.WriteString(r.Timestamp().Format(nameTimeLayout))
	b.WriteByte('_')
	b.WriteString(r.Confidence.Code())
	b.WriteByte('_')
	b.WriteString(SanitizeCameraModel(r.CameraModel))
	b.WriteByte('_')
	b.WriteString(r.ContentHash)
	b.WriteString(r.Extension)
	return b.String()
}

// SanitizeCameraModel makes a camera model safe for a filename component:
// whitespace runs become "_", anything other than letters, digits, "-"
// and "_" is dropped. Empty results become "Unknown".
func SanitizeCameraModel(model string) string {
	model = norm.NFC.String(model)
	model = strings.Join(strings.Fields(model), "_")

	model = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, model)

	for strings.Contains(model, "__") {
		model = strings.ReplaceAll(model, "__", "_")
	}
	model = strings.Trim(model, "_")

	if model == "" {
		return media.UnknownCamera
	}
	return model
}
