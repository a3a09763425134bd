package media

import (
	"sort"
	"strings"
)

// Format selects the metadata decoder route for an extension
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatTIFF    Format = "tiff" // includes DNG
	FormatPNG     Format = "png"
	FormatHEIF    Format = "heif"
	FormatMP4     Format = "mp4" // ISO base media: mp4, mov, m4v, 3gp
	FormatAVI     Format = "avi"
	FormatGeneric Format = "generic" // user-added extension, generic EXIF search
)

// IsVideo reports whether the format is a video container
func (f Format) IsVideo() bool {
	return f == FormatMP4 || f == FormatAVI
}

var builtinFormats = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".heic": FormatHEIF,
	".heif": FormatHEIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".dng":  FormatTIFF,
	".mp4":  FormatMP4,
	".mov":  FormatMP4,
	".m4v":  FormatMP4,
	".3gp":  FormatMP4,
	".avi":  FormatAVI,
}

// Registry maps extensions to formats. Built-in extensions are always
// present; extras route to FormatGeneric.
type Registry struct {
	formats map[string]Format
}

// NewRegistry creates a registry with the built-in extensions plus extra
func NewRegistry(extra ...string) *Registry {
	r := &Registry{formats: make(map[string]Format, len(builtinFormats)+len(extra))}
	for ext, f := range builtinFormats {
		r.formats[ext] = f
	}
	for _, ext := range extra {
		ext = NormalizeExt(ext)
		if ext == "" {
			continue
		}
		if _, ok := r.formats[ext]; !ok {
			r.formats[ext] = FormatGeneric
		}
	}
	return r
}

// Lookup returns the format for ext (case-insensitive, dot optional)
func (r *Registry) Lookup(ext string) (Format, bool) {
	f, ok := r.formats[NormalizeExt(ext)]
	return f, ok
}

// Supported reports whether files with ext have a decoder route
func (r *Registry) Supported(ext string) bool {
	_, ok := r.Lookup(ext)
	return ok
}

// Extensions lists every registered extension, sorted
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// NormalizeExt lower-cases ext and ensures a leading dot. Empty stays empty.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
