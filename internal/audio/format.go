// Package audio holds the input model for uploaded audio, the format and
// encoding tables used to describe it, and the in-process PCM/WAV codecs
// that produce the canonical 16kHz mono 16-bit form.
package audio

import (
	"path/filepath"
	"strings"
)

// Asset is an uploaded audio payload. It is read-only once constructed.
type Asset struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Format is a container/codec guess derived from a filename or content type.
type Format string

const (
	MP3  Format = "mp3"
	WAV  Format = "wav"
	M4A  Format = "m4a"
	AAC  Format = "aac"
	OGG  Format = "ogg"
	FLAC Format = "flac"
	WebM Format = "webm"

	// DefaultFormat is used when nothing about the asset identifies it.
	DefaultFormat = MP3
)

// Formats lists every recognized format in extension-table order.
var Formats = []Format{MP3, WAV, M4A, AAC, OGG, FLAC, WebM}

// Ext returns the file extension for f, including the leading dot.
func (f Format) Ext() string { return "." + string(f) }

// Reason records which detection path produced a Format.
type Reason string

const (
	ReasonExtension    Reason = "extension"
	ReasonContentType  Reason = "content_type"
	ReasonFilenameMIME Reason = "filename_mime"
	ReasonUndetected   Reason = "undetected"
)

// Detection is the outcome of format sniffing.
type Detection struct {
	Format Format
	Reason Reason
}

// syntheticName stands in for a missing filename when deriving a MIME type.
const syntheticName = "audio.mp3"

// mimeTypes is the extension to MIME table used for filename-derived
// detection. It is fixed so results do not depend on the host's mime.types
// files.
var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/x-m4a",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".weba": "audio/webm",
}

// DetectFormat returns the format hint for data named filename. The bytes are
// never inspected; filename may be empty.
func DetectFormat(data []byte, filename string) Format {
	return Detect(Asset{Data: data, Filename: filename}).Format
}

// Detect sniffs the asset's format from its filename extension, its declared
// content type, and finally the MIME type implied by its filename, in that
// order. It always succeeds and falls back to DefaultFormat.
func Detect(a Asset) Detection {
	if a.Filename != "" {
		ext := strings.ToLower(filepath.Ext(a.Filename))
		for _, f := range Formats {
			if ext == f.Ext() {
				return Detection{Format: f, Reason: ReasonExtension}
			}
		}
	}

	if a.ContentType != "" {
		if f, ok := formatFromMIME(a.ContentType); ok {
			return Detection{Format: f, Reason: ReasonContentType}
		}
	}

	name := a.Filename
	if name == "" {
		name = syntheticName
	}
	if typ, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		if f, ok := formatFromMIME(typ); ok {
			return Detection{Format: f, Reason: ReasonFilenameMIME}
		}
	}

	return Detection{Format: DefaultFormat, Reason: ReasonUndetected}
}

// formatFromMIME maps a MIME type to a format by substring. "audio/mpeg" has
// no format substring and is intentionally left to the default.
func formatFromMIME(typ string) (Format, bool) {
	typ = strings.ToLower(typ)
	switch {
	case strings.Contains(typ, "mp3"):
		return MP3, true
	case strings.Contains(typ, "wav"):
		return WAV, true
	case strings.Contains(typ, "m4a"), strings.Contains(typ, "aac"):
		return M4A, true
	case strings.Contains(typ, "ogg"):
		return OGG, true
	case strings.Contains(typ, "flac"):
		return FLAC, true
	case strings.Contains(typ, "webm"):
		return WebM, true
	}
	return "", false
}
