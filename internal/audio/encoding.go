package audio

// Encoding is the audio encoding declared to the speech backend.
type Encoding string

const (
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingFLAC     Encoding = "FLAC"
	EncodingMP3      Encoding = "MP3"
	EncodingWebMOpus Encoding = "WEBM_OPUS"
)

// encodings maps format hints to backend encodings. Formats not listed here
// are declared as LINEAR16.
//
// m4a is declared as MP3. That is wrong for AAC payloads but matches what
// existing clients of this service were tuned against; do not change it
// without re-validating those uploads.
var encodings = map[Format]Encoding{
	WAV:  EncodingLinear16,
	FLAC: EncodingFLAC,
	MP3:  EncodingMP3,
	WebM: EncodingWebMOpus,
	M4A:  EncodingMP3,
}

// SelectEncoding returns the encoding to declare for audio hinted as f.
func SelectEncoding(f Format) Encoding {
	if enc, ok := encodings[f]; ok {
		return enc
	}
	return EncodingLinear16
}
