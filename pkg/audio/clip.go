package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Clip is a finished audio recording in a container format (WebM, MP4, WAV, …)
// as captured by a client or assembled from a voice-channel stream. Unlike
// [AudioFrame], which carries raw PCM flowing through a live pipeline, a Clip
// is the unit handed to batch transcription.
type Clip struct {
	// Data is the encoded audio file content.
	Data []byte

	// Filename is the client-supplied name, used only to derive the container
	// format from its extension. May be empty for raw PCM clips.
	Filename string
}

// Empty reports whether the clip contains no audio data.
func (c Clip) Empty() bool { return len(c.Data) == 0 }

// Ext returns the lower-cased filename extension including the leading dot,
// or "" when the filename carries none.
func (c Clip) Ext() string {
	return strings.ToLower(filepath.Ext(c.Filename))
}

// uploadExts is the set of container formats accepted for transcription.
// Anything ffmpeg can demux would work, but the set is restricted to the
// formats browsers and mobile recorders actually produce.
var uploadExts = map[string]struct{}{
	".webm": {},
	".mp4":  {},
	".ogg":  {},
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
}

// ValidateUpload checks that the clip is non-empty and carries a supported
// container extension. It is called before any decode work is scheduled so
// that obviously bad uploads are rejected cheaply.
func ValidateUpload(c Clip) error {
	if c.Empty() {
		return fmt.Errorf("audio: empty clip %q", c.Filename)
	}
	ext := c.Ext()
	if _, ok := uploadExts[ext]; !ok {
		return fmt.Errorf("audio: unsupported format %q (allowed: %s)", ext, strings.Join(UploadExtensions(), " "))
	}
	return nil
}

// UploadExtensions returns the accepted upload extensions in a stable order,
// suitable for error messages and API documentation.
func UploadExtensions() []string {
	return []string{".webm", ".mp4", ".ogg", ".wav", ".mp3", ".m4a"}
}
