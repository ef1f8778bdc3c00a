package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// TranscribeSampleRate is the sample rate expected by the transcription
// backends. All uploaded clips are decoded to this rate before inference.
const TranscribeSampleRate = 16000

// Transcoder decodes container-format audio clips into raw PCM using the
// ffmpeg binary. The zero value is not usable; construct with NewTranscoder.
//
// Transcoder is safe for concurrent use: each Decode invocation runs its own
// ffmpeg process.
type Transcoder struct {
	binary string
}

// NewTranscoder locates the ffmpeg binary on PATH and returns a Transcoder
// bound to it. Returns an error if ffmpeg is not installed, so that the
// missing dependency is reported at startup rather than on the first upload.
func NewTranscoder() (*Transcoder, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg not found on PATH: %w", err)
	}
	return &Transcoder{binary: path}, nil
}

// Binary returns the resolved path of the ffmpeg executable.
func (t *Transcoder) Binary() string { return t.binary }

// DecodePCM decodes the clip to 16 kHz mono 16-bit little-endian PCM.
//
// The clip is written to a temporary file first because several browser
// container formats (notably MP4 with a trailing moov atom) cannot be demuxed
// from a pipe. The decoded PCM is streamed back over stdout. The ffmpeg
// process is killed when ctx is cancelled.
func (t *Transcoder) DecodePCM(ctx context.Context, clip Clip) ([]byte, error) {
	if clip.Empty() {
		return nil, fmt.Errorf("audio: decode of empty clip")
	}

	tmp, err := os.CreateTemp("", "greenroom-clip-*"+clip.Ext())
	if err != nil {
		return nil, fmt.Errorf("audio: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(clip.Data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("audio: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("audio: close temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.binary,
		"-hide_banner", "-loglevel", "error",
		"-i", tmp.Name(),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(TranscribeSampleRate),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("audio: ffmpeg cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("audio: ffmpeg decode %q: %w: %s", clip.Filename, err, firstLine(stderr.Bytes()))
	}

	return stdout.Bytes(), nil
}

// firstLine returns the first line of ffmpeg's stderr, which is where it
// reports the actionable demux/decode error.
func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
