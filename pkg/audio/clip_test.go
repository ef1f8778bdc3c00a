package audio_test

import (
	"strings"
	"testing"

	"github.com/greenroomhq/greenroom/pkg/audio"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		clip    audio.Clip
		wantErr bool
		errHint string
	}{
		{"webm ok", audio.Clip{Data: []byte{1}, Filename: "answer.webm"}, false, ""},
		{"uppercase ext ok", audio.Clip{Data: []byte{1}, Filename: "ANSWER.WAV"}, false, ""},
		{"m4a ok", audio.Clip{Data: []byte{1}, Filename: "take2.m4a"}, false, ""},
		{"empty data", audio.Clip{Filename: "answer.webm"}, true, "empty"},
		{"no extension", audio.Clip{Data: []byte{1}, Filename: "answer"}, true, "unsupported"},
		{"exe rejected", audio.Clip{Data: []byte{1}, Filename: "evil.exe"}, true, "unsupported"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := audio.ValidateUpload(tc.clip)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ValidateUpload(%q) = nil, want error", tc.clip.Filename)
				}
				if !strings.Contains(err.Error(), tc.errHint) {
					t.Errorf("error %q does not mention %q", err, tc.errHint)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateUpload(%q) = %v, want nil", tc.clip.Filename, err)
			}
		})
	}
}

func TestClip_Ext(t *testing.T) {
	c := audio.Clip{Filename: "Recording.MP4"}
	if got := c.Ext(); got != ".mp4" {
		t.Errorf("Ext() = %q, want %q", got, ".mp4")
	}
	if got := (audio.Clip{}).Ext(); got != "" {
		t.Errorf("Ext() on empty filename = %q, want empty", got)
	}
}

func TestUploadExtensions_MatchesValidator(t *testing.T) {
	for _, ext := range audio.UploadExtensions() {
		clip := audio.Clip{Data: []byte{1}, Filename: "a" + ext}
		if err := audio.ValidateUpload(clip); err != nil {
			t.Errorf("extension %q listed but rejected: %v", ext, err)
		}
	}
}
