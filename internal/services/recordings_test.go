package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRecordingExtension(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{"audio/webm;codecs=opus", ".webm"},
		{"audio/ogg", ".ogg"},
		{"audio/wav", ".wav"},
		{"audio/mp4", ".m4a"},
		{"audio/mpeg", ".mp3"},
		{"audio/flac", ".flac"},
		{"application/octet-stream", ".bin"},
	}
	for _, tc := range cases {
		if got := recordingExtension(tc.mime); got != tc.want {
			t.Fatalf("recordingExtension(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}

func TestRecordingKeyShape(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()
	key := recordingKey(userID, itemID, "audio/webm")

	if !strings.HasPrefix(key, "recordings/"+userID.String()+"/"+itemID.String()+"/") {
		t.Fatalf("key missing user/item prefix: %q", key)
	}
	if !strings.HasSuffix(key, ".webm") {
		t.Fatalf("key missing extension: %q", key)
	}
	// Each stored attempt gets a distinct object.
	if other := recordingKey(userID, itemID, "audio/webm"); other == key {
		t.Fatalf("recordingKey not unique per call")
	}
}
