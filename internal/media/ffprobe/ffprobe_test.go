package ffprobe

import (
	"math"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", Index: 1, Tags: map[string]string{"language": "eng"}},
			{CodecType: "audio", Index: 2},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
			BitRate:  "32000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.DurationMillis() != 123450 {
		t.Fatalf("unexpected duration millis: %d", result.DurationMillis())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
	audio := result.FirstAudioStream()
	if audio == nil || audio.Index != 1 {
		t.Fatalf("unexpected first audio stream: %#v", audio)
	}
	if audio.Language() != "eng" {
		t.Fatalf("unexpected stream language: %q", audio.Language())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.DurationMillis() != 0 {
		t.Fatalf("expected duration millis 0, got %d", result.DurationMillis())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestStreamLanguageVariants(t *testing.T) {
	cases := []struct {
		tags map[string]string
		want string
	}{
		{nil, ""},
		{map[string]string{"LANGUAGE": "ENG"}, "eng"},
		{map[string]string{"language_ietf": "en-US"}, "en-us"},
		{map[string]string{"language": "eng\x00"}, "eng"},
		{map[string]string{"language": "fr", "LANG": "en"}, "fr"},
	}
	for _, tc := range cases {
		s := Stream{Tags: tc.tags}
		if got := s.Language(); got != tc.want {
			t.Errorf("Language(%v) = %q, want %q", tc.tags, got, tc.want)
		}
	}
}
