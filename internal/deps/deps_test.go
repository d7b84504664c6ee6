package deps

import (
	"os"
	"path/filepath"
	"testing"

	"reel/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: ""},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestForConfigCoversProbeAndStages(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("recognition", "/opt/whisper/run"))

	requirements := ForConfig(cfg)
	if len(requirements) == 0 || requirements[0].Name != "FFprobe" {
		t.Fatalf("expected ffprobe first, got %#v", requirements)
	}

	byName := make(map[string]Requirement, len(requirements))
	for _, req := range requirements {
		byName[req.Name] = req
	}
	ffmpeg, ok := byName["FFmpeg"]
	if !ok || ffmpeg.Optional {
		t.Fatalf("expected a required ffmpeg dependency, got %#v", ffmpeg)
	}
	if _, ok := byName["ingest"]; ok {
		t.Fatal("builtin stages must not appear as dependencies")
	}
	if _, ok := byName["fingerprint"]; ok {
		t.Fatal("builtin stages must not appear as dependencies")
	}

	recognition, ok := byName["recognition"]
	if !ok || recognition.Command != "/opt/whisper/run" {
		t.Fatalf("unexpected recognition requirement: %#v", recognition)
	}
	if recognition.Optional {
		t.Fatal("recognition is required by every workflow")
	}

	diarization, ok := byName["diarization"]
	if !ok || !diarization.Optional {
		t.Fatalf("expected diarization to be optional, got %#v", diarization)
	}
}
