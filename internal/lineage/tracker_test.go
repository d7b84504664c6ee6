package lineage_test

import (
	"os"
	"path/filepath"
	"testing"

	"reel/internal/lineage"
	"reel/internal/registry"
	"reel/internal/testsupport"
)

func mustLookup(t *testing.T, name string) registry.Definition {
	t.Helper()
	def, ok := registry.Lookup(name)
	if !ok {
		t.Fatalf("unknown stage %s", name)
	}
	return def
}

func TestBeginAndFinalizeWritesRecord(t *testing.T) {
	root := t.TempDir()
	tracker := lineage.NewTracker(root)
	def := mustLookup(t, "recognition")

	handle, err := tracker.Begin("job-1", def)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	output := filepath.Join(handle.Dir(), "transcript.json")
	testsupport.WriteFileContent(t, output, []byte(`{"segments":[]}`))

	handle.RecordInput("audio-extract", lineage.ArtifactRecord{
		Name:     "audio",
		Type:     "audio",
		Path:     "/work/audio.wav",
		Bytes:    2048,
		Checksum: "abc123",
	}, false)
	handle.RecordConfig(1, "cfg-hash", filepath.Join(handle.Dir(), "snapshot.json"))
	handle.RecordIntermediate(filepath.Join(handle.Dir(), "snapshot.json"), "config snapshot")
	handle.AddWarning("low confidence segment at 00:12")
	if err := handle.RecordOutput("transcript", "transcript", output); err != nil {
		t.Fatalf("RecordOutput failed: %v", err)
	}

	if err := handle.Finalize(lineage.StatusCompleted, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	record, err := tracker.Load(def)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected persisted record")
	}
	if record.JobID != "job-1" || record.Stage != "recognition" {
		t.Fatalf("unexpected record header: %#v", record)
	}
	if !record.Succeeded() {
		t.Fatalf("expected completed status, got %s", record.Status)
	}
	if len(record.Inputs) != 1 || record.Inputs[0].Stage != "audio-extract" {
		t.Fatalf("unexpected inputs: %#v", record.Inputs)
	}
	in := record.Inputs[0]
	if in.Type != "audio" || in.Bytes != 2048 || in.Checksum != "abc123" {
		t.Fatalf("expected input to carry the producer's artifact identity, got %#v", in)
	}
	if record.Config == nil || record.Config.Hash != "cfg-hash" || record.Config.SchemaVersion != 1 {
		t.Fatalf("expected pinned config snapshot, got %#v", record.Config)
	}
	if len(record.Intermediates) != 1 || record.Intermediates[0].Reason != "config snapshot" {
		t.Fatalf("expected intermediate with retention reason, got %#v", record.Intermediates)
	}
	out := record.Output("transcript")
	if out == nil {
		t.Fatal("expected transcript output")
	}
	if out.Checksum == "" || out.Bytes == 0 {
		t.Fatalf("expected hashed output, got %#v", out)
	}
	if len(record.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", record.Warnings)
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	tracker := lineage.NewTracker(t.TempDir())
	def := mustLookup(t, "ingest")

	handle, err := tracker.Begin("job-1", def)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := handle.Finalize(lineage.StatusCompleted, ""); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	if err := handle.Finalize(lineage.StatusCompleted, ""); err == nil {
		t.Fatal("expected second Finalize to fail")
	}
}

func TestBeginTwiceWithoutFinalizeFails(t *testing.T) {
	tracker := lineage.NewTracker(t.TempDir())
	def := mustLookup(t, "ingest")

	if _, err := tracker.Begin("job-1", def); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tracker.Begin("job-1", def); err == nil {
		t.Fatal("expected second Begin to fail while handle open")
	}
	open := tracker.OpenHandles()
	if len(open) != 1 || open[0] != "ingest" {
		t.Fatalf("unexpected open handles: %v", open)
	}
}

func TestRecordOutputRequiresFile(t *testing.T) {
	tracker := lineage.NewTracker(t.TempDir())
	def := mustLookup(t, "ingest")

	handle, err := tracker.Begin("job-1", def)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := handle.RecordOutput("source", "media", filepath.Join(handle.Dir(), "missing.mkv")); err == nil {
		t.Fatal("expected error for missing output file")
	}
}

func TestFindProducerReturnsLatest(t *testing.T) {
	root := t.TempDir()
	tracker := lineage.NewTracker(root)
	defs, err := registry.ForWorkflow("transcribe")
	if err != nil {
		t.Fatalf("ForWorkflow failed: %v", err)
	}

	writeStage := func(stage, artifact, file string) {
		def := mustLookup(t, stage)
		handle, err := tracker.Begin("job-1", def)
		if err != nil {
			t.Fatalf("Begin %s: %v", stage, err)
		}
		path := filepath.Join(handle.Dir(), file)
		testsupport.WriteFileContent(t, path, []byte("payload"))
		if err := handle.RecordOutput(artifact, "file", path); err != nil {
			t.Fatalf("RecordOutput %s: %v", stage, err)
		}
		if err := handle.Finalize(lineage.StatusCompleted, ""); err != nil {
			t.Fatalf("Finalize %s: %v", stage, err)
		}
	}

	writeStage("ingest", "source", "source.mkv")
	writeStage("audio-extract", "audio", "audio.wav")

	record, artifact, err := tracker.FindProducer(defs, "audio")
	if err != nil {
		t.Fatalf("FindProducer failed: %v", err)
	}
	if record == nil || record.Stage != "audio-extract" {
		t.Fatalf("expected audio-extract producer, got %#v", record)
	}
	if artifact == nil || artifact.Name != "audio" {
		t.Fatalf("unexpected artifact: %#v", artifact)
	}

	record, artifact, err = tracker.FindProducer(defs, "nonexistent")
	if err != nil {
		t.Fatalf("FindProducer failed: %v", err)
	}
	if record != nil || artifact != nil {
		t.Fatal("expected no producer for unknown artifact")
	}
}

func TestFailedStageNotUsedAsProducer(t *testing.T) {
	tracker := lineage.NewTracker(t.TempDir())
	def := mustLookup(t, "audio-extract")

	handle, err := tracker.Begin("job-1", def)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	path := filepath.Join(handle.Dir(), "audio.wav")
	testsupport.WriteFileContent(t, path, []byte("partial"))
	if err := handle.RecordOutput("audio", "file", path); err != nil {
		t.Fatalf("RecordOutput failed: %v", err)
	}
	if err := handle.Finalize(lineage.StatusFailed, "tool crashed"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	out, err := tracker.ResolveOutput(def, "audio")
	if err != nil {
		t.Fatalf("ResolveOutput failed: %v", err)
	}
	if out != nil {
		t.Fatal("expected failed stage output to be ignored")
	}
}

func TestWarningsAggregation(t *testing.T) {
	tracker := lineage.NewTracker(t.TempDir())
	defs, err := registry.ForWorkflow("transcribe")
	if err != nil {
		t.Fatalf("ForWorkflow failed: %v", err)
	}

	def := mustLookup(t, "ingest")
	handle, err := tracker.Begin("job-1", def)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	handle.AddWarning("container has no chapters")
	if err := handle.Finalize(lineage.StatusCompleted, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	warnings, err := tracker.Warnings(defs)
	if err != nil {
		t.Fatalf("Warnings failed: %v", err)
	}
	if len(warnings) != 1 || warnings[0] != "ingest: container has no chapters" {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	// Ensure missing record.json for other stages is tolerated.
	if _, err := os.Stat(tracker.RecordPath(mustLookup(t, "publish"))); !os.IsNotExist(err) {
		t.Fatalf("expected no publish record, err=%v", err)
	}
}
