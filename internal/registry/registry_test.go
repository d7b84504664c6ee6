package registry

import (
	"errors"
	"strings"
	"testing"

	"reel/internal/config"
	"reel/internal/services"
)

func TestForWorkflowOrdering(t *testing.T) {
	for _, workflow := range Workflows() {
		defs, err := ForWorkflow(string(workflow))
		if err != nil {
			t.Fatalf("ForWorkflow(%s): %v", workflow, err)
		}
		for i := 1; i < len(defs); i++ {
			if defs[i].Ordinal <= defs[i-1].Ordinal {
				t.Fatalf("%s: stages out of order: %s(%d) after %s(%d)",
					workflow, defs[i].Name, defs[i].Ordinal, defs[i-1].Name, defs[i-1].Ordinal)
			}
		}
	}
}

func TestForWorkflowUnknownIsConfigurationError(t *testing.T) {
	_, err := ForWorkflow("remaster")
	if err == nil {
		t.Fatal("expected error for unknown workflow")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranscribeStageSubset(t *testing.T) {
	defs, err := ForWorkflow("transcribe")
	if err != nil {
		t.Fatalf("ForWorkflow: %v", err)
	}
	wantNames := []string{"ingest", "fingerprint", "audio-extract", "recognition", "publish"}
	if len(defs) != len(wantNames) {
		names := make([]string, 0, len(defs))
		for _, d := range defs {
			names = append(names, d.Name)
		}
		t.Fatalf("transcribe stages = %v, want %v", names, wantNames)
	}
	for i, d := range defs {
		if d.Name != wantNames[i] {
			t.Fatalf("stage %d = %s, want %s", i, d.Name, wantNames[i])
		}
	}
	if total := len(All()); total != 12 {
		t.Fatalf("registered stage count = %d, want 12", total)
	}
}

func TestOrdinalGapsAllowInsertion(t *testing.T) {
	for _, def := range All() {
		if def.Ordinal%10 != 0 {
			t.Fatalf("stage %s ordinal %d breaks the gap convention", def.Name, def.Ordinal)
		}
	}
}

func TestRequiredFor(t *testing.T) {
	diarization, ok := Lookup("diarization")
	if !ok {
		t.Fatal("diarization not registered")
	}
	if diarization.RequiredFor(WorkflowSubtitle) {
		t.Fatal("diarization should be optional in subtitle workflow")
	}
	if diarization.RequiredFor(WorkflowTranscribe) {
		t.Fatal("diarization does not apply to transcribe")
	}

	recognition, ok := Lookup("recognition")
	if !ok {
		t.Fatal("recognition not registered")
	}
	for _, w := range Workflows() {
		if !recognition.RequiredFor(w) {
			t.Fatalf("recognition should be required for %s", w)
		}
	}
}

func TestDependenciesRegistered(t *testing.T) {
	for _, def := range All() {
		for _, dep := range def.DependsOn {
			if _, ok := Lookup(dep); !ok {
				t.Fatalf("stage %s depends on unregistered stage %s", def.Name, dep)
			}
		}
		for _, ref := range def.Inputs {
			producer, ok := Lookup(ref.Stage)
			if !ok {
				t.Fatalf("stage %s input references unregistered stage %s", def.Name, ref.Stage)
			}
			if _, ok := producer.Output(ref.Artifact); !ok {
				t.Fatalf("stage %s input references undeclared artifact %s/%s", def.Name, ref.Stage, ref.Artifact)
			}
			if producer.Ordinal >= def.Ordinal {
				t.Fatalf("stage %s consumes from later stage %s", def.Name, ref.Stage)
			}
		}
	}
}

func TestValidateStageOptionsMissingRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Stages = map[string]config.Stage{
		"recognition": {SchemaVersion: 1, Options: map[string]any{"language": "en"}},
	}
	_, err := ValidateStageOptions(&cfg, WorkflowTranscribe)
	if err == nil {
		t.Fatal("expected error for missing model option")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateStageOptionsUnknownWarns(t *testing.T) {
	cfg := config.Default()
	cfg.Stages = map[string]config.Stage{
		"recognition": {SchemaVersion: 1, Options: map[string]any{"model": "large-v3", "temperature": 0.2}},
	}
	warnings, err := ValidateStageOptions(&cfg, WorkflowTranscribe)
	if err != nil {
		t.Fatalf("ValidateStageOptions: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "temperature") {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateStageOptionsSchemaMismatch(t *testing.T) {
	cfg := config.Default()
	cfg.Stages = map[string]config.Stage{
		"recognition": {SchemaVersion: 99, Options: map[string]any{"model": "large-v3"}},
	}
	_, err := ValidateStageOptions(&cfg, WorkflowTranscribe)
	if err == nil {
		t.Fatal("expected schema version mismatch error")
	}
}
