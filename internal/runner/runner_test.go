package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"reel/internal/cache"
	"reel/internal/config"
	"reel/internal/lineage"
	"reel/internal/logging"
	"reel/internal/registry"
	"reel/internal/services"
	"reel/internal/testsupport"
)

func mustLookup(t *testing.T, name string) registry.Definition {
	t.Helper()
	def, ok := registry.Lookup(name)
	if !ok {
		t.Fatalf("unknown stage %q", name)
	}
	return def
}

// overrideCommand reroutes stage invocations to a shell snippet. The snippet
// receives the resolved output directory as $1.
func overrideCommand(t *testing.T, script string) *[][]string {
	t.Helper()
	var mu sync.Mutex
	var captured [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mu.Lock()
		captured = append(captured, append([]string(nil), args...))
		mu.Unlock()
		outDir := argValue(args, "--output-dir")
		return exec.CommandContext(ctx, "/bin/sh", "-c", script, "stage", outDir)
	}
	t.Cleanup(func() { commandContext = original })
	return &captured
}

// stageInvocations counts captured invocations whose output directory
// belongs to the named stage.
func stageInvocations(captured *[][]string, stage string) int {
	count := 0
	for _, args := range *captured {
		if strings.Contains(argValue(args, "--output-dir"), stage) {
			count++
		}
	}
	return count
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newJobContext(t *testing.T, cfg *config.Config, mediaPath string) JobContext {
	t.Helper()
	root := filepath.Join(cfg.Paths.WorkDir, "jobs", "test-job")
	return JobContext{
		JobID:         "test-job",
		Workflow:      registry.WorkflowTranscribe,
		MediaPath:     mediaPath,
		MediaIdentity: "deadbeef00",
		Tracker:       lineage.NewTracker(root),
	}
}

// runPrefix executes the transcribe prefix up to and including audio-extract
// so later stages have inputs to resolve.
func runPrefix(t *testing.T, r *Runner, jc JobContext) {
	t.Helper()
	for _, name := range []string{"ingest", "fingerprint", "audio-extract"} {
		if _, err := r.Run(context.Background(), mustLookup(t, name), jc); err != nil {
			t.Fatalf("prefix stage %s failed: %v", name, err)
		}
	}
}

func TestRunIngestRecordsSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)

	r := New(cfg, nil, logging.NewNop())
	result, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != lineage.StatusCompleted {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Name != "source" || result.Outputs[0].Path != media {
		t.Fatalf("unexpected outputs: %#v", result.Outputs)
	}
	record, err := jc.Tracker.Load(mustLookup(t, "ingest"))
	if err != nil || record == nil || !record.Succeeded() {
		t.Fatalf("expected completed record, got %#v err=%v", record, err)
	}
}

func TestRunIngestMissingMediaIsInputNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jc := newJobContext(t, cfg, filepath.Join(t.TempDir(), "absent.mkv"))

	r := New(cfg, nil, logging.NewNop())
	result, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc)
	if !errors.Is(err, services.ErrInputNotFound) {
		t.Fatalf("expected input-not-found, got %v", err)
	}
	if result.Status != lineage.StatusFailed {
		t.Fatalf("unexpected status %q", result.Status)
	}
	record, err := jc.Tracker.Load(mustLookup(t, "ingest"))
	if err != nil || record == nil || record.Status != lineage.StatusFailed {
		t.Fatalf("expected failed record, got %#v err=%v", record, err)
	}
}

func TestRunFingerprintWritesIdentity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	result, err := r.Run(context.Background(), mustLookup(t, "fingerprint"), jc)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Name != "identity" {
		t.Fatalf("unexpected outputs: %#v", result.Outputs)
	}
	data, err := os.ReadFile(result.Outputs[0].Path)
	if err != nil {
		t.Fatalf("read identity: %v", err)
	}
	if strings.TrimSpace(string(data)) != jc.MediaIdentity {
		t.Fatalf("unexpected identity %q", data)
	}
}

func TestRunExternalStageProducesOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	captured := overrideCommand(t, `printf 'pcm-data' > "$1"/audio`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	result, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if err != nil {
		t.Fatalf("audio-extract failed: %v", err)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Name != "audio" {
		t.Fatalf("unexpected outputs: %#v", result.Outputs)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected one invocation, got %d", len(*captured))
	}
	args := (*captured)[0]
	if argValue(args, "--config") == "" {
		t.Fatalf("expected config snapshot argument, got %v", args)
	}
	if got := argValue(args, "--input"); got != "source="+media {
		t.Fatalf("unexpected input binding %q", got)
	}
}

func TestRunMissingCommandIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	_, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunMissingInputIsInputNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	// audio-extract without a prior ingest record.
	_, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrInputNotFound) {
		t.Fatalf("expected input-not-found, got %v", err)
	}
}

func TestRunMissingMandatoryOutputIsToolFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	cfg.Workflow.RetryAttempts = 1
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	overrideCommand(t, `exit 0`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	_, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "mandatory output") {
		t.Fatalf("expected mandatory output message, got %v", err)
	}
}

func TestRunNonZeroExitKeepsDiagnostics(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	cfg.Workflow.RetryAttempts = 1
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	overrideCommand(t, `echo 'codec parameters invalid for stream' >&2; exit 3`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	result, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if !strings.Contains(result.Diagnostics, "codec parameters invalid") {
		t.Fatalf("expected stderr tail in diagnostics, got %q", result.Diagnostics)
	}
	record, loadErr := jc.Tracker.Load(mustLookup(t, "audio-extract"))
	if loadErr != nil || record == nil || record.Status != lineage.StatusFailed {
		t.Fatalf("expected failed record, got %#v err=%v", record, loadErr)
	}
}

func TestRunRetriesTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	cfg.Workflow.RetryAttempts = 2
	cfg.Workflow.RetryBackoff = 1
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	// First invocation reports a transient failure, second succeeds.
	overrideCommand(t, `
if [ ! -f "$1"/attempted ]; then
  touch "$1"/attempted
  echo 'resource temporarily unavailable' >&2
  exit 1
fi
printf 'pcm-data' > "$1"/audio
`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	result, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Name != "audio" {
		t.Fatalf("unexpected outputs: %#v", result.Outputs)
	}
}

func TestRunTimesOut(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	cfg.Workflow.RetryAttempts = 1
	cfg.Workflow.LightStageTimeout = 1
	cfg.Workflow.CancelGrace = 1
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	overrideCommand(t, `sleep 30`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	_, err := r.Run(context.Background(), mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestRunCancelledFinalizesCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"))
	cfg.Workflow.RetryAttempts = 1
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)
	jc := newJobContext(t, cfg, media)
	r := New(cfg, nil, logging.NewNop())

	overrideCommand(t, `sleep 30`)

	if _, err := r.Run(context.Background(), mustLookup(t, "ingest"), jc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := r.Run(ctx, mustLookup(t, "audio-extract"), jc)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if result.Status != lineage.StatusCancelled {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestRunRecognitionCacheRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"),
		testsupport.WithStageCommand("recognition", "recognize"),
		testsupport.WithStageOptions("recognition", map[string]any{"model": "large-v3"}))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)

	manager, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache open failed: %v", err)
	}
	defer manager.Close()
	r := New(cfg, manager, logging.NewNop())

	overrideCommand(t, `
case "$1" in
*audio-extract*) printf 'pcm-data' > "$1"/audio ;;
*recognition*)
  printf '{"text":"hello world from the sample"}' > "$1"/transcript
  printf '{"quality":0.93,"tool":"large-v3"}' > "$1"/metrics.json
  ;;
esac
`)

	jc := newJobContext(t, cfg, media)
	runPrefix(t, r, jc)
	first, err := r.Run(context.Background(), mustLookup(t, "recognition"), jc)
	if err != nil {
		t.Fatalf("recognition failed: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first run must not hit the cache")
	}

	// Same media and config in a fresh job: recognition comes from cache.
	jc2 := newJobContext(t, cfg, media)
	jc2.JobID = "test-job-2"
	jc2.Tracker = lineage.NewTracker(filepath.Join(cfg.Paths.WorkDir, "jobs", "test-job-2"))
	runPrefix(t, r, jc2)
	second, err := r.Run(context.Background(), mustLookup(t, "recognition"), jc2)
	if err != nil {
		t.Fatalf("cached recognition failed: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("expected cache hit on second run")
	}
	if len(second.Outputs) != 1 || second.Outputs[0].Name != "transcript" {
		t.Fatalf("unexpected outputs: %#v", second.Outputs)
	}
	data, err := os.ReadFile(second.Outputs[0].Path)
	if err != nil {
		t.Fatalf("read cached transcript: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Fatalf("unexpected cached transcript %q", data)
	}
}

func TestRunRecognitionConcurrentJobsShareOneInvocation(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"),
		testsupport.WithStageCommand("recognition", "recognize"),
		testsupport.WithStageOptions("recognition", map[string]any{"model": "large-v3"}))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)

	manager, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache open failed: %v", err)
	}
	defer manager.Close()
	r := New(cfg, manager, logging.NewNop())

	captured := overrideCommand(t, `
case "$1" in
*audio-extract*) printf 'pcm-data' > "$1"/audio ;;
*recognition*)
  sleep 1
  printf '{"text":"the same transcript for both jobs"}' > "$1"/transcript
  printf '{"quality":0.93,"tool":"large-v3"}' > "$1"/metrics.json
  ;;
esac
`)

	contexts := make([]JobContext, 2)
	for i := range contexts {
		id := fmt.Sprintf("test-job-%d", i)
		jc := newJobContext(t, cfg, media)
		jc.JobID = id
		jc.Tracker = lineage.NewTracker(filepath.Join(cfg.Paths.WorkDir, "jobs", id))
		runPrefix(t, r, jc)
		contexts[i] = jc
	}

	results := make([]Result, len(contexts))
	var group errgroup.Group
	for i := range contexts {
		group.Go(func() error {
			result, err := r.Run(context.Background(), mustLookup(t, "recognition"), contexts[i])
			results[i] = result
			return err
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent recognition failed: %v", err)
	}

	if got := stageInvocations(captured, "recognition"); got != 1 {
		t.Fatalf("expected one shared recognition invocation, got %d", got)
	}
	if results[0].CacheHit == results[1].CacheHit {
		t.Fatalf("expected one computed run and one cache-served run, got %v and %v",
			results[0].CacheHit, results[1].CacheHit)
	}
	for i, result := range results {
		if len(result.Outputs) != 1 || result.Outputs[0].Name != "transcript" {
			t.Fatalf("job %d missing transcript output: %#v", i, result.Outputs)
		}
	}
}

const stormTranscript = "storm surge warnings were issued along the northern coastline " +
	"overnight residents evacuated before dawn while rescue teams staged near the " +
	"flooded river crossings and utility crews restored downed power lines"

func TestRunTranslationReusesSimilarTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"),
		testsupport.WithStageCommand("recognition", "recognize"),
		testsupport.WithStageCommand("glossary", "build-glossary"),
		testsupport.WithStageCommand("translation", "translate"),
		testsupport.WithStageOptions("recognition", map[string]any{"model": "large-v3"}),
		testsupport.WithStageOptions("translation", map[string]any{"target_language": "de"}))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)

	manager, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache open failed: %v", err)
	}
	defer manager.Close()
	r := New(cfg, manager, logging.NewNop())

	// A prior translation of the same transcript from different media,
	// plus an unrelated one so shared vocabulary keeps weight.
	seedDir := t.TempDir()
	seeded := filepath.Join(seedDir, "translated")
	testsupport.WriteFileContent(t, seeded, []byte("sturmflutwarnungen wurden ausgegeben"))
	if _, err := manager.Store(context.Background(), registry.LayerTranslation, cache.Key("seed", "de"), seeded, cache.Attrs{
		MediaIdentity:  "other-media",
		Quality:        0.9,
		SimilarityText: stormTranscript,
	}); err != nil {
		t.Fatalf("seed translation: %v", err)
	}
	unrelated := filepath.Join(seedDir, "unrelated")
	testsupport.WriteFileContent(t, unrelated, []byte("quartalszahlen"))
	if _, err := manager.Store(context.Background(), registry.LayerTranslation, cache.Key("seed-2", "de"), unrelated, cache.Attrs{
		MediaIdentity:  "third-media",
		Quality:        0.9,
		SimilarityText: "quarterly fiscal projections indicate marginal growth",
	}); err != nil {
		t.Fatalf("seed unrelated translation: %v", err)
	}

	captured := overrideCommand(t, `
case "$1" in
*audio-extract*) printf 'pcm-data' > "$1"/audio ;;
*recognition*) printf '%s' "`+stormTranscript+`" > "$1"/transcript ;;
*glossary*) printf '[{"source":"storm surge","target":"Sturmflut"}]' > "$1"/terms ;;
*translation*) printf 'fresh machine translation' > "$1"/translated ;;
esac
`)

	jc := newJobContext(t, cfg, media)
	jc.Workflow = registry.WorkflowTranslate
	runPrefix(t, r, jc)
	for _, name := range []string{"recognition", "glossary"} {
		if _, err := r.Run(context.Background(), mustLookup(t, name), jc); err != nil {
			t.Fatalf("stage %s failed: %v", name, err)
		}
	}
	result, err := r.Run(context.Background(), mustLookup(t, "translation"), jc)
	if err != nil {
		t.Fatalf("translation failed: %v", err)
	}

	if got := stageInvocations(captured, "translation"); got != 0 {
		t.Fatalf("expected no translation invocation, got %d", got)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Name != "translated" {
		t.Fatalf("unexpected outputs: %#v", result.Outputs)
	}
	data, err := os.ReadFile(result.Outputs[0].Path)
	if err != nil {
		t.Fatalf("read translated output: %v", err)
	}
	if string(data) != "sturmflutwarnungen wurden ausgegeben" {
		t.Fatalf("expected reused translation, got %q", data)
	}
}

func TestRunTranslationMissesAfterGlossaryGrows(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"),
		testsupport.WithStageCommand("recognition", "recognize"),
		testsupport.WithStageCommand("glossary", "build-glossary"),
		testsupport.WithStageCommand("translation", "translate"),
		testsupport.WithStageOptions("recognition", map[string]any{"model": "large-v3"}),
		testsupport.WithStageOptions("translation", map[string]any{"target_language": "de"}))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)

	manager, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache open failed: %v", err)
	}
	defer manager.Close()
	r := New(cfg, manager, logging.NewNop())

	captured := overrideCommand(t, `
case "$1" in
*audio-extract*) printf 'pcm-data' > "$1"/audio ;;
*recognition*) printf '{"text":"engage the warp core"}' > "$1"/transcript ;;
*glossary*) printf '[{"source":"warp core","target":"Warpkern"}]' > "$1"/terms ;;
*translation*) printf 'aktiviere den warpkern' > "$1"/translated ;;
esac
`)

	runTranslate := func(jobID string) {
		t.Helper()
		jc := newJobContext(t, cfg, media)
		jc.JobID = jobID
		jc.Workflow = registry.WorkflowTranslate
		jc.Tracker = lineage.NewTracker(filepath.Join(cfg.Paths.WorkDir, "jobs", jobID))
		runPrefix(t, r, jc)
		for _, name := range []string{"recognition", "glossary", "translation"} {
			if _, err := r.Run(context.Background(), mustLookup(t, name), jc); err != nil {
				t.Fatalf("stage %s failed: %v", name, err)
			}
		}
	}

	runTranslate("test-job-a")
	if got := stageInvocations(captured, "translation"); got != 1 {
		t.Fatalf("expected one translation invocation, got %d", got)
	}

	// New vocabulary arrives for this media between jobs.
	if _, err := manager.MergeGlossary("deadbeef00", []cache.GlossaryTerm{
		{Source: "dilithium", Target: "Dilithium"},
	}); err != nil {
		t.Fatalf("MergeGlossary failed: %v", err)
	}

	runTranslate("test-job-b")
	if got := stageInvocations(captured, "translation"); got != 2 {
		t.Fatalf("expected a stale translation miss after glossary growth, got %d invocations", got)
	}
}

func TestRunGlossaryAccumulatesTerms(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageCommand("audio-extract", "extract-audio"),
		testsupport.WithStageCommand("recognition", "recognize"),
		testsupport.WithStageCommand("glossary", "build-glossary"),
		testsupport.WithStageOptions("recognition", map[string]any{"model": "large-v3"}))
	media := filepath.Join(t.TempDir(), "movie.mkv")
	testsupport.WriteFile(t, media, 4096)

	manager, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache open failed: %v", err)
	}
	defer manager.Close()
	r := New(cfg, manager, logging.NewNop())

	overrideCommand(t, `
case "$1" in
*audio-extract*) printf 'pcm-data' > "$1"/audio ;;
*recognition*) printf '{"text":"engage the warp core"}' > "$1"/transcript ;;
*glossary*) printf '[{"source":"warp core","target":"Warpkern"}]' > "$1"/terms ;;
esac
`)

	jc := newJobContext(t, cfg, media)
	jc.Workflow = registry.WorkflowTranslate
	runPrefix(t, r, jc)
	for _, name := range []string{"recognition", "glossary"} {
		if _, err := r.Run(context.Background(), mustLookup(t, name), jc); err != nil {
			t.Fatalf("stage %s failed: %v", name, err)
		}
	}

	terms, err := manager.LoadGlossary(jc.MediaIdentity)
	if err != nil {
		t.Fatalf("LoadGlossary failed: %v", err)
	}
	if len(terms) != 1 || terms[0].Source != "warp core" || terms[0].Seen != 1 {
		t.Fatalf("unexpected glossary contents: %#v", terms)
	}
}
