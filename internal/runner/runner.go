package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"reel/internal/cache"
	"reel/internal/config"
	"reel/internal/fileutil"
	"reel/internal/lineage"
	"reel/internal/logging"
	"reel/internal/registry"
	"reel/internal/services"
	"reel/internal/textsim"
)

// Runner executes single stage runs for jobs.
type Runner struct {
	cfg    *config.Config
	cache  *cache.Manager
	logger *slog.Logger
}

// New builds a stage runner. The cache manager may be nil when caching is
// disabled.
func New(cfg *config.Config, cacheManager *cache.Manager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		cache:  cacheManager,
		logger: logging.NewComponentLogger(logger, "runner"),
	}
}

// JobContext carries the per-job state a stage run needs.
type JobContext struct {
	JobID         string
	Workflow      registry.Workflow
	MediaPath     string
	MediaIdentity string
	Tracker       *lineage.Tracker
}

// Result summarizes one stage run.
type Result struct {
	Status      string
	Outputs     []lineage.ArtifactRecord
	Warnings    []string
	Diagnostics string
	Duration    time.Duration
	CacheHit    bool
}

// Run executes the stage for the job and finalizes its lineage record. The
// record is finalized exactly once whether the run succeeds, fails, or is
// cancelled; the returned error is already classified through the taxonomy.
func (r *Runner) Run(ctx context.Context, def registry.Definition, jc JobContext) (Result, error) {
	ctx = services.WithStage(services.WithJobID(ctx, jc.JobID), def.Name)
	start := time.Now()

	handle, err := jc.Tracker.Begin(jc.JobID, def)
	if err != nil {
		return Result{}, err
	}

	r.logger.InfoContext(ctx, "stage starting",
		logging.String(logging.FieldStage, def.Name),
		logging.String(logging.FieldEventType, "stage_start"),
	)

	result, runErr := r.execStage(ctx, def, jc, handle)
	result.Duration = time.Since(start)

	status := lineage.StatusCompleted
	var errMessage string
	if runErr != nil {
		errMessage = services.Details(runErr).Message
		if errors.Is(runErr, services.ErrCancelled) || errors.Is(runErr, context.Canceled) {
			status = lineage.StatusCancelled
		} else {
			status = lineage.StatusFailed
		}
	}
	result.Status = status

	if finalizeErr := handle.Finalize(status, errMessage); finalizeErr != nil {
		if runErr != nil {
			return result, runErr
		}
		return result, finalizeErr
	}

	if runErr != nil {
		r.logger.ErrorContext(ctx, "stage failed",
			logging.String(logging.FieldStage, def.Name),
			logging.String("error_kind", string(services.ClassifyKind(runErr))),
			logging.Error(runErr),
			logging.String(logging.FieldEventType, "stage_failed"),
		)
		return result, runErr
	}

	record, err := jc.Tracker.Load(def)
	if err == nil && record != nil {
		result.Outputs = record.Outputs
		result.Warnings = record.Warnings
	}

	r.logger.InfoContext(ctx, "stage completed",
		logging.String(logging.FieldStage, def.Name),
		logging.Duration("duration", result.Duration),
		logging.Bool("cache_hit", result.CacheHit),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	return result, nil
}

func (r *Runner) execStage(ctx context.Context, def registry.Definition, jc JobContext, handle *lineage.Handle) (Result, error) {
	var result Result

	bindings, err := r.resolveInputs(def, jc, handle)
	if err != nil {
		return result, err
	}

	snap, err := newSnapshot(r.cfg.StageConfig(def.Name), def.Name, string(jc.Workflow), jc.JobID)
	if err != nil {
		return result, err
	}
	snapPath, err := snap.write(handle.Dir())
	if err != nil {
		return result, err
	}
	handle.RecordIntermediate(snapPath, "config snapshot handed to the stage process")
	handle.RecordConfig(snap.SchemaVersion, snap.ConfigHash, snapPath)

	primary, hasPrimary := primaryOutput(def)
	cacheable := def.CacheLayer != registry.LayerNone && r.cache != nil &&
		jc.MediaIdentity != "" && hasPrimary
	if !cacheable {
		outputs, _, err := r.invokeStage(ctx, def, jc, handle, bindings, snapPath, &result)
		if err != nil {
			return result, err
		}
		r.accumulateGlossary(def, jc, outputs, handle)
		return result, nil
	}

	cacheKey, err := r.cacheKey(def, jc, snap, bindings)
	if err != nil {
		return result, err
	}

	// The miss path runs inside GetOrCompute so concurrent jobs wanting the
	// same derivation share one tool invocation.
	var (
		computed   bool
		computeErr error
	)
	entry, _, err := r.cache.GetOrCompute(ctx, def.CacheLayer, cacheKey, func(ctx context.Context) (string, cache.Attrs, error) {
		if def.CacheLayer == registry.LayerTranslation {
			if path, attrs, ok := r.reuseSimilar(ctx, def, jc, bindings, primary, handle); ok {
				computed = true
				return path, attrs, nil
			}
		}
		outputs, metrics, err := r.invokeStage(ctx, def, jc, handle, bindings, snapPath, &result)
		if err != nil {
			computeErr = err
			return "", cache.Attrs{}, err
		}
		computed = true
		r.accumulateGlossary(def, jc, outputs, handle)
		attrs := cache.Attrs{
			MediaIdentity: jc.MediaIdentity,
			Artifact:      primary.Name,
			Quality:       metrics.Quality,
			Tool:          metrics.Tool,
			Language:      metrics.Language,
		}
		if def.CacheLayer == registry.LayerRecognition || def.CacheLayer == registry.LayerTranslation {
			attrs.SimilarityText = readSimilarityText(outputs[primary.Name])
		}
		return outputs[primary.Name], attrs, nil
	})
	switch {
	case err != nil && computeErr != nil:
		return result, computeErr
	case err != nil && computed:
		// The result is already on disk; only indexing failed.
		r.logger.WarnContext(ctx, "cache store failed",
			logging.String(logging.FieldStage, def.Name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "result not reusable by later jobs"),
		)
		return result, nil
	case err != nil:
		// The cache broke before this stage ran anything; degrade to an
		// uncached run.
		r.logger.WarnContext(ctx, "cache unavailable, running stage directly",
			logging.String(logging.FieldStage, def.Name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "result not reusable by later jobs"),
		)
		outputs, _, runErr := r.invokeStage(ctx, def, jc, handle, bindings, snapPath, &result)
		if runErr != nil {
			return result, runErr
		}
		r.accumulateGlossary(def, jc, outputs, handle)
		return result, nil
	case computed:
		return result, nil
	}

	// A hit, either preexisting or produced by a concurrent run; this job
	// still needs the payload in its own stage directory.
	if err := r.materializeHit(ctx, def, entry, primary, handle, cacheKey); err != nil {
		return result, err
	}
	result.CacheHit = true
	return result, nil
}

// invokeStage runs the stage's builtin or external command and validates
// its declared outputs. Metric warnings land on the lineage record.
func (r *Runner) invokeStage(ctx context.Context, def registry.Definition, jc JobContext, handle *lineage.Handle, bindings []inputBinding, snapPath string, result *Result) (map[string]string, stageMetrics, error) {
	var outputs map[string]string
	var err error
	if builtin, ok := builtins[def.Name]; ok {
		outputs, err = builtin(ctx, r, jc, handle)
		if err != nil {
			return nil, stageMetrics{}, err
		}
	} else {
		command := r.cfg.StageCommand(def.Name)
		if command == "" {
			return nil, stageMetrics{}, services.Wrap(services.ErrConfiguration, def.Name, "resolve command",
				"no command configured for stage", nil)
		}
		inv := invocation{
			command:    command,
			inputs:     bindings,
			outputDir:  handle.Dir(),
			configPath: snapPath,
			timeout:    r.cfg.StageTimeout(def.Heavy),
			grace:      r.cfg.CancelGraceDuration(),
		}

		attempts := r.cfg.Workflow.RetryAttempts
		runErr := services.Retry(ctx, attempts, r.cfg.RetryBackoffDuration(), func() error {
			tail, execErr := execute(ctx, inv)
			result.Diagnostics = tail
			if execErr != nil {
				return classifyRunError(def.Name, tail, execErr)
			}
			return nil
		})
		if runErr != nil {
			return nil, stageMetrics{}, runErr
		}

		outputs, err = r.validateOutputs(def, handle)
		if err != nil {
			return nil, stageMetrics{}, err
		}
	}

	metrics := readMetrics(handle)
	for _, warning := range metrics.Warnings {
		handle.AddWarning(warning)
	}
	return outputs, metrics, nil
}

// cacheKey derives the lookup key for a stage's cache layer. Most layers
// key on the media identity plus the stage's config hash. Translation keys
// on the source text and glossary state instead, so identical transcripts
// translate once across media and glossary growth invalidates stale
// translations.
func (r *Runner) cacheKey(def registry.Definition, jc JobContext, snap Snapshot, bindings []inputBinding) (string, error) {
	if def.CacheLayer != registry.LayerTranslation {
		return cache.Key(jc.MediaIdentity, def.Name, snap.ConfigHash), nil
	}

	var transcriptHash, termsHash string
	for _, binding := range bindings {
		sum, err := fileutil.HashFile(binding.path)
		if err != nil {
			return "", services.Wrap(services.ErrInputNotFound, def.Name, "hash inputs",
				fmt.Sprintf("input %s unreadable", binding.path), err)
		}
		switch binding.name {
		case "transcript":
			transcriptHash = sum
		case "terms":
			termsHash = sum
		}
	}
	options := r.cfg.StageConfig(def.Name).Options
	source, _ := options["source_language"].(string)
	target, _ := options["target_language"].(string)
	return cache.Key(transcriptHash, source, target, termsHash,
		r.cache.GlossaryChecksum(jc.MediaIdentity), snap.ConfigHash), nil
}

// reuseSimilar checks stored translations for a transcript close enough to
// this one. A direct-tier match is adopted as this stage's output without
// invoking the tool; an adapt-tier match contributes its glossary before
// the tool runs; a hint-tier match is only logged.
func (r *Runner) reuseSimilar(ctx context.Context, def registry.Definition, jc JobContext, bindings []inputBinding, primary registry.Artifact, handle *lineage.Handle) (string, cache.Attrs, bool) {
	var probeText string
	for _, binding := range bindings {
		if binding.name == "transcript" {
			probeText = readSimilarityText(binding.path)
			break
		}
	}
	if probeText == "" {
		return "", cache.Attrs{}, false
	}

	matches, err := r.cache.FindSimilar(ctx, def.CacheLayer, probeText, jc.MediaIdentity, 1)
	if err != nil {
		r.logger.WarnContext(ctx, "similarity search failed",
			logging.String(logging.FieldStage, def.Name),
			logging.Error(err),
		)
		return "", cache.Attrs{}, false
	}
	if len(matches) == 0 {
		return "", cache.Attrs{}, false
	}

	match := matches[0]
	switch match.Tier {
	case textsim.TierDirect:
		dest := filepath.Join(handle.Dir(), primary.Name)
		if err := fileutil.CopyFileVerified(match.Entry.PayloadPath, dest); err != nil {
			r.logger.WarnContext(ctx, "similar payload copy failed",
				logging.String(logging.FieldStage, def.Name),
				logging.Error(err),
			)
			return "", cache.Attrs{}, false
		}
		if err := handle.RecordOutput(primary.Name, string(primary.Type), dest); err != nil {
			return "", cache.Attrs{}, false
		}
		r.logger.InfoContext(ctx, "translation reused from similar transcript",
			logging.String(logging.FieldStage, def.Name),
			logging.Float64("similarity", match.Score),
			logging.String(logging.FieldEventType, "similar_reuse"),
		)
		return dest, cache.Attrs{
			MediaIdentity:  jc.MediaIdentity,
			Artifact:       primary.Name,
			Quality:        match.Entry.Quality,
			Tool:           match.Entry.Tool,
			Language:       match.Entry.Language,
			SimilarityText: probeText,
		}, true
	case textsim.TierAdapt:
		if match.Entry.MediaIdentity != "" {
			terms, loadErr := r.cache.LoadGlossary(match.Entry.MediaIdentity)
			if loadErr == nil && len(terms) > 0 {
				if _, mergeErr := r.cache.MergeGlossary(jc.MediaIdentity, terms); mergeErr == nil {
					r.logger.InfoContext(ctx, "adopted glossary from similar transcript",
						logging.String(logging.FieldStage, def.Name),
						logging.Float64("similarity", match.Score),
						logging.Int("glossary_terms", len(terms)),
						logging.String(logging.FieldEventType, "similar_adapt"),
					)
				}
			}
		}
	case textsim.TierHint:
		r.logger.InfoContext(ctx, "related translation exists in cache",
			logging.String(logging.FieldStage, def.Name),
			logging.Float64("similarity", match.Score),
			logging.String(logging.FieldEventType, "similar_hint"),
		)
	}
	return "", cache.Attrs{}, false
}

// accumulateGlossary folds a glossary stage's fresh terms into the
// per-identity store.
func (r *Runner) accumulateGlossary(def registry.Definition, jc JobContext, outputs map[string]string, handle *lineage.Handle) {
	if def.Name != "glossary" || jc.MediaIdentity == "" {
		return
	}
	primary, ok := primaryOutput(def)
	if !ok {
		return
	}
	r.mergeGlossary(jc, outputs[primary.Name], handle)
}

// mergeGlossary folds a glossary stage's terms into the per-identity store
// so later jobs on the same media start from the accumulated vocabulary.
// Merge failures only warn.
func (r *Runner) mergeGlossary(jc JobContext, termsPath string, handle *lineage.Handle) {
	if r.cache == nil || termsPath == "" {
		return
	}
	count, err := r.cache.MergeGlossaryFile(jc.MediaIdentity, termsPath)
	if err != nil {
		handle.AddWarning("glossary terms not accumulated: " + err.Error())
		return
	}
	r.logger.Info("glossary terms accumulated",
		logging.String(logging.FieldJobID, jc.JobID),
		logging.Int("glossary_terms", count))
}

// resolveInputs maps each declared input to the producing stage's recorded
// output. Inputs whose producer does not participate in the workflow are
// skipped when optional; a missing required input fails resolution.
func (r *Runner) resolveInputs(def registry.Definition, jc JobContext, handle *lineage.Handle) ([]inputBinding, error) {
	bindings := make([]inputBinding, 0, len(def.Inputs))
	for _, ref := range def.Inputs {
		producer, ok := registry.Lookup(ref.Stage)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, def.Name, "resolve inputs",
				fmt.Sprintf("input references unknown stage %q", ref.Stage), nil)
		}
		if !producer.AppliesTo(jc.Workflow) {
			if ref.Optional {
				continue
			}
			return nil, services.Wrap(services.ErrConfiguration, def.Name, "resolve inputs",
				fmt.Sprintf("required input %s/%s outside workflow %s", ref.Stage, ref.Artifact, jc.Workflow), nil)
		}

		artifact, err := jc.Tracker.ResolveOutput(producer, ref.Artifact)
		if err != nil {
			return nil, err
		}
		if artifact == nil {
			if ref.Optional {
				continue
			}
			return nil, services.Wrap(services.ErrInputNotFound, def.Name, "resolve inputs",
				fmt.Sprintf("input %s/%s was not produced", ref.Stage, ref.Artifact), nil)
		}
		if !fileutil.NonEmptyFile(artifact.Path) {
			return nil, services.Wrap(services.ErrInputNotFound, def.Name, "resolve inputs",
				fmt.Sprintf("input %s is missing or empty", artifact.Path), nil)
		}

		handle.RecordInput(ref.Stage, *artifact, producerFromCache(jc, producer))
		bindings = append(bindings, inputBinding{name: ref.Artifact, path: artifact.Path})
	}
	return bindings, nil
}

// producerFromCache reports whether the stage that produced an input was
// itself satisfied from cache.
func producerFromCache(jc JobContext, producer registry.Definition) bool {
	record, err := jc.Tracker.Load(producer)
	if err != nil || record == nil {
		return false
	}
	return record.CacheHit
}

// materializeHit copies a cached primary output into the stage directory,
// records it, and marks the lineage record as cache-served.
func (r *Runner) materializeHit(ctx context.Context, def registry.Definition, entry *cache.Entry, primary registry.Artifact, handle *lineage.Handle, key string) error {
	dest := filepath.Join(handle.Dir(), primary.Name)
	if err := fileutil.CopyFileVerified(entry.PayloadPath, dest); err != nil {
		return services.Wrap(services.ErrCacheCorruption, def.Name, "materialize cache hit",
			"cached payload unreadable", err)
	}

	handle.MarkCacheHit()
	if err := handle.RecordOutput(primary.Name, string(primary.Type), dest); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "stage satisfied from cache",
		logging.String(logging.FieldStage, def.Name),
		logging.String("cache_key", key),
		logging.String(logging.FieldEventType, "cache_hit"),
	)
	return nil
}

// validateOutputs checks each declared output in the stage directory after a
// zero exit and records the ones present. A missing mandatory output
// reclassifies the run as a tool failure.
func (r *Runner) validateOutputs(def registry.Definition, handle *lineage.Handle) (map[string]string, error) {
	outputs := make(map[string]string, len(def.Outputs))
	for _, artifact := range def.Outputs {
		path := filepath.Join(handle.Dir(), artifact.Name)
		if !fileutil.NonEmptyFile(path) {
			if artifact.Mandatory {
				return nil, services.Wrap(services.ErrExternalTool, def.Name, "validate outputs",
					fmt.Sprintf("mandatory output %q missing after successful exit", artifact.Name), nil)
			}
			continue
		}
		if err := handle.RecordOutput(artifact.Name, string(artifact.Type), path); err != nil {
			return nil, err
		}
		outputs[artifact.Name] = path
	}
	return outputs, nil
}

// primaryOutput is the first mandatory artifact, the one a cache layer
// stores for the stage.
func primaryOutput(def registry.Definition) (registry.Artifact, bool) {
	for _, artifact := range def.Outputs {
		if artifact.Mandatory {
			return artifact, true
		}
	}
	return registry.Artifact{}, false
}
