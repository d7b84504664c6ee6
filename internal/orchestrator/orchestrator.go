package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"reel/internal/cache"
	"reel/internal/checkpoint"
	"reel/internal/config"
	"reel/internal/fileutil"
	"reel/internal/identity"
	"reel/internal/jobs"
	"reel/internal/language"
	"reel/internal/lineage"
	"reel/internal/logging"
	"reel/internal/registry"
	"reel/internal/runner"
	"reel/internal/services"
)

// Orchestrator runs jobs through their workflow stages.
type Orchestrator struct {
	cfg     *config.Config
	store   *jobs.Store
	runner  *runner.Runner
	logger  *slog.Logger
	prober  identity.Prober
	sampler identity.Sampler
	// sem bounds how many jobs run at once across RunJob callers.
	sem chan struct{}
}

// New builds an orchestrator. The cache manager may be nil when caching is
// disabled.
func New(cfg *config.Config, store *jobs.Store, cacheManager *cache.Manager, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.Workflow.MaxConcurrentJobs
	if limit < 1 {
		limit = 1
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		runner:  runner.New(cfg, cacheManager, logger),
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		prober:  identity.FFprobeProber{Binary: cfg.Tools.FFprobe},
		sampler: identity.FFmpegSampler{Binary: cfg.Tools.FFmpeg},
		sem:     make(chan struct{}, limit),
	}
}

// RunOptions adjusts how a job run starts.
type RunOptions struct {
	// FromScratch discards the checkpoint and reruns every stage.
	FromScratch bool
}

// Create validates configuration for the workflow and registers a new
// pending job. Configuration problems surface here, before any stage runs.
// The returned warnings list unknown stage options that will be ignored.
func (o *Orchestrator) Create(ctx context.Context, mediaPath, workflow string) (*jobs.Job, []string, error) {
	wf, ok := registry.ParseWorkflow(workflow)
	if !ok {
		return nil, nil, services.Wrap(services.ErrConfiguration, "orchestrator", "create job",
			"unknown workflow "+workflow, nil)
	}
	warnings, err := registry.ValidateStageOptions(o.cfg, wf)
	if err != nil {
		return nil, nil, err
	}
	if err := o.validateTargetLanguage(wf); err != nil {
		return nil, nil, err
	}

	media, err := config.ExpandPath(mediaPath)
	if err != nil {
		return nil, nil, err
	}
	if !fileutil.NonEmptyFile(media) {
		return nil, nil, services.Wrap(services.ErrInputNotFound, "orchestrator", "create job",
			"media file missing or empty: "+media, nil)
	}

	job, err := o.store.NewJob(ctx, string(wf), media, "", "")
	if err != nil {
		return nil, nil, err
	}
	job.RootDir = filepath.Join(o.cfg.Paths.WorkDir, "jobs", job.ID)
	if err := os.MkdirAll(job.RootDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create job root: %w", err)
	}
	if err := o.store.Update(ctx, job); err != nil {
		return nil, nil, err
	}

	o.logger.InfoContext(ctx, "job created",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkflow, job.Workflow),
		logging.String("media_path", job.MediaPath),
	)
	return job, warnings, nil
}

// validateTargetLanguage canonicalizes the translation stage's target
// language so downstream tools always see a well-formed code.
func (o *Orchestrator) validateTargetLanguage(wf registry.Workflow) error {
	def, ok := registry.Lookup("translation")
	if !ok || !def.AppliesTo(wf) {
		return nil
	}
	raw, _ := o.cfg.StageConfig(def.Name).Options["target_language"].(string)
	if _, err := language.Canonicalize(raw); err != nil {
		return services.Wrap(services.ErrConfiguration, def.Name, "validate options",
			fmt.Sprintf("target_language %q not recognized", raw), err)
	}
	return nil
}

// RunJob executes one job to completion, resuming from its checkpoint
// unless opts requests a fresh run. It blocks while the concurrency bound
// is saturated.
func (o *Orchestrator) RunJob(ctx context.Context, jobID string, opts RunOptions) error {
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrInputNotFound, "orchestrator", "run job",
			"no job with id "+jobID, nil)
	}
	if job.IsRunning() {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "run job",
			"job is already running", nil)
	}
	if job.Status == jobs.StatusCompleted && !opts.FromScratch {
		return nil
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	ctx = services.WithWorkflow(services.WithJobID(ctx, job.ID), job.Workflow)
	defs, err := registry.ForWorkflow(job.Workflow)
	if err != nil {
		return o.failJob(ctx, job, "", err)
	}

	if job.MediaIdentity == "" {
		computed, err := identity.Compute(ctx, job.MediaPath, o.prober, o.sampler)
		if err != nil {
			return o.failJob(ctx, job, "fingerprint", err)
		}
		job.MediaIdentity = computed
		if prior, err := o.store.FindByIdentity(ctx, computed); err == nil && prior != nil && prior.ID != job.ID {
			o.logger.InfoContext(ctx, "media seen before, cached stage outputs may apply",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldEventType, "identity_match"),
				logging.String("prior_job_id", prior.ID))
		}
	}

	now := time.Now().UTC()
	job.Status = jobs.StatusRunning
	job.StartedAt = &now
	job.ErrorStage = ""
	job.ErrorKind = ""
	job.ErrorMessage = ""
	if err := o.store.Update(ctx, job); err != nil {
		return err
	}

	stopHeartbeat := o.startHeartbeat(ctx, job.ID)
	defer stopHeartbeat()

	runErr := o.runStages(ctx, job, defs, opts)
	if runErr != nil {
		return runErr
	}

	job.SetCompleted(time.Now().UTC())
	if err := o.store.Update(ctx, job); err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "job completed",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	return nil
}

func (o *Orchestrator) runStages(ctx context.Context, job *jobs.Job, defs []registry.Definition, opts RunOptions) error {
	tracker := lineage.NewTracker(job.RootDir)
	manager := checkpoint.NewManager(job.RootDir)

	if opts.FromScratch {
		if err := manager.Clear(); err != nil {
			return err
		}
	}
	cp, err := manager.Load()
	if err != nil {
		// Corrupt checkpoint self-heals into a full rerun.
		o.logger.WarnContext(ctx, "checkpoint unreadable, rerunning all stages",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completed stages will run again"),
		)
		if err := manager.Clear(); err != nil {
			return err
		}
		cp = nil
	}
	if cp == nil {
		cp, err = manager.Init(job.ID, job.Workflow, job.MediaIdentity)
		if err != nil {
			return err
		}
	}

	start, warnings, err := manager.ResumePoint(cp, defs)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		o.logger.WarnContext(ctx, warning,
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "resume_rollback"),
		)
	}
	if start > 0 {
		o.logger.InfoContext(ctx, "resuming from checkpoint",
			logging.String("resume_stage", defs[start-1].Name),
			logging.Int("stages_skipped", start),
		)
	}

	jc := runner.JobContext{
		JobID:         job.ID,
		Workflow:      registry.Workflow(job.Workflow),
		MediaPath:     job.MediaPath,
		MediaIdentity: job.MediaIdentity,
		Tracker:       tracker,
	}

	for i := start; i < len(defs); i++ {
		if err := ctx.Err(); err != nil {
			return o.cancelJob(ctx, job, defs[i].Name)
		}
		def := defs[i]

		job.CurrentStage = def.Name
		if err := o.store.Update(ctx, job); err != nil {
			return err
		}

		result, runErr := o.runner.Run(ctx, def, jc)
		if runErr != nil {
			if errors.Is(runErr, services.ErrCancelled) || errors.Is(runErr, context.Canceled) {
				return o.cancelJob(ctx, job, def.Name)
			}
			if !def.RequiredFor(registry.Workflow(job.Workflow)) {
				o.logger.WarnContext(ctx, "optional stage failed, continuing",
					logging.String(logging.FieldStage, def.Name),
					logging.Error(runErr),
					logging.String(logging.FieldImpact, "its outputs will be unavailable downstream"),
				)
				// The checkpoint still advances so resume does not retry a
				// stage the job already moved past.
				if err := manager.MarkCompleted(cp, def, nil); err != nil {
					return err
				}
				continue
			}
			return o.failJob(ctx, job, def.Name, runErr)
		}

		if err := manager.MarkCompleted(cp, def, result.Outputs); err != nil {
			return err
		}
		job.LastCompletedStage = def.Name
		job.CurrentStage = ""
		if err := o.store.Update(ctx, job); err != nil {
			return err
		}
	}

	if open := tracker.OpenHandles(); len(open) > 0 {
		o.logger.WarnContext(ctx, "unfinalized stage records at job end",
			logging.Any("stages", open),
		)
	}
	return nil
}

// RunPending runs every pending job, bounded by the job concurrency limit.
// The first failure is returned after all runs finish.
func (o *Orchestrator) RunPending(ctx context.Context, opts RunOptions) error {
	pending, err := o.store.List(ctx, jobs.StatusPending)
	if err != nil {
		return err
	}
	var group errgroup.Group
	for _, job := range pending {
		group.Go(func() error {
			return o.RunJob(ctx, job.ID, opts)
		})
	}
	return group.Wait()
}

// ReclaimStale returns running jobs with expired heartbeats to pending.
// Called at startup so jobs orphaned by a crash become runnable again.
func (o *Orchestrator) ReclaimStale(ctx context.Context) (int64, error) {
	timeout := time.Duration(o.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-timeout)
	reclaimed, err := o.store.ReclaimStaleRunning(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		o.logger.InfoContext(ctx, "reclaimed stale running jobs",
			logging.Int64("count", reclaimed),
		)
	}
	return reclaimed, nil
}

func (o *Orchestrator) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := time.Duration(o.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Heartbeats keep flowing during cancellation grace, so use
				// a background context for the write.
				if err := o.store.UpdateHeartbeat(context.WithoutCancel(ctx), jobID); err != nil {
					o.logger.WarnContext(ctx, "heartbeat update failed",
						logging.String(logging.FieldJobID, jobID),
						logging.Error(err),
					)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (o *Orchestrator) failJob(ctx context.Context, job *jobs.Job, stage string, cause error) error {
	detail := services.Details(cause)
	job.SetFailed(stage, string(detail.Kind), detail.Message)
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err := o.store.Update(context.WithoutCancel(ctx), job); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist job failure", logging.Error(err))
	}
	o.logger.ErrorContext(ctx, "job failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStage, stage),
		logging.String("error_kind", string(detail.Kind)),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	return cause
}

func (o *Orchestrator) cancelJob(ctx context.Context, job *jobs.Job, stage string) error {
	job.Status = jobs.StatusCancelled
	job.CurrentStage = ""
	job.ErrorStage = stage
	job.ErrorKind = string(services.KindCancelled)
	job.ErrorMessage = jobs.CancelledMessage
	job.LastHeartbeat = nil
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err := o.store.Update(context.WithoutCancel(ctx), job); err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "job cancelled",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	return services.Wrap(services.ErrCancelled, stage, "run job", "", nil)
}
