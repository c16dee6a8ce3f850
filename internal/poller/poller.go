// Package poller runs the single background worker that drains the job
// queue: claim the oldest created job, assemble bounded conversation
// history, call the completion backend, and finalize the job. After
// each prompt job it services at most one analysis job, then sleeps
// briefly when both queues are empty.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/akettlewell/chatqueue/internal/backend"
	"github.com/akettlewell/chatqueue/internal/cache"
	"github.com/akettlewell/chatqueue/internal/config"
	"github.com/akettlewell/chatqueue/internal/history"
	"github.com/akettlewell/chatqueue/internal/store"
	"github.com/akettlewell/chatqueue/pkg/models"
	"github.com/google/uuid"
)

// User-facing messages written into job responses on failure paths.
const (
	// MsgBackendUnreachable replaces raw transport errors. The original
	// error goes to the log, not the user.
	MsgBackendUnreachable = "Failed to connect to backend, try again please!"
	// MsgRestartRecovery is written by the startup sweep into jobs a
	// prior process left running.
	MsgRestartRecovery = "Server restarted, please try this again"
	// MsgAnalysisTargetMissing fails an analysis whose target job does
	// not exist.
	MsgAnalysisTargetMissing = "The job this analysis refers to does not exist"
	// MsgAnalysisNoResponse fails a response-dependent analysis whose
	// target job completed with an empty response.
	MsgAnalysisNoResponse = "The job this analysis refers to has no response to analyse"
)

// jobStatusTTL bounds how long a cached job status survives without a
// fresh write.
const jobStatusTTL = 30 * time.Minute

// Poller is the single worker that processes prompt and analysis jobs.
// Exactly one Poller runs per process; the claim queries assume no
// competing claimer.
type Poller struct {
	store   store.Store
	backend backend.Client
	cache   cache.Cache
	cfg     config.PollerConfig
	backCfg config.BackendConfig
	logger  *slog.Logger

	labelOnce sync.Once
	label     string
}

// New creates a Poller. cache may be nil, in which case status caching
// is skipped.
func New(st store.Store, client backend.Client, c cache.Cache, cfg config.PollerConfig, backCfg config.BackendConfig, logger *slog.Logger) *Poller {
	return &Poller{
		store:   st,
		backend: client,
		cache:   c,
		cfg:     cfg,
		backCfg: backCfg,
		logger:  logger,
	}
}

// Run drives the poll loop until ctx is cancelled. Cancellation is
// checked between jobs, never mid-job: a claimed job always reaches a
// terminal status before Run returns.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "idle_delay", p.cfg.IdleDelay)
	for {
		if ctx.Err() != nil {
			p.logger.Info("poller stopping")
			return
		}

		didJob := p.processNextJob()
		didAnalysis := p.processNextAnalysis()

		if didJob || didAnalysis {
			continue
		}
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return
		case <-time.After(p.cfg.IdleDelay):
		}
	}
}

// processNextJob claims and fully processes one prompt job. Returns
// false when the queue was empty. Any failure inside finalizes the job
// to error; the loop itself never propagates errors.
func (p *Poller) processNextJob() bool {
	ctx := context.Background()

	job, err := p.store.ClaimNextJob(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		p.logger.Error("claiming job", "error", err)
		return false
	}

	p.logger.Info("job claimed", "job_id", job.ID, "user_id", job.UserID, "request_type", job.RequestType)
	p.setCachedStatus(ctx, job.ID, models.JobStatusRunning)

	turns := p.assembleHistory(ctx, job)

	start := time.Now()
	resp, err := p.backend.ChatCompletion(ctx, backend.ChatRequest{
		Model:       p.backCfg.Model,
		Messages:    turns,
		Temperature: p.backCfg.Temperature,
	})
	runtime := time.Since(start).Seconds()

	if err != nil {
		message := err.Error()
		if errors.Is(err, backend.ErrUnreachable) {
			message = MsgBackendUnreachable
		}
		p.logger.Error("completion failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
		p.failJob(ctx, job.ID, message)
		return true
	}

	job.Status = models.JobStatusComplete
	job.Response = &resp.Text
	job.RuntimeSeconds = &runtime
	if meta := p.buildMetadata(ctx, resp); meta != "" {
		job.ResultMetadata = &meta
	}

	if err := p.store.UpdateJobResult(ctx, job); err != nil {
		p.logger.Error("storing job result", "job_id", job.ID, "error", err)
		p.failJob(ctx, job.ID, "Failed to store the result, please try this again")
		return true
	}

	p.setCachedStatus(ctx, job.ID, models.JobStatusComplete)
	p.logger.Info("job complete", "job_id", job.ID, "runtime_seconds", runtime)
	return true
}

// assembleHistory builds the turn sequence for the completion call. A
// history query failure is logged and degrades to just the new prompt;
// it never fails the job.
func (p *Poller) assembleHistory(ctx context.Context, job *models.Job) []backend.Message {
	prior, err := p.store.CompletedJobsForUser(ctx, job.UserID, job.ID)
	if err != nil {
		p.logger.Warn("loading history, proceeding without", "job_id", job.ID, "error", err)
		prior = nil
	}
	trimmed := history.Trim(prior, p.cfg.HistoryTokenCeiling)
	return history.BuildTurns(trimmed, job.Prompt)
}

// buildMetadata serializes the completion's model label and token usage.
// Returns "" if serialization fails.
func (p *Poller) buildMetadata(ctx context.Context, resp *backend.ChatResponse) string {
	label := resp.Model
	if label == "" {
		label = p.modelLabel(ctx)
	}
	raw, err := json.Marshal(models.ResultMetadata{Model: label, Usage: resp.Usage})
	if err != nil {
		p.logger.Warn("serializing result metadata", "error", err)
		return ""
	}
	return string(raw)
}

// modelLabel resolves the backend's model name once, lazily. Discovery
// failure falls back to the configured model name and never blocks
// processing.
func (p *Poller) modelLabel(ctx context.Context) string {
	p.labelOnce.Do(func() {
		ids, err := p.backend.ListModels(ctx)
		if err == nil && len(ids) > 0 {
			p.label = ids[0]
			return
		}
		p.logger.Warn("model discovery failed, using configured name", "error", err)
		p.label = p.backCfg.Model
		if p.label == "" {
			p.label = "unknown"
		}
	})
	return p.label
}

// failJob finalizes a job to error. The job is re-fetched first so a
// row that vanished or was finalized elsewhere is not overwritten.
func (p *Poller) failJob(ctx context.Context, id uuid.UUID, message string) {
	fresh, err := p.store.GetJob(ctx, id)
	if err != nil {
		p.logger.Error("refetching job before failing", "job_id", id, "error", err)
		return
	}
	if fresh.Status != models.JobStatusRunning {
		p.logger.Warn("job no longer running, skipping error finalize", "job_id", id, "status", fresh.Status)
		return
	}
	if err := p.store.FailJob(ctx, id, message); err != nil {
		p.logger.Error("failing job", "job_id", id, "error", err)
		return
	}
	p.setCachedStatus(ctx, id, models.JobStatusError)
}

// processNextAnalysis services at most one analysis job. The queue is
// scanned oldest first: orphaned analyses are failed as encountered,
// not-yet-eligible ones are left created for a later pass, and the
// first eligible one runs.
func (p *Poller) processNextAnalysis() bool {
	ctx := context.Background()

	queued, err := p.store.ListQueuedAnalysisJobs(ctx)
	if err != nil {
		p.logger.Error("listing queued analyses", "error", err)
		return false
	}

	for _, an := range queued {
		target, err := p.store.GetJob(ctx, an.JobID)
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("analysis target missing", "analysis_id", an.ID, "job_id", an.JobID)
			p.failAnalysis(ctx, an.ID, MsgAnalysisTargetMissing)
			continue
		}
		if err != nil {
			p.logger.Error("loading analysis target", "analysis_id", an.ID, "error", err)
			return false
		}

		if models.NeedsResponse(an.AnalysisType) {
			if target.Status != models.JobStatusComplete {
				// Not ready yet. Leave it created and look further down
				// the queue.
				continue
			}
			if target.Response == nil || strings.TrimSpace(*target.Response) == "" {
				p.failAnalysis(ctx, an.ID, MsgAnalysisNoResponse)
				continue
			}
		}

		if err := p.store.MarkAnalysisRunning(ctx, an.ID); err != nil {
			p.logger.Error("claiming analysis", "analysis_id", an.ID, "error", err)
			continue
		}
		p.runAnalysis(ctx, an, target)
		return true
	}
	return false
}

// runAnalysis sends the analysis as one synthetic user turn and
// finalizes the analysis job.
func (p *Poller) runAnalysis(ctx context.Context, an *models.AnalysisJob, target *models.Job) {
	p.logger.Info("analysis claimed", "analysis_id", an.ID, "job_id", an.JobID, "analysis_type", an.AnalysisType)

	resp, err := p.backend.ChatCompletion(ctx, backend.ChatRequest{
		Model:       p.backCfg.Model,
		Messages:    []backend.Message{{Role: backend.RoleUser, Content: analysisContent(an, target)}},
		Temperature: p.backCfg.Temperature,
	})
	if err != nil {
		message := err.Error()
		if errors.Is(err, backend.ErrUnreachable) {
			message = MsgBackendUnreachable
		}
		p.logger.Error("analysis completion failed", "analysis_id", an.ID, "error", err)
		p.failAnalysis(ctx, an.ID, message)
		return
	}

	if err := p.store.CompleteAnalysisJob(ctx, an.ID, resp.Text); err != nil {
		p.logger.Error("storing analysis result", "analysis_id", an.ID, "error", err)
		p.failAnalysis(ctx, an.ID, "Failed to store the result, please try this again")
		return
	}
	p.logger.Info("analysis complete", "analysis_id", an.ID)
}

// analysisContent concatenates the preprompt with the analyzed material
// selected by the analysis type.
func analysisContent(an *models.AnalysisJob, target *models.Job) string {
	var b strings.Builder
	b.WriteString(an.Preprompt)
	switch an.AnalysisType {
	case models.AnalysisTypePrompt:
		b.WriteString("\n\n")
		b.WriteString(target.Prompt)
	case models.AnalysisTypeResponse:
		b.WriteString("\n\n")
		b.WriteString(*target.Response)
	case models.AnalysisTypeBoth:
		b.WriteString("\n\n")
		b.WriteString(target.Prompt)
		b.WriteString("\n\n")
		b.WriteString(*target.Response)
	}
	return b.String()
}

func (p *Poller) failAnalysis(ctx context.Context, id uuid.UUID, message string) {
	if err := p.store.FailAnalysisJob(ctx, id, message); err != nil {
		p.logger.Error("failing analysis", "analysis_id", id, "error", err)
	}
}

// setCachedStatus mirrors a job's status into the cache. Best effort, a
// cache failure is logged and ignored.
func (p *Poller) setCachedStatus(ctx context.Context, id uuid.UUID, status string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetJobStatus(ctx, id, status, jobStatusTTL); err != nil {
		p.logger.Warn("caching job status", "job_id", id, "error", err)
	}
}
