// Package orchestrator chains the five phase executors through the task
// runner: each phase's handler enqueues the next phase's task on success,
// exactly mirroring the Celery task chain in
// original_source/backend/app/tasks/guide_pipeline.py (extract_text_task
// -> parse_matrix_task -> kickoff_generation_task -> generate_cells_task x N
// -> finalize_generation_task, the last re-enqueuing itself with a delay
// until terminal).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/executor"
	"github.com/levelforge/guideforge/guide"
	"github.com/levelforge/guideforge/metrics"
	"github.com/levelforge/guideforge/taskrunner"
)

// finalizePollInterval is the delay finalize_generation_task re-enqueues
// itself with while generation is still in progress, transcribed from
// guide_pipeline.py's finalize_generation_task default_retry_delay=30.
const finalizePollInterval = 30 * time.Second

// defaultGenerateConcurrency is the worker pool size for
// guideforge.generate_cells task consumption (spec.md's
// GENERATE_WORKER_CONCURRENCY) when Orchestrator.GenerateConcurrency is unset.
const defaultGenerateConcurrency = 4

// Orchestrator wires the five phase executors to task-runner handlers and
// owns the inter-phase chaining decisions.
type Orchestrator struct {
	Runner    taskrunner.Runner
	Extract   *executor.ExtractPhase
	Parse     *executor.ParseMatrixPhase
	Kickoff   *executor.KickoffGenerationPhase
	Generate  *executor.GenerateChunkPhase
	Finalize  *executor.FinalizePhase
	Guides    executor.GuideStore
	Logger    *slog.Logger

	GenerateConcurrency int
}

type extractPayload struct {
	GuideID string `json:"guide_id"`
}

type parsePayload struct {
	GuideID string `json:"guide_id"`
}

type kickoffPayload struct {
	GuideID string `json:"guide_id"`
}

type generateCellsPayload struct {
	GuideID       string `json:"guide_id"`
	LevelID       string `json:"level_id"`
	Start         int    `json:"start"`
	End           int    `json:"end"`
	PromptVersion string `json:"prompt_version"`
}

type finalizePayload struct {
	GuideID       string `json:"guide_id"`
	PromptVersion string `json:"prompt_version"`
}

// RegisterHandlers binds every task type to its handler. Call once before
// Runner.Run.
func (o *Orchestrator) RegisterHandlers() error {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	concurrency := o.GenerateConcurrency
	if concurrency <= 0 {
		concurrency = defaultGenerateConcurrency
	}

	if err := o.Runner.Register(taskrunner.TaskExtractText, 4, 5, instrument(taskrunner.TaskExtractText, o.handleExtractText)); err != nil {
		return err
	}
	if err := o.Runner.Register(taskrunner.TaskParseMatrix, 4, 5, instrument(taskrunner.TaskParseMatrix, o.handleParseMatrix)); err != nil {
		return err
	}
	if err := o.Runner.Register(taskrunner.TaskKickoffGeneration, 4, 3, instrument(taskrunner.TaskKickoffGeneration, o.handleKickoffGeneration)); err != nil {
		return err
	}
	if err := o.Runner.Register(taskrunner.TaskGenerateCells, concurrency, 3, instrument(taskrunner.TaskGenerateCells, o.handleGenerateCells)); err != nil {
		return err
	}
	if err := o.Runner.Register(taskrunner.TaskFinalizeGeneration, 1, 240, instrument(taskrunner.TaskFinalizeGeneration, o.handleFinalize)); err != nil {
		return err
	}
	return nil
}

// instrument wraps a task handler with duration and outcome metrics,
// recording guideforge_task_duration_seconds and
// guideforge_task_outcomes_total per spec.md §6's worker metrics surface.
// A domain failure (an *apperr.Error) is logged and acknowledged without
// redelivery; any other error is returned so the runner retries the task.
func instrument(taskType string, handler taskrunner.Handler) taskrunner.Handler {
	return func(ctx context.Context, task taskrunner.Task) error {
		start := time.Now()
		err := handler(ctx, task)
		metrics.TaskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.TaskOutcomesTotal.WithLabelValues(taskType, outcome).Inc()
		if appErr, ok := apperr.As(err); ok {
			slog.Warn("task failed with a domain error; not retried",
				"task_type", taskType, "code", appErr.Code.String(), "error", appErr)
			return nil
		}
		return err
	}
}

// EnqueueExtract kicks off the pipeline for a newly created guide. Called
// by the HTTP ingress right after the guide row and uploaded PDF are
// persisted, per guide_service.py's create_guide_from_upload.
func (o *Orchestrator) EnqueueExtract(ctx context.Context, guideID string) error {
	payload, err := json.Marshal(extractPayload{GuideID: guideID})
	if err != nil {
		return err
	}
	return o.Runner.Enqueue(ctx, taskrunner.TaskExtractText, payload)
}

func (o *Orchestrator) handleExtractText(ctx context.Context, task taskrunner.Task) error {
	var p extractPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal extract_text payload: %w", err)
	}

	if err := o.Extract.Execute(ctx, p.GuideID); err != nil {
		return err
	}

	g, err := o.Guides.GetGuide(ctx, p.GuideID)
	if err != nil {
		return err
	}
	o.Logger.Info("guide.status", "task", taskrunner.TaskExtractText, "guide_id", p.GuideID, "status", g.Status)

	if g.Status != guide.StatusTextExtracted {
		return nil
	}

	payload, err := json.Marshal(parsePayload{GuideID: p.GuideID})
	if err != nil {
		return err
	}
	return o.Runner.Enqueue(ctx, taskrunner.TaskParseMatrix, payload)
}

func (o *Orchestrator) handleParseMatrix(ctx context.Context, task taskrunner.Task) error {
	var p parsePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal parse_matrix payload: %w", err)
	}

	if _, err := o.Parse.Execute(ctx, p.GuideID); err != nil {
		return err
	}

	g, err := o.Guides.GetGuide(ctx, p.GuideID)
	if err != nil {
		return err
	}
	o.Logger.Info("guide.status", "task", taskrunner.TaskParseMatrix, "guide_id", p.GuideID, "status", g.Status)

	if g.Status != guide.StatusMatrixParsed {
		return nil
	}

	payload, err := json.Marshal(kickoffPayload{GuideID: p.GuideID})
	if err != nil {
		return err
	}
	return o.Runner.Enqueue(ctx, taskrunner.TaskKickoffGeneration, payload)
}

// handleKickoffGeneration claims MATRIX_PARSED -> GENERATING_EXAMPLES and
// fans the chunk plan out as guideforge.generate_cells tasks, per
// spec.md §4.5's "On kickoff_generation_task" sequence. The Claim inside
// executor.KickoffGenerationPhase.Execute makes a duplicate delivery of
// this same task a no-op: the second delivery finds the guide already
// past MATRIX_PARSED and returns an empty plan.
func (o *Orchestrator) handleKickoffGeneration(ctx context.Context, task taskrunner.Task) error {
	var p kickoffPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal kickoff_generation payload: %w", err)
	}

	result, err := o.Kickoff.Execute(ctx, p.GuideID, executor.DefaultChunkSize)
	if err != nil {
		return err
	}
	o.Logger.Info("guide.status", "task", taskrunner.TaskKickoffGeneration, "guide_id", p.GuideID, "status", result.Status)
	if len(result.Plan) == 0 {
		return nil
	}

	for _, chunk := range result.Plan {
		payload, err := json.Marshal(generateCellsPayload{
			GuideID:       p.GuideID,
			LevelID:       chunk.LevelID,
			Start:         chunk.Start,
			End:           chunk.End,
			PromptVersion: "v1",
		})
		if err != nil {
			return err
		}
		if err := o.Runner.Enqueue(ctx, taskrunner.TaskGenerateCells, payload); err != nil {
			return err
		}
	}

	finalizeMsg, err := json.Marshal(finalizePayload{GuideID: p.GuideID, PromptVersion: "v1"})
	if err != nil {
		return err
	}
	return o.Runner.EnqueueDelayed(ctx, taskrunner.TaskFinalizeGeneration, finalizeMsg, finalizePollInterval)
}

func (o *Orchestrator) handleGenerateCells(ctx context.Context, task taskrunner.Task) error {
	var p generateCellsPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal generate_cells payload: %w", err)
	}
	return o.Generate.Execute(ctx, p.GuideID, p.LevelID, p.Start, p.End, p.PromptVersion)
}

func (o *Orchestrator) handleFinalize(ctx context.Context, task taskrunner.Task) error {
	var p finalizePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal finalize payload: %w", err)
	}

	result, err := o.Finalize.Execute(ctx, p.GuideID, p.PromptVersion)
	if err != nil {
		return err
	}

	if result.Status == guide.StatusDone || result.Status == guide.StatusFailedGeneration {
		o.Logger.Info("guide.status", "task", taskrunner.TaskFinalizeGeneration, "guide_id", p.GuideID, "status", result.Status)
		return nil
	}

	// Not done yet: re-enqueue after the poll interval, exactly matching
	// guide_pipeline.py's finalize_generation_task self.retry loop.
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return o.Runner.EnqueueDelayed(ctx, taskrunner.TaskFinalizeGeneration, payload, finalizePollInterval)
}
