package executor

import (
	"context"
	"fmt"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// DefaultChunkSize is generation_service.py's start_phase4 default
// chunk_size=6.
const DefaultChunkSize = 6

// ChunkPlan is one (level, competency-range) GENERATE work item the
// orchestrator should enqueue as a guideforge.generate_cells task.
type ChunkPlan struct {
	LevelID string
	Start   int
	End     int
}

// KickoffResult reports what start_phase4 decided: either the guide was
// already in or past GENERATING_EXAMPLES (nil Plan, informational Status
// only), or it was just claimed and Plan lists every chunk to enqueue.
type KickoffResult struct {
	Status guide.Status
	Plan   []ChunkPlan
}

// KickoffGenerationPhase runs the MATRIX_PARSED -> GENERATING_EXAMPLES
// claim and computes the chunk fan-out plan. Grounded on
// generation_service.py's start_phase4; actual task enqueueing is left to
// the orchestrator since this package does not depend on taskrunner.
type KickoffGenerationPhase struct {
	Guides GuideStore
	Matrix MatrixStore
}

func (p *KickoffGenerationPhase) Execute(ctx context.Context, guideID string, chunkSize int) (KickoffResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	g, err := p.Guides.GetGuide(ctx, guideID)
	if err != nil {
		return KickoffResult{}, err
	}

	if g.Status == guide.StatusDone || g.Status == guide.StatusGeneratingExamples {
		return KickoffResult{Status: g.Status}, nil
	}

	if g.Status != guide.StatusMatrixParsed {
		return KickoffResult{}, apperr.NewValidation(fmt.Sprintf("guide not ready for generation phase (current=%s)", g.Status), nil)
	}

	claimed, err := p.Guides.Claim(ctx, guideID, guide.StatusMatrixParsed, guide.StatusGeneratingExamples)
	if err != nil {
		return KickoffResult{}, err
	}
	if !claimed {
		latest, err := p.Guides.GetGuide(ctx, guideID)
		if err != nil {
			return KickoffResult{}, err
		}
		return KickoffResult{Status: latest.Status}, nil
	}

	levels, err := p.Matrix.ListLevels(ctx, guideID)
	if err != nil {
		return KickoffResult{}, err
	}
	comps, err := p.Matrix.ListCompetencies(ctx, guideID)
	if err != nil {
		return KickoffResult{}, err
	}
	if len(levels) == 0 || len(comps) == 0 {
		return KickoffResult{}, apperr.NewNotFound("missing levels/competencies; run parse phase first")
	}

	size := effectiveChunkSize(len(comps), chunkSize)
	ranges := chunkRanges(len(comps), size)

	var plan []ChunkPlan
	for _, lvl := range levels {
		for _, r := range ranges {
			plan = append(plan, ChunkPlan{LevelID: lvl.ID, Start: r.Start, End: r.End})
		}
	}

	return KickoffResult{Status: guide.StatusGeneratingExamples, Plan: plan}, nil
}
