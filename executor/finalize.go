package executor

import (
	"context"

	"github.com/levelforge/guideforge/guide"
)

// FinalizeResult reports the finalize poll's outcome, including progress
// counters useful for the status/results API.
type FinalizeResult struct {
	Status  guide.Status
	Success int
	Failed  int
	Total   int
}

// FinalizePhase polls CellGeneration rows against GuideCell count and
// transitions the guide to a terminal status once every cell has an
// outcome. Grounded on generation_service.py's finalize_phase4.
type FinalizePhase struct {
	Guides      GuideStore
	Generations GenerationStore
}

func (p *FinalizePhase) Execute(ctx context.Context, guideID, promptVersion string) (FinalizeResult, error) {
	g, err := p.Guides.GetGuide(ctx, guideID)
	if err != nil {
		return FinalizeResult{}, err
	}

	if g.Status.IsTerminal() {
		return FinalizeResult{Status: g.Status}, nil
	}

	totalCells, err := p.Generations.CountCellsForGuide(ctx, guideID)
	if err != nil {
		return FinalizeResult{}, err
	}

	totalRows, err := p.Generations.CountTotalForGuide(ctx, guideID, generatePromptName, promptVersion)
	if err != nil {
		return FinalizeResult{}, err
	}

	success, err := p.Generations.CountSuccessForGuide(ctx, guideID, generatePromptName, promptVersion)
	if err != nil {
		return FinalizeResult{}, err
	}

	failed := totalRows - success
	if failed < 0 {
		failed = 0
	}

	if totalCells > 0 && totalRows >= totalCells {
		finalStatus := guide.StatusDone
		if failed > 0 {
			finalStatus = guide.StatusFailedGeneration
		}
		if err := p.Guides.UpdateStatus(ctx, guideID, finalStatus, ""); err != nil {
			return FinalizeResult{}, err
		}
		return FinalizeResult{Status: finalStatus, Success: success, Failed: failed, Total: totalCells}, nil
	}

	return FinalizeResult{Status: g.Status, Success: success, Failed: failed, Total: totalCells}, nil
}
