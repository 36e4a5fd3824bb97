package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// GenerationRepo implements executor.GenerationStore: the GENERATE phase's
// idempotency ledger and progress counters, grounded on
// repos/generation/{read,write}.py.
type GenerationRepo struct {
	Pool *pgxpool.Pool
}

func NewGenerationRepo(pool *pgxpool.Pool) *GenerationRepo {
	return &GenerationRepo{Pool: pool}
}

func (r *GenerationRepo) GetCellGeneration(ctx context.Context, cellID, promptName, promptVersion string) (guide.CellGeneration, bool, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, guide_id, cell_id, prompt_name, prompt_version, status, content_json, model, trace_id, error_message
		FROM cell_generations WHERE cell_id = $1 AND prompt_name = $2 AND prompt_version = $3`,
		cellID, promptName, promptVersion)

	var cg guide.CellGeneration
	var status string
	var raw []byte
	if err := row.Scan(&cg.ID, &cg.GuideID, &cg.CellID, &cg.PromptName, &cg.PromptVersion, &status, &raw, &cg.Model, &cg.TraceID, &cg.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guide.CellGeneration{}, false, nil
		}
		return guide.CellGeneration{}, false, apperr.NewStorage("get cell generation", err)
	}
	cg.Status = guide.CellGenerationStatus(status)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cg.ContentJSON); err != nil {
			return guide.CellGeneration{}, false, apperr.NewInternal("unmarshal cell generation content", err)
		}
	}
	return cg, true, nil
}

func (r *GenerationRepo) UpsertCellGeneration(ctx context.Context, cg guide.CellGeneration) error {
	body, err := json.Marshal(cg.ContentJSON)
	if err != nil {
		return apperr.NewInternal("marshal cell generation content", err)
	}

	_, err = r.Pool.Exec(ctx, `
		INSERT INTO cell_generations
			(guide_id, cell_id, prompt_name, prompt_version, status, content_json, model, trace_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cell_id, prompt_name, prompt_version)
		DO UPDATE SET status = EXCLUDED.status, content_json = EXCLUDED.content_json,
			model = EXCLUDED.model, trace_id = EXCLUDED.trace_id, error_message = EXCLUDED.error_message,
			created_at = now()`,
		cg.GuideID, cg.CellID, cg.PromptName, cg.PromptVersion, string(cg.Status), body, cg.Model, cg.TraceID, cg.ErrorMessage)
	if err != nil {
		return apperr.NewStorage("upsert cell generation", err)
	}
	return nil
}

func (r *GenerationRepo) CountTotalForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `
		SELECT count(*) FROM cell_generations
		WHERE guide_id = $1 AND prompt_name = $2 AND prompt_version = $3`,
		guideID, promptName, promptVersion).Scan(&n)
	if err != nil {
		return 0, apperr.NewStorage("count total generations", err)
	}
	return n, nil
}

func (r *GenerationRepo) CountSuccessForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `
		SELECT count(*) FROM cell_generations
		WHERE guide_id = $1 AND prompt_name = $2 AND prompt_version = $3 AND status = $4`,
		guideID, promptName, promptVersion, string(guide.CellGenerationSuccess)).Scan(&n)
	if err != nil {
		return 0, apperr.NewStorage("count success generations", err)
	}
	return n, nil
}

func (r *GenerationRepo) CountCellsForGuide(ctx context.Context, guideID string) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM guide_cells WHERE guide_id = $1`, guideID).Scan(&n)
	if err != nil {
		return 0, apperr.NewStorage("count cells", err)
	}
	return n, nil
}
