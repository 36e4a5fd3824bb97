package pgstore

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// MatrixRepo implements executor.MatrixStore: the normalized Level/
// Competency/GuideCell tables a parsed matrix is flattened into, grounded
// on guide_service.py's parse_matrix persistence step.
type MatrixRepo struct {
	Pool *pgxpool.Pool
}

func NewMatrixRepo(pool *pgxpool.Pool) *MatrixRepo {
	return &MatrixRepo{Pool: pool}
}

func (r *MatrixRepo) UpsertLevel(ctx context.Context, guideID, code string, position int) (guide.Level, error) {
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO levels (guide_id, code, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (guide_id, code) DO UPDATE SET position = EXCLUDED.position
		RETURNING id, guide_id, code, title, position`,
		guideID, code, position)

	var lvl guide.Level
	if err := row.Scan(&lvl.ID, &lvl.GuideID, &lvl.Code, &lvl.Title, &lvl.Position); err != nil {
		return guide.Level{}, apperr.NewStorage("upsert level", err)
	}
	return lvl, nil
}

func (r *MatrixRepo) UpsertCompetency(ctx context.Context, guideID, name string, position int) (guide.Competency, error) {
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO competencies (guide_id, name, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (guide_id, name) DO UPDATE SET position = EXCLUDED.position
		RETURNING id, guide_id, name, position`,
		guideID, name, position)

	var c guide.Competency
	if err := row.Scan(&c.ID, &c.GuideID, &c.Name, &c.Position); err != nil {
		return guide.Competency{}, apperr.NewStorage("upsert competency", err)
	}
	return c, nil
}

func (r *MatrixRepo) UpsertCell(ctx context.Context, guideID, competencyID, levelID, definitionText, sourceArtifactID string) (guide.GuideCell, error) {
	var sourceID any
	if sourceArtifactID != "" {
		sourceID = sourceArtifactID
	}

	row := r.Pool.QueryRow(ctx, `
		INSERT INTO guide_cells (guide_id, competency_id, level_id, definition_text, source_artifact_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (competency_id, level_id)
		DO UPDATE SET definition_text = EXCLUDED.definition_text, source_artifact_id = EXCLUDED.source_artifact_id
		RETURNING id, guide_id, competency_id, level_id, definition_text, coalesce(source_artifact_id::text, '')`,
		guideID, competencyID, levelID, definitionText, sourceID)

	var cell guide.GuideCell
	if err := row.Scan(&cell.ID, &cell.GuideID, &cell.CompetencyID, &cell.LevelID, &cell.DefinitionText, &cell.SourceArtifactID); err != nil {
		return guide.GuideCell{}, apperr.NewStorage("upsert cell", err)
	}
	return cell, nil
}

func (r *MatrixRepo) ListLevels(ctx context.Context, guideID string) ([]guide.Level, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, guide_id, code, title, position FROM levels
		WHERE guide_id = $1 ORDER BY position`, guideID)
	if err != nil {
		return nil, apperr.NewStorage("list levels", err)
	}
	defer rows.Close()

	var out []guide.Level
	for rows.Next() {
		var lvl guide.Level
		if err := rows.Scan(&lvl.ID, &lvl.GuideID, &lvl.Code, &lvl.Title, &lvl.Position); err != nil {
			return nil, apperr.NewStorage("scan level", err)
		}
		out = append(out, lvl)
	}
	return out, rows.Err()
}

func (r *MatrixRepo) ListCompetencies(ctx context.Context, guideID string) ([]guide.Competency, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, guide_id, name, position FROM competencies
		WHERE guide_id = $1 ORDER BY position`, guideID)
	if err != nil {
		return nil, apperr.NewStorage("list competencies", err)
	}
	defer rows.Close()

	var out []guide.Competency
	for rows.Next() {
		var c guide.Competency
		if err := rows.Scan(&c.ID, &c.GuideID, &c.Name, &c.Position); err != nil {
			return nil, apperr.NewStorage("scan competency", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCells returns every cell for levelID, optionally restricted to
// competencyIDs (empty slice means all competencies for the guide).
func (r *MatrixRepo) ListCells(ctx context.Context, guideID, levelID string, competencyIDs []string) ([]guide.GuideCell, error) {
	query := `
		SELECT id, guide_id, competency_id, level_id, definition_text, coalesce(source_artifact_id::text, '')
		FROM guide_cells WHERE guide_id = $1 AND level_id = $2`
	args := []any{guideID, levelID}

	if len(competencyIDs) > 0 {
		placeholders := make([]string, len(competencyIDs))
		for i, id := range competencyIDs {
			args = append(args, id)
			placeholders[i] = "$" + strconv.Itoa(len(args))
		}
		query += " AND competency_id IN (" + strings.Join(placeholders, ",") + ")"
	}

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewStorage("list cells", err)
	}
	defer rows.Close()

	var out []guide.GuideCell
	for rows.Next() {
		var cell guide.GuideCell
		if err := rows.Scan(&cell.ID, &cell.GuideID, &cell.CompetencyID, &cell.LevelID, &cell.DefinitionText, &cell.SourceArtifactID); err != nil {
			return nil, apperr.NewStorage("scan cell", err)
		}
		out = append(out, cell)
	}
	return out, rows.Err()
}

