package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// GuideRepo implements executor.GuideStore over a pgx pool, grounded on
// guide_service.py's repos/guide/{read,write}.py split, collapsed into one
// type since Go has no module-level function namespace to split across.
type GuideRepo struct {
	Pool *pgxpool.Pool
}

func NewGuideRepo(pool *pgxpool.Pool) *GuideRepo {
	return &GuideRepo{Pool: pool}
}

// poolQuerier adapts *pgxpool.Pool to guide.Querier so guide.Claim never has
// to import pgx directly; pgconn.CommandTag already satisfies
// guide.CommandTag structurally since both expose RowsAffected() int64.
type poolQuerier struct {
	pool *pgxpool.Pool
}

func (q poolQuerier) Exec(ctx context.Context, sql string, args ...any) (guide.CommandTag, error) {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (r *GuideRepo) GetGuide(ctx context.Context, guideID string) (guide.Guide, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, company_id, role_title, pdf_path, status, error_message, created_at, updated_at
		FROM guides WHERE id = $1`, guideID)

	var g guide.Guide
	var status string
	if err := row.Scan(&g.ID, &g.CompanyID, &g.RoleTitle, &g.PDFPath, &status, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guide.Guide{}, apperr.NewNotFound(fmt.Sprintf("guide %s not found", guideID))
		}
		return guide.Guide{}, apperr.NewStorage("get guide", err)
	}
	g.Status = guide.Status(status)
	return g, nil
}

func (r *GuideRepo) GetCompany(ctx context.Context, companyID string) (guide.Company, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, website_url, name, context, created_at FROM companies WHERE id = $1`, companyID)

	var c guide.Company
	if err := row.Scan(&c.ID, &c.WebsiteURL, &c.Name, &c.Context, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guide.Company{}, apperr.NewNotFound(fmt.Sprintf("company %s not found", companyID))
		}
		return guide.Company{}, apperr.NewStorage("get company", err)
	}
	return c, nil
}

// Claim delegates to guide.Claim, wrapping the pool's Exec (no explicit
// transaction: a single UPDATE...WHERE is already atomic) behind the
// guide.Querier adapter.
func (r *GuideRepo) Claim(ctx context.Context, guideID string, from, to guide.Status) (bool, error) {
	ok, err := guide.Claim(ctx, poolQuerier{pool: r.Pool}, guideID, from, to)
	if err != nil {
		return false, apperr.NewStorage("claim guide status", err)
	}
	return ok, nil
}

func (r *GuideRepo) UpdateStatus(ctx context.Context, guideID string, status guide.Status, errorMessage string) error {
	_, err := r.Pool.Exec(ctx, `
		UPDATE guides SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(status), errorMessage, guideID)
	if err != nil {
		return apperr.NewStorage("update guide status", err)
	}
	return nil
}

func (r *GuideRepo) UpsertArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType, contentJSON map[string]any) (guide.Artifact, error) {
	body, err := json.Marshal(contentJSON)
	if err != nil {
		return guide.Artifact{}, apperr.NewInternal("marshal artifact content", err)
	}

	row := r.Pool.QueryRow(ctx, `
		INSERT INTO artifacts (guide_id, type, content_json)
		VALUES ($1, $2, $3)
		ON CONFLICT (guide_id, type) DO UPDATE SET content_json = EXCLUDED.content_json, created_at = now()
		RETURNING id, guide_id, type, content_json, created_at`,
		guideID, string(artifactType), body)

	var a guide.Artifact
	var typ string
	var raw []byte
	if err := row.Scan(&a.ID, &a.GuideID, &typ, &raw, &a.CreatedAt); err != nil {
		return guide.Artifact{}, apperr.NewStorage("upsert artifact", err)
	}
	a.Type = guide.ArtifactType(typ)
	if err := json.Unmarshal(raw, &a.ContentJSON); err != nil {
		return guide.Artifact{}, apperr.NewInternal("unmarshal artifact content", err)
	}
	return a, nil
}

func (r *GuideRepo) GetArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType) (guide.Artifact, bool, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, guide_id, type, content_json, created_at
		FROM artifacts WHERE guide_id = $1 AND type = $2`, guideID, string(artifactType))

	var a guide.Artifact
	var typ string
	var raw []byte
	if err := row.Scan(&a.ID, &a.GuideID, &typ, &raw, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guide.Artifact{}, false, nil
		}
		return guide.Artifact{}, false, apperr.NewStorage("get artifact", err)
	}
	a.Type = guide.ArtifactType(typ)
	if err := json.Unmarshal(raw, &a.ContentJSON); err != nil {
		return guide.Artifact{}, false, apperr.NewInternal("unmarshal artifact content", err)
	}
	return a, true, nil
}

func (r *GuideRepo) CreateParseRun(ctx context.Context, run guide.ParseRun) error {
	var inputID, outputID any
	if run.InputArtifactID != "" {
		inputID = run.InputArtifactID
	}
	if run.OutputArtifactID != "" {
		outputID = run.OutputArtifactID
	}

	_, err := r.Pool.Exec(ctx, `
		INSERT INTO parse_runs
			(guide_id, strategy, status, confidence, model, prompt_version,
			 input_artifact_id, output_artifact_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.GuideID, run.Strategy, string(run.Status), run.Confidence, run.Model, run.PromptVersion,
		inputID, outputID, run.ErrorMessage)
	if err != nil {
		return apperr.NewStorage("create parse run", err)
	}
	return nil
}
