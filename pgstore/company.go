package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

// CompanyRepo is the HTTP ingress's company lookup/upsert path, grounded on
// repos/company/{read,write}.py. A company is uniquely identified by
// website_url for this prototype; the first guide upload for a new website
// creates its company row.
type CompanyRepo struct {
	Pool *pgxpool.Pool
}

func NewCompanyRepo(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{Pool: pool}
}

func (r *CompanyRepo) GetByID(ctx context.Context, companyID string) (guide.Company, error) {
	return scanCompany(r.Pool.QueryRow(ctx, `
		SELECT id, website_url, name, context, created_at FROM companies WHERE id = $1`, companyID))
}

func (r *CompanyRepo) GetByWebsite(ctx context.Context, websiteURL string) (guide.Company, bool, error) {
	c, err := scanCompany(r.Pool.QueryRow(ctx, `
		SELECT id, website_url, name, context, created_at FROM companies WHERE website_url = $1`, websiteURL))
	if err != nil {
		if apperrErr, ok := apperr.As(err); ok && apperrErr.Code == apperr.CodeNotFound {
			return guide.Company{}, false, nil
		}
		return guide.Company{}, false, err
	}
	return c, true, nil
}

// UpsertByWebsite returns the existing company for websiteURL, or creates
// one with the supplied name/context if none exists yet. Matches
// CompanyWriteRepo.upsert_by_website's find-or-create semantics.
func (r *CompanyRepo) UpsertByWebsite(ctx context.Context, websiteURL, name, context_ string) (guide.Company, error) {
	existing, found, err := r.GetByWebsite(ctx, websiteURL)
	if err != nil {
		return guide.Company{}, err
	}
	if found {
		return existing, nil
	}

	return scanCompany(r.Pool.QueryRow(ctx, `
		INSERT INTO companies (website_url, name, context)
		VALUES ($1, $2, $3)
		RETURNING id, website_url, name, context, created_at`,
		websiteURL, name, context_))
}

func scanCompany(row pgx.Row) (guide.Company, error) {
	var c guide.Company
	if err := row.Scan(&c.ID, &c.WebsiteURL, &c.Name, &c.Context, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guide.Company{}, apperr.NewNotFound("company not found")
		}
		return guide.Company{}, apperr.NewStorage("scan company", err)
	}
	return c, nil
}

// CreateGuide inserts a new guide row in QUEUED status for a freshly
// uploaded PDF, matching guide_service.py's create_guide_from_upload.
func (r *GuideRepo) CreateGuide(ctx context.Context, companyID, roleTitle, pdfPath string) (guide.Guide, error) {
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO guides (company_id, role_title, pdf_path, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, company_id, role_title, pdf_path, status, error_message, created_at, updated_at`,
		companyID, roleTitle, pdfPath, string(guide.StatusQueued))

	var g guide.Guide
	var status string
	if err := row.Scan(&g.ID, &g.CompanyID, &g.RoleTitle, &g.PDFPath, &status, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return guide.Guide{}, apperr.NewStorage("create guide", err)
	}
	g.Status = guide.Status(status)
	return g, nil
}

// ListGuidesByCompany returns a company's guides, newest first. No HTTP
// route of the ingress calls it.
func (r *GuideRepo) ListGuidesByCompany(ctx context.Context, companyID string) ([]guide.Guide, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, company_id, role_title, pdf_path, status, error_message, created_at, updated_at
		FROM guides WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, apperr.NewStorage("list guides by company", err)
	}
	defer rows.Close()

	var out []guide.Guide
	for rows.Next() {
		var g guide.Guide
		var status string
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.RoleTitle, &g.PDFPath, &status, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, apperr.NewStorage("scan guide", err)
		}
		g.Status = guide.Status(status)
		out = append(out, g)
	}
	return out, rows.Err()
}
