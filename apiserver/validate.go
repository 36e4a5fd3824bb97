package apiserver

import (
	"net/url"
	"strings"

	"github.com/levelforge/guideforge/apperr"
)

const (
	// defaultMaxUploadBytes is file_validators.py's own 10MB ceiling,
	// used only when Server.MaxUploadBytes is left at its zero value.
	defaultMaxUploadBytes = 10 * 1024 * 1024
	minRoleTitleLen       = 3
	maxRoleTitleLen       = 120
)

func validateRoleTitle(roleTitle string) (string, error) {
	rt := strings.TrimSpace(roleTitle)
	if len(rt) < minRoleTitleLen || len(rt) > maxRoleTitleLen {
		return "", apperr.NewValidation("role_title must be between 3 and 120 characters", nil)
	}
	return rt, nil
}

// normalizeWebsiteURL enforces http/https and reduces the URL to its scheme
// plus lowercased host (path, query and fragment are dropped), reducing
// duplicate companies for the same site.
func normalizeWebsiteURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", apperr.NewValidation("website_url must be an absolute http(s) URL", nil)
	}
	return strings.TrimRight(parsed.Scheme+"://"+strings.ToLower(parsed.Host), "/"), nil
}

func validatePDFContentType(contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct != "application/pdf" {
		return apperr.NewValidation("uploaded file must be application/pdf", map[string]any{"content_type": ct})
	}
	return nil
}
