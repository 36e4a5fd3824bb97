package guide

import (
	"context"
	"fmt"
)

// Querier is the one Exec method Claim needs. pgstore adapts its pgx pool
// to it, so in production the UPDATE runs as a single auto-committed
// statement; the claim helper itself never commits or rolls back.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
}

// CommandTag mirrors pgconn.CommandTag's one field this package needs,
// avoiding a direct pgx import from this leaf package.
type CommandTag interface {
	RowsAffected() int64
}

// Claim performs the single atomic compare-and-set that makes phase entry
// safe under at-least-once task delivery: it conditionally sets status=to
// iff the current status=from, in one UPDATE, and reports whether exactly
// one row was affected. It never commits or rolls back; the caller's
// transaction boundary controls that.
//
// Claim panics if (from, to) is not one of the legal transitions in
// status.go -- that is a programming error, not a race to be handled at
// runtime.
func Claim(ctx context.Context, q Querier, guideID string, from, to Status) (bool, error) {
	if !IsLegalTransition(from, to) {
		panic(fmt.Sprintf("guide: illegal claim transition %s -> %s", from, to))
	}

	tag, err := q.Exec(ctx,
		`UPDATE guides SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(to), guideID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("claim %s->%s for guide %s: %w", from, to, guideID, err)
	}
	return tag.RowsAffected() == 1, nil
}
