package guide

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTag implements CommandTag for the in-memory fake below.
type fakeTag int64

func (f fakeTag) RowsAffected() int64 { return int64(f) }

// fakeGuides is a minimal in-memory stand-in for the guides table, used to
// exercise Claim's compare-and-set semantics without a real database.
type fakeGuides struct {
	mu     sync.Mutex
	status map[string]Status
}

func newFakeGuides(id string, status Status) *fakeGuides {
	return &fakeGuides{status: map[string]Status{id: status}}
}

func (f *fakeGuides) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	to := args[0].(string)
	id := args[1].(string)
	from := args[2].(string)

	if f.status[id] == Status(from) {
		f.status[id] = Status(to)
		return fakeTag(1), nil
	}
	return fakeTag(0), nil
}

func TestClaim_SucceedsOnceThenFails(t *testing.T) {
	db := newFakeGuides("g1", StatusQueued)

	ok, err := Claim(context.Background(), db, "g1", StatusQueued, StatusExtractingText)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Claim(context.Background(), db, "g1", StatusQueued, StatusExtractingText)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	db := newFakeGuides("g1", StatusMatrixParsed)

	const n = 25
	var successes int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ok, err := Claim(context.Background(), db, "g1", StatusMatrixParsed, StatusGeneratingExamples)
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	assert.Equal(t, StatusGeneratingExamples, db.status["g1"])
}

func TestClaim_PanicsOnIllegalTransition(t *testing.T) {
	db := newFakeGuides("g1", StatusQueued)
	assert.Panics(t, func() {
		_, _ = Claim(context.Background(), db, "g1", StatusQueued, StatusDone)
	})
}

func TestIsLegalTransition_TerminalStatesHaveNoOutbound(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusFailedBadPDF, StatusFailedParse, StatusFailedGeneration} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, legalTransitions[s])
	}
}
