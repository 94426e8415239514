package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
	"github.com/yungbote/cognigraph-backend/internal/platform/dbctx"
)

// FlakyTxRunner injects transaction failures around an optional real runner.
// With Next set, a FailCommit after a successful body rolls back every write
// the body made; without it the body runs with no transaction.
type FlakyTxRunner struct {
	Next aggregates.TxRunner

	// FailBegins makes the first N attempts fail with BeginErr before the body runs.
	FailBegins int
	BeginErr   error
	FailCommit error

	mu        sync.Mutex
	attempts  int
	bodies    int
	commits   int
	rollbacks int
}

var _ aggregates.TxRunner = (*FlakyTxRunner)(nil)

func (r *FlakyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.attempts++
	failBegin := r.attempts <= r.FailBegins
	r.mu.Unlock()
	if failBegin {
		return r.BeginErr
	}

	body := func(dbc dbctx.Context) error {
		if fn != nil {
			r.mu.Lock()
			r.bodies++
			r.mu.Unlock()
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return r.FailCommit
	}
	var err error
	if r.Next != nil {
		err = r.Next.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}

	r.mu.Lock()
	if err != nil {
		r.rollbacks++
	} else {
		r.commits++
	}
	r.mu.Unlock()
	return err
}

// Counts reports attempts, bodies run, commits and rollbacks.
func (r *FlakyTxRunner) Counts() (attempts, bodies, commits, rollbacks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts, r.bodies, r.commits, r.rollbacks
}
