package github

import (
	"context"
	"sync"
	"time"

	"github.com/navikt/appsec-orgbot/internal/models"
)

const identityLookupTimeout = 30 * time.Second

// Identity resolves the bot's own account at most once per process. The first
// caller triggers the lookup; concurrent and later callers get the same settled
// result, including a failure.
type Identity struct {
	get func() (models.User, error)
}

// NewIdentity wraps lookup in a single-computation cache. The lookup runs on
// its own context so a cancelled request cannot poison the cached result.
func NewIdentity(lookup func(context.Context) (models.User, error)) *Identity {
	return &Identity{
		get: sync.OnceValues(func() (models.User, error) {
			ctx, cancel := context.WithTimeout(context.Background(), identityLookupTimeout)
			defer cancel()
			return lookup(ctx)
		}),
	}
}

// Me returns the cached identity, waiting for the first lookup to settle or
// for ctx to be done, whichever comes first.
func (i *Identity) Me(ctx context.Context) (models.User, error) {
	type result struct {
		user models.User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		user, err := i.get()
		done <- result{user, err}
	}()

	select {
	case r := <-done:
		return r.user, r.err
	case <-ctx.Done():
		return models.User{}, ctx.Err()
	}
}
