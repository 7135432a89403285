// Package smoke drives a running contacts API through every operation and
// checks what it reads back.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/client"
	"github.com/okian/contacts/pkg/logger"
)

// ErrVerification reports contacts that read back differently than written.
var ErrVerification = errors.New("verification failed")

// API is the part of the contacts client the runner drives.
type API interface {
	List(ctx context.Context) ([]model.Contact, error)
	Get(ctx context.Context, id model.ContactID) (model.Contact, error)
	Create(ctx context.Context, c model.Contact) (model.Contact, error)
	Update(ctx context.Context, c model.Contact) error
	Delete(ctx context.Context, id model.ContactID) error
}

var _ API = (*client.Client)(nil)

// Runner executes one smoke run.
type Runner struct {
	api  API
	opts Options
	log  logger.Logger

	mu    sync.Mutex
	stats Stats
	rng   *rand.Rand
}

// NewRunner creates a runner for api.
func NewRunner(api API, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{
		api:  api,
		opts: opts,
		log:  logger.Named("smoke"),
		rng:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// Run creates, verifies, updates and deletes opts.Contacts contacts.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.stats = Stats{StartTime: time.Now()}
	runID := uuid.NewString()[:8]

	r.log.Info(ctx, "starting contacts smoke run",
		logger.String("runID", runID),
		logger.Int("contacts", r.opts.Contacts),
		logger.Int("workers", r.opts.Workers),
	)

	// Step 1: Check service reachability
	if _, err := r.api.List(ctx); err != nil {
		return r.finish(), fmt.Errorf("service check failed: %w", err)
	}

	// Step 2: Create concurrently
	r.mu.Lock()
	want := Generate(runID, r.opts.Contacts, r.rng)
	r.mu.Unlock()
	created := make([]model.Contact, len(want))
	err := r.each(ctx, len(want), func(ctx context.Context, i int) error {
		c, err := r.api.Create(ctx, want[i])
		if err != nil {
			return err
		}
		created[i] = c
		r.count(func(s *Stats) { s.Created++ })
		r.debug(ctx, "created", c.ContactID)
		return nil
	})
	if err != nil {
		return r.finish(), fmt.Errorf("create: %w", err)
	}
	if err := checkUniqueIDs(created); err != nil {
		return r.finish(), err
	}

	// Step 3: Read back
	if err := r.verify(ctx, created); err != nil {
		return r.finish(), err
	}

	// Step 4: Update and read back
	updated := make([]model.Contact, len(created))
	err = r.each(ctx, len(created), func(ctx context.Context, i int) error {
		r.mu.Lock()
		u := mutate(created[i], r.rng)
		r.mu.Unlock()
		if err := r.api.Update(ctx, u); err != nil {
			return err
		}
		updated[i] = u
		r.count(func(s *Stats) { s.Updated++ })
		r.debug(ctx, "updated", u.ContactID)
		return nil
	})
	if err != nil {
		return r.finish(), fmt.Errorf("update: %w", err)
	}
	if err := r.verify(ctx, updated); err != nil {
		return r.finish(), err
	}

	if r.opts.Keep {
		return r.finish(), nil
	}

	// Step 5: Delete and confirm absence
	err = r.each(ctx, len(updated), func(ctx context.Context, i int) error {
		id := updated[i].ContactID
		if err := r.api.Delete(ctx, id); err != nil {
			return err
		}
		if _, err := r.api.Get(ctx, id); !errors.Is(err, client.ErrNotFound) {
			r.count(func(s *Stats) { s.Mismatched++ })
			return fmt.Errorf("%w: contact %d still readable after delete", ErrVerification, id)
		}
		r.count(func(s *Stats) { s.Deleted++ })
		r.debug(ctx, "deleted", id)
		return nil
	})
	if err != nil {
		return r.finish(), fmt.Errorf("delete: %w", err)
	}

	stats := r.finish()
	r.log.Info(ctx, "smoke run completed", logger.String("runID", runID))
	return stats, nil
}

// each runs fn for 0..n-1 on at most opts.Workers goroutines. The first error
// cancels the rest.
func (r *Runner) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			callCtx := gctx
			if r.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, r.opts.Timeout)
				defer cancel()
			}
			if err := fn(callCtx, i); err != nil {
				r.count(func(s *Stats) { s.Failed++ })
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) verify(ctx context.Context, want []model.Contact) error {
	return r.each(ctx, len(want), func(ctx context.Context, i int) error {
		got, err := r.api.Get(ctx, want[i].ContactID)
		if err != nil {
			return err
		}
		if got != want[i] {
			r.count(func(s *Stats) { s.Mismatched++ })
			return fmt.Errorf("%w: contact %d: got %+v, want %+v", ErrVerification, want[i].ContactID, got, want[i])
		}
		r.count(func(s *Stats) { s.Verified++ })
		return nil
	})
}

func checkUniqueIDs(cs []model.Contact) error {
	seen := make(map[model.ContactID]struct{}, len(cs))
	for _, c := range cs {
		if _, dup := seen[c.ContactID]; dup {
			return fmt.Errorf("%w: id %d assigned twice", ErrVerification, c.ContactID)
		}
		seen[c.ContactID] = struct{}{}
	}
	return nil
}

func (r *Runner) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Runner) debug(ctx context.Context, msg string, id model.ContactID) {
	if r.opts.Verbose {
		r.log.Info(ctx, msg, logger.Int("contactId", id))
	}
}

func (r *Runner) finish() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	s := r.stats

	var opsPerSecond float64
	if s.Duration > 0 {
		opsPerSecond = float64(s.Created+s.Verified+s.Updated+s.Deleted) / s.Duration.Seconds()
	}
	r.log.Info(context.Background(), "final statistics",
		logger.Int("created", s.Created),
		logger.Int("verified", s.Verified),
		logger.Int("updated", s.Updated),
		logger.Int("deleted", s.Deleted),
		logger.Int("mismatched", s.Mismatched),
		logger.Int("failed", s.Failed),
		logger.String("duration", s.Duration.String()),
		logger.Any("opsPerSecond", opsPerSecond),
	)
	return s
}
