package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
)

// ErrInProgress is returned by RunSync while another run holds the lock.
var ErrInProgress = errors.New("sync already in progress")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now for stamping runs and synced records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// Engine runs sync passes between a Repository and a remote.Adapter.
type Engine struct {
	repo     Repository
	adapter  remote.Adapter
	log      zerolog.Logger
	now      func() time.Time
	observer Observer

	mu gosync.Mutex
}

// New creates an engine. The adapter is fixed for the engine's lifetime.
func New(repo Repository, adapter remote.Adapter, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		adapter:  adapter,
		log:      zerolog.Nop(),
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "sync").Str("adapter", adapter.Name()).Logger()
	return e
}

// Adapter returns the remote adapter the engine pushes to.
func (e *Engine) Adapter() remote.Adapter {
	return e.adapter
}

// RunSync performs one full pass: push, pull and reconciliation for courses,
// then for tasks. It returns ErrInProgress without doing anything if another
// run is active. On failure the returned stats cover the work done before it.
func (e *Engine) RunSync(ctx context.Context) (*Stats, error) {
	if !e.mu.TryLock() {
		return nil, ErrInProgress
	}
	defer e.mu.Unlock()

	stats := &Stats{StartedAt: e.now()}
	e.observer.SyncStarted()
	e.log.Debug().Msg("sync started")

	err := e.run(ctx, stats)
	stats.FinishedAt = e.now()

	// History is written even when ctx was cancelled mid-run.
	if herr := e.repo.RecordSyncRun(context.WithoutCancel(ctx), stats.Run(err)); herr != nil {
		e.log.Warn().Err(herr).Msg("failed to record sync run")
	}

	if err != nil {
		e.log.Error().Err(err).Bool("retryable", remote.IsRetryable(err)).Msg("sync failed")
		e.observer.SyncFailed(err)
		return stats, err
	}

	total := stats.Total()
	e.log.Info().
		Int("pushed", total.Pushed).
		Int("pulled", total.Pulled).
		Int("skipped", total.Skipped).
		Int("archived", total.Archived).
		Int("dropped", total.Dropped).
		Dur("took", stats.Duration()).
		Msg("sync complete")
	e.observer.SyncCompleted(stats)
	return stats, nil
}

func (e *Engine) run(ctx context.Context, stats *Stats) error {
	for _, kind := range model.Kinds() {
		if err := e.push(ctx, kind, stats.For(kind)); err != nil {
			return err
		}
	}
	for _, kind := range model.Kinds() {
		if err := e.pull(ctx, kind, stats.For(kind)); err != nil {
			return err
		}
	}
	return nil
}

// push sends every record not yet synced.
func (e *Engine) push(ctx context.Context, kind model.Kind, ks *KindStats) error {
	records, err := e.repo.ListAll(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list local %s: %w", kind.Plural(), err)
	}

	for _, rec := range records {
		if rec.State() == model.SyncSynced {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.adapter.Push(ctx, rec); err != nil {
			return fmt.Errorf("failed to push %s %s: %w", kind, rec.RecordID(), err)
		}
		if err := e.repo.MarkSynced(ctx, kind, rec.RecordID(), model.FormatTimestamp(e.now())); err != nil {
			return fmt.Errorf("failed to mark %s %s synced: %w", kind, rec.RecordID(), err)
		}
		ks.Pushed++
		e.log.Debug().Str("kind", string(kind)).Str("id", rec.RecordID()).Msg("pushed")
	}
	return nil
}

// pull applies the remote snapshot of kind locally, then archives local
// records missing from it.
func (e *Engine) pull(ctx context.Context, kind model.Kind, ks *KindStats) error {
	snap, err := e.adapter.FetchAll(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to fetch remote %s: %w", kind.Plural(), err)
	}
	ks.Dropped += snap.Dropped

	records, err := e.repo.ListAll(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list local %s: %w", kind.Plural(), err)
	}
	local := make(map[string]model.Record, len(records))
	for _, rec := range records {
		local[rec.RecordID()] = rec
	}

	for _, rec := range snap.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := rec.RecordID()

		if cur, ok := local[id]; ok {
			if cur.State() == model.SyncPending {
				ks.Skipped++
				e.log.Debug().Str("kind", string(kind)).Str("id", id).Msg("local changes pending; skipping pull")
				continue
			}
			if model.NewerThan(cur.LastModified(), rec.LastModified()) {
				ks.Skipped++
				e.log.Debug().Str("kind", string(kind)).Str("id", id).Msg("local copy is newer; skipping pull")
				continue
			}
		}

		if err := e.repo.Upsert(ctx, rec); err != nil {
			if errors.Is(err, model.ErrInvalid) {
				ks.Dropped++
				e.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("skipping invalid remote record")
				continue
			}
			return fmt.Errorf("failed to store %s %s: %w", kind, id, err)
		}
		if err := e.repo.MarkSynced(ctx, kind, id, model.FormatTimestamp(e.now())); err != nil {
			return fmt.Errorf("failed to mark %s %s synced: %w", kind, id, err)
		}
		ks.Pulled++
	}

	if !snap.Complete {
		return nil
	}
	present := snap.IDs()
	for _, rec := range records {
		id := rec.RecordID()
		if rec.IsArchived() || rec.State() == model.SyncPending {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		if err := e.repo.ArchiveRemoved(ctx, kind, id); err != nil {
			return fmt.Errorf("failed to archive removed %s %s: %w", kind, id, err)
		}
		ks.Archived++
		e.log.Info().Str("kind", string(kind)).Str("id", id).Msg("archived record removed remotely")
	}
	return nil
}
