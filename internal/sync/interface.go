package sync

import (
	"context"

	"github.com/taskion/taskion/internal/model"
)

// Repository is the part of the local store the engine needs.
// *store.DB satisfies it.
type Repository interface {
	// ListAll returns every record of kind, archived ones included.
	ListAll(ctx context.Context, kind model.Kind) ([]model.Record, error)

	// Upsert writes the content of rec. Sync bookkeeping of an existing
	// record is left alone.
	Upsert(ctx context.Context, rec model.Record) error

	// MarkSynced sets the record's state to synced and its last-synced
	// timestamp to at.
	MarkSynced(ctx context.Context, kind model.Kind, id string, at string) error

	// ArchiveRemoved archives a record that no longer exists remotely
	// without queueing it for push.
	ArchiveRemoved(ctx context.Context, kind model.Kind, id string) error

	// RecordSyncRun appends a finished run to the history.
	RecordSyncRun(ctx context.Context, run *model.SyncRun) error
}

// Observer is notified about run progress. Implementations must not block.
type Observer interface {
	SyncStarted()
	SyncCompleted(stats *Stats)
	SyncFailed(err error)
}

type nopObserver struct{}

func (nopObserver) SyncStarted() {}
func (nopObserver) SyncCompleted(*Stats) {}
func (nopObserver) SyncFailed(error) {}
