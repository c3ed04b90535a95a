// Package sync reconciles the local store with a remote adapter.
//
// # Overview
//
// A sync run has three phases, executed per record kind, courses first so
// that task relations can resolve against courses the remote already knows:
//
//	local store ──push pending──▶ remote
//	local store ◀──pull newer──── remote
//	local store ◀─archive absent─ remote (complete snapshots only)
//
// Push sends every record whose sync state is not synced and marks it synced.
// The first push failure aborts the run; records pushed before it stay
// synced and are not pushed again next time.
//
// Pull fetches the remote collection and writes each remote record locally
// unless the local copy has unpushed changes or carries a strictly newer
// timestamp. Timestamps that do not parse never block a pull.
//
// Reconciliation archives local records that have disappeared remotely. It
// only runs when the adapter reports the snapshot as complete, so a
// truncated fetch or a disabled remote never archives anything.
//
// # Usage
//
//	db, err := store.Open("taskion.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	engine := sync.New(db, remote.Disabled{}, sync.WithLogger(logger))
//	stats, err := engine.RunSync(ctx)
//	if errors.Is(err, sync.ErrInProgress) {
//	    // another run holds the lock
//	}
//
// # Concurrency
//
// RunSync holds a run lock for its whole duration. A second caller does not
// wait; it gets ErrInProgress immediately.
package sync
