// Package remote defines the contract between the sync engine and a remote
// page/property service, plus the adapter used when no remote is configured.
//
// The engine is written against Adapter only. Which implementation backs it
// is decided once at startup:
//
//	adapter := remote.Adapter(remote.Disabled{})
//	if cfg.RemoteConfigured() {
//	    adapter = notion.New(notionCfg)
//	}
//	engine := sync.New(db, adapter)
package remote

import (
	"context"

	"github.com/taskion/taskion/internal/model"
)

// Adapter fetches and pushes records of a remote collection.
type Adapter interface {
	// Name identifies the adapter in logs and status output.
	Name() string

	// FetchAll returns the remote records of kind. Records that cannot be
	// translated are left out and counted in Snapshot.Dropped; they never
	// fail the fetch.
	FetchAll(ctx context.Context, kind model.Kind) (*Snapshot, error)

	// Push creates or updates the remote copy of rec, keyed by its id.
	Push(ctx context.Context, rec model.Record) error
}

// Snapshot is the result of one FetchAll call.
type Snapshot struct {
	Kind    model.Kind
	Records []model.Record

	// Complete is true only when Records is the whole remote collection.
	// Absence from an incomplete snapshot says nothing about a record.
	Complete bool

	// Dropped counts remote entries skipped because they could not be
	// translated.
	Dropped int

	// Untranslated lists ids of dropped entries whose id was still
	// readable. They exist remotely even though no record came back.
	Untranslated []string
}

// IDs returns the set of ids known to exist remotely: every translated
// record plus the untranslated ones.
func (s *Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Records)+len(s.Untranslated))
	for _, rec := range s.Records {
		ids[rec.RecordID()] = struct{}{}
	}
	for _, id := range s.Untranslated {
		ids[id] = struct{}{}
	}
	return ids
}

// Disabled is the adapter used when the remote is not configured. It
// fetches nothing and accepts every push without side effects, so local
// records are marked synced and kept.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) FetchAll(_ context.Context, kind model.Kind) (*Snapshot, error) {
	return &Snapshot{Kind: kind, Complete: false}, nil
}

func (Disabled) Push(context.Context, model.Record) error { return nil }
