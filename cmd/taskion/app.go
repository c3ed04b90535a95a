package main

import (
	"context"
	"fmt"

	"github.com/taskion/taskion/internal/remote"
	"github.com/taskion/taskion/internal/remote/notion"
	"github.com/taskion/taskion/internal/store"
	tsync "github.com/taskion/taskion/internal/sync"
)

// openStore opens the configured database and creates missing tables.
func openStore(ctx context.Context) (*store.DB, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newAdapter returns the Notion client, or the disabled adapter with a
// warning when the remote is not fully configured.
func newAdapter() remote.Adapter {
	if err := cfg.RemoteConfigured(); err != nil {
		logger.Warn().Err(err).Msg("remote sync disabled; records stay local")
		return remote.Disabled{}
	}

	nc := notion.DefaultConfig()
	nc.Token = cfg.Notion.Token
	nc.CoursesDB = cfg.Notion.CoursesDB
	nc.TasksDB = cfg.Notion.TasksDB
	nc.BaseURL = cfg.Notion.BaseURL
	nc.Timeout = cfg.Notion.Timeout
	nc.Logger = logger

	client, err := notion.New(nc)
	if err != nil {
		logger.Warn().Err(err).Msg("remote sync disabled")
		return remote.Disabled{}
	}
	return client
}

func newEngine(db *store.DB, opts ...tsync.Option) *tsync.Engine {
	opts = append([]tsync.Option{tsync.WithLogger(logger)}, opts...)
	return tsync.New(db, newAdapter(), opts...)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
