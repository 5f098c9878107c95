// Package audit is the append-only sink every workflow transition and
// ledger event reports to. Entries are never updated or deleted.
package audit

import (
	"context"
	"log/slog"
	"time"
)

type Entry struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  string
	At       time.Time
	Metadata map[string]any
}

type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// LogSink writes entries to slog. Used as a fallback and in tests;
// production wires the postgres store.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Entry) error {
	slog.Info("audit",
		"entity", e.Entity,
		"entity_id", e.EntityID,
		"action", e.Action,
		"actor", e.ActorID,
		"metadata", e.Metadata,
	)

	return nil
}

// NopSink discards entries.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) error { return nil }
