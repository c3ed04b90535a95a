package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
	"github.com/taskion/taskion/internal/store"
	tsync "github.com/taskion/taskion/internal/sync"
)

// Record actions reported in RecordUpdateData.
const (
	ActionCreated    = "created"
	ActionUpdated    = "updated"
	ActionArchived   = "archived"
	ActionUnarchived = "unarchived"
)

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Courses    tsync.KindStats `json:"courses"`
	Tasks      tsync.KindStats `json:"tasks"`
	DurationMS int64           `json:"duration_ms"`
}

// SyncFailedData describes an aborted pass
type SyncFailedData struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// RecordUpdateData contains record change information
type RecordUpdateData struct {
	Kind   model.Kind      `json:"kind"`
	ID     string          `json:"id"`
	Title  string          `json:"title,omitempty"`
	State  model.SyncState `json:"sync_state,omitempty"`
	Action string          `json:"action"`
}

// StatsData contains table counts
type StatsData struct {
	Courses store.Counts `json:"courses"`
	Tasks   store.Counts `json:"tasks"`
	Clients int          `json:"clients"`
}

// CountSource supplies table counts. *store.DB satisfies it.
type CountSource interface {
	Counts(ctx context.Context, kind model.Kind) (*store.Counts, error)
}

// Handler formats engine and API events as dashboard messages. It
// implements sync.Observer.
type Handler struct {
	hub    *Hub
	counts CountSource
	log    zerolog.Logger
}

var _ tsync.Observer = (*Handler)(nil)

// NewHandler creates a handler feeding hub. When counts is non-nil, new
// clients are greeted with a stats message and stats follow every
// completed pass.
func NewHandler(hub *Hub, counts CountSource, logger zerolog.Logger) *Handler {
	h := &Handler{
		hub:    hub,
		counts: counts,
		log:    logger.With().Str("component", "dashboard").Logger(),
	}
	if counts != nil {
		hub.Welcome = h.statsMessage
	}
	return h
}

// SyncStarted implements sync.Observer.
func (h *Handler) SyncStarted() {
	h.hub.Broadcast(Message{Type: MessageTypeSyncStarted})
}

// SyncCompleted implements sync.Observer.
func (h *Handler) SyncCompleted(stats *tsync.Stats) {
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		Courses:    stats.Courses,
		Tasks:      stats.Tasks,
		DurationMS: stats.Duration().Milliseconds(),
	})
	h.BroadcastStats()
}

// SyncFailed implements sync.Observer.
func (h *Handler) SyncFailed(err error) {
	h.send(MessageTypeSyncFailed, SyncFailedData{
		Error:     err.Error(),
		Retryable: remote.IsRetryable(err),
	})
}

// RecordChanged announces a local change to rec.
func (h *Handler) RecordChanged(rec model.Record, action string) {
	h.send(MessageTypeRecordUpdate, RecordUpdateData{
		Kind:   rec.RecordKind(),
		ID:     rec.RecordID(),
		Title:  rec.RecordTitle(),
		State:  rec.State(),
		Action: action,
	})
}

// BroadcastStats sends current table counts to every client.
func (h *Handler) BroadcastStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if msg, ok := h.statsMessage(ctx); ok {
		h.hub.Broadcast(msg)
	}
}

func (h *Handler) statsMessage(ctx context.Context) (Message, bool) {
	if h.counts == nil {
		return Message{}, false
	}

	data := StatsData{Clients: h.hub.ClientCount()}
	for _, kind := range model.Kinds() {
		c, err := h.counts.Counts(ctx, kind)
		if err != nil {
			h.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to count records")
			return Message{}, false
		}
		if kind == model.KindCourse {
			data.Courses = *c
		} else {
			data.Tasks = *c
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal stats")
		return Message{}, false
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: raw}, true
}

func (h *Handler) send(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(typ)).Msg("failed to marshal message")
		return
	}
	h.hub.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: raw})
}
