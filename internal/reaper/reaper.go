// Package reaper evicts sessions that have been idle longer than the TTL.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

const JobName = "session_reaper"

type Reaper struct {
	sessions *store.SessionStore
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func New(sessions *store.SessionStore, ttl time.Duration, now func() time.Time, log *zap.Logger) *Reaper {
	if now == nil {
		now = time.Now
	}
	return &Reaper{sessions: sessions, ttl: ttl, now: now, log: log}
}

func (r *Reaper) Name() string {
	return JobName
}

// Run takes one snapshot of expired ids and deletes each one that is still
// idle. Sessions touched or deleted since the snapshot are skipped.
func (r *Reaper) Run(ctx context.Context) error {
	now := r.now()
	expired := r.sessions.ListExpired(now, r.ttl)
	deleted := 0
	for _, id := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.sessions.DeleteIfIdle(id, now, r.ttl) {
			deleted++
			r.log.Info("session expired", zap.String("session_id", id))
		}
	}
	if len(expired) > 0 {
		r.log.Info("reaper tick",
			zap.Int("expired", len(expired)),
			zap.Int("deleted", deleted),
			zap.Int("remaining", r.sessions.Len()),
		)
	}
	return nil
}
