package model

import (
	"context"
	"time"
)

// Session is the live, TTL-bounded bookkeeping record for one owner's Job:
// the Job itself plus the routing metadata the approval protocol needs (which
// status message to edit, which selection step is pending) and the cancel
// token for in-flight pipeline work. Owned exclusively by the session store.
type Session struct {
	Owner int64
	Job   *Job

	// MessageRef identifies the front-end status message being edited for
	// this job. Opaque to the core; zero means "no message yet".
	MessageRef int

	// Pending is the selection step the approval sub-protocol is waiting on,
	// empty when no selection is in progress.
	Pending SelectionField

	// Cancel stops the pipeline task currently running for this job, if any.
	Cancel context.CancelFunc

	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Expired reports whether the session has been inactive longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivityAt) > ttl
}
