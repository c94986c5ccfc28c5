package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// sessionInfo holds metadata about one active websocket session.
type sessionInfo struct {
	InterviewID string
	StartedAt   time.Time
	cancel      context.CancelFunc
}

// sessionRegistry tracks active interview sessions. At most one session may
// be attached to an interview at a time; a second connection for the same
// interview is rejected before the websocket upgrade. Safe for concurrent use.
type sessionRegistry struct {
	mu     sync.Mutex
	active map[string]sessionInfo
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{active: make(map[string]sessionInfo)}
}

// acquire claims the interview for a new session and returns a context that
// cancelAll can end. Fails when a session is already attached.
func (r *sessionRegistry) acquire(ctx context.Context, interviewID string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.active[interviewID]; ok {
		return nil, fmt.Errorf("a session for interview %s is already active (since %s)",
			interviewID, info.StartedAt.Format(time.RFC3339))
	}

	ctx, cancel := context.WithCancel(ctx)
	r.active[interviewID] = sessionInfo{
		InterviewID: interviewID,
		StartedAt:   time.Now().UTC(),
		cancel:      cancel,
	}
	return ctx, nil
}

// release frees the interview's session slot.
func (r *sessionRegistry) release(interviewID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.active[interviewID]; ok {
		info.cancel()
		delete(r.active, interviewID)
	}
}

// count reports the number of active sessions.
func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// cancelAll ends every active session's context. Used during shutdown so
// websocket read loops unblock and handlers return.
func (r *sessionRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, info := range r.active {
		info.cancel()
		delete(r.active, id)
	}
}
