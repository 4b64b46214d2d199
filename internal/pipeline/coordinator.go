package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/voxstream/coordinator/internal/metrics"
	"github.com/voxstream/coordinator/internal/observe"
	"github.com/voxstream/coordinator/pkg/transport"
)

// NewSessionID generates a random session identifier for a new connection
// that did not arrive with one already assigned by the surrounding
// transport (e.g. a room/participant ID).
func NewSessionID() string {
	return uuid.NewString()
}

// Coordinator is the keyed registry of active sessions, bounded to a
// maximum concurrency so one coordinator process does not overcommit its
// backend provider quotas.
type Coordinator struct {
	mu             sync.Mutex
	sessions       map[string]*Session
	maxSessions    int
	metrics        *observe.Metrics
	metricsManager *metrics.Manager
}

// NewCoordinator creates a Coordinator bounded to maxSessions concurrently
// active sessions. A non-positive maxSessions defaults to 10. metricsManager
// may be nil to disable per-session JSONL/rolling-aggregate metrics.
func NewCoordinator(maxSessions int, obsMetrics *observe.Metrics, metricsManager *metrics.Manager) *Coordinator {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &Coordinator{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		metrics:        obsMetrics,
		metricsManager: metricsManager,
	}
}

// ErrSessionExists is returned by Start when sessionID is already active.
var ErrSessionExists = errors.New("pipeline: session already active")

// ErrAtCapacity is returned by Start when the coordinator already holds
// maxSessions active sessions.
var ErrAtCapacity = errors.New("pipeline: at max concurrent sessions")

// Start registers and runs a new session under sessionID, returning
// immediately; the session runs in its own goroutine until ctx is
// cancelled, the participant disconnects, or Stop is called.
func (c *Coordinator) Start(ctx context.Context, sessionID string, conn transport.Connection, deps SessionDeps) (*Session, error) {
	deps.Metrics = c.metrics
	deps.MetricsManager = c.metricsManager

	c.mu.Lock()
	if _, exists := c.sessions[sessionID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, sessionID)
	}
	if len(c.sessions) >= c.maxSessions {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrAtCapacity, c.maxSessions)
	}
	runCtx, cancel := context.WithCancel(ctx)
	sess := newSession(sessionID, conn, deps)
	sess.lifecycleCancel = cancel
	c.sessions[sessionID] = sess
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, 1)
	}

	go func() {
		defer c.remove(sessionID)
		if err := sess.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session exited with error", "session_id", sessionID, "error", err)
		}
	}()

	return sess, nil
}

func (c *Coordinator) remove(sessionID string) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	if ok {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		slog.Warn("error closing session", "session_id", sessionID, "error", err)
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// Stop cancels sessionID's run loop; cleanup happens asynchronously as its
// goroutines unwind and remove it from the registry. Returns an error if
// sessionID is not active.
func (c *Coordinator) Stop(sessionID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: unknown session %q", sessionID)
	}
	sess.lifecycleCancel()
	return nil
}

// Get returns the active session for sessionID, if any.
func (c *Coordinator) Get(sessionID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	return s, ok
}

// Count returns the number of currently active sessions.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// MetricsAggregate returns the current rolling metrics aggregate, or the
// zero value if no [metrics.Manager] was configured.
func (c *Coordinator) MetricsAggregate() metrics.Aggregate {
	if c.metricsManager == nil {
		return metrics.Aggregate{}
	}
	return c.metricsManager.Aggregate()
}
