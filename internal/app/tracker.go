// Package app applies lifecycle events to live positions.
package app

import (
	"context"
	"fmt"
	"sync"

	"tradecore/internal/domain"
	"tradecore/internal/lifecycle"
	"tradecore/internal/ports"
)

type positionKey struct {
	botID      string
	positionID string
}

// positionLock serializes events for one position. refs counts holders and waiters; the entry
// is dropped from the tracker when it reaches zero.
type positionLock struct {
	mu   sync.Mutex
	refs int
}

// PositionTracker is the single writer of live position state. Events for one position are
// applied in call order; events for different positions run in parallel.
type PositionTracker struct {
	store  ports.PositionStore
	logger ports.Logger

	mu    sync.Mutex // Protects locks and cache
	locks map[positionKey]*positionLock
	cache map[positionKey]*domain.PositionState
}

// NewPositionTracker creates a tracker backed by store.
func NewPositionTracker(store ports.PositionStore, logger ports.Logger) (*PositionTracker, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("%w: position store and logger are required", ports.ErrConfigurationError)
	}
	return &PositionTracker{
		store:  store,
		logger: logger,
		locks:  make(map[positionKey]*positionLock),
		cache:  make(map[positionKey]*domain.PositionState),
	}, nil
}

// Restore loads every active position of a bot into the cache, typically at startup.
func (t *PositionTracker) Restore(ctx context.Context, botID string) (int, error) {
	positions, err := t.store.FindActiveByBot(ctx, botID)
	if err != nil {
		return 0, fmt.Errorf("restoring positions for bot %s: %w", botID, err)
	}

	t.mu.Lock()
	for _, p := range positions {
		t.cache[positionKey{p.BotID, p.PositionID}] = p
	}
	t.mu.Unlock()

	t.logger.Info(ctx, "Positions restored", map[string]interface{}{"botId": botID, "count": len(positions)})
	return len(positions), nil
}

// Apply transitions the position identified by botID and positionID with ev and persists the
// outcome. It returns the new state, or nil when the position stays absent. Events the current
// status ignores are not persisted. The returned value is a copy the caller may keep.
func (t *PositionTracker) Apply(ctx context.Context, botID, positionID string, ev lifecycle.Event) (*domain.PositionState, error) {
	if botID == "" || positionID == "" {
		return nil, fmt.Errorf("%w: bot and position id are required", ports.ErrInvalidRequest)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: event is required", ports.ErrInvalidRequest)
	}

	key := positionKey{botID, positionID}
	lock := t.acquire(key)
	defer t.release(key, lock)

	current, err := t.current(ctx, key)
	if err != nil {
		return nil, err
	}

	next := lifecycle.Transition(current, ev)
	if next == nil {
		t.logger.Debug(ctx, "Event ignored for absent position", map[string]interface{}{
			"botId":      botID,
			"positionId": positionID,
			"event":      string(ev.Type()),
		})
		return nil, nil
	}
	if next == current {
		t.logger.Debug(ctx, "Event ignored in current status", map[string]interface{}{
			"botId":      botID,
			"positionId": positionID,
			"event":      string(ev.Type()),
			"status":     string(current.Status),
		})
		return current.Clone(), nil
	}
	// Records created by the transition carry the ids of the event; the key wins.
	next.BotID, next.PositionID = botID, positionID

	if err := t.store.SavePosition(ctx, next); err != nil {
		t.logger.Error(ctx, err, "Failed to persist position", map[string]interface{}{
			"botId":      botID,
			"positionId": positionID,
			"event":      string(ev.Type()),
		})
		return nil, fmt.Errorf("persisting position %s: %w", positionID, err)
	}

	t.mu.Lock()
	if next.Status == domain.StatusClosed {
		delete(t.cache, key)
	} else {
		t.cache[key] = next
	}
	t.mu.Unlock()

	fields := map[string]interface{}{
		"botId":      botID,
		"positionId": positionID,
		"event":      string(ev.Type()),
		"status":     string(next.Status),
		"remaining":  next.RemainingQuantity,
	}
	if current != nil {
		fields["previousStatus"] = string(current.Status)
	}
	t.logger.Info(ctx, "Position updated", fields)

	return next.Clone(), nil
}

// Get returns a copy of the cached or stored position, or nil when unknown.
func (t *PositionTracker) Get(ctx context.Context, botID, positionID string) (*domain.PositionState, error) {
	key := positionKey{botID, positionID}
	lock := t.acquire(key)
	defer t.release(key, lock)

	p, err := t.current(ctx, key)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (t *PositionTracker) acquire(key positionKey) *positionLock {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &positionLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return l
}

func (t *PositionTracker) release(key positionKey, l *positionLock) {
	l.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

// current must be called with the position lock held.
func (t *PositionTracker) current(ctx context.Context, key positionKey) (*domain.PositionState, error) {
	t.mu.Lock()
	cached, ok := t.cache[key]
	t.mu.Unlock()
	if ok {
		return cached, nil
	}

	stored, err := t.store.FindPosition(ctx, key.botID, key.positionID)
	if err != nil {
		return nil, fmt.Errorf("loading position %s: %w", key.positionID, err)
	}
	if stored != nil && stored.Status != domain.StatusClosed {
		t.mu.Lock()
		t.cache[key] = stored
		t.mu.Unlock()
	}
	return stored, nil
}
