package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/domain"
	"tradecore/internal/lifecycle"
	"tradecore/internal/ports"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockStore struct {
	mu        sync.Mutex
	positions map[string]*domain.PositionState
	saves     int
	finds     int
	saveErr   error
}

func newMockStore() *mockStore {
	return &mockStore{positions: make(map[string]*domain.PositionState)}
}

func (m *mockStore) SavePosition(ctx context.Context, pos *domain.PositionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.positions[pos.BotID+"/"+pos.PositionID] = pos.Clone()
	return nil
}

func (m *mockStore) FindPosition(ctx context.Context, botID, positionID string) (*domain.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	return m.positions[botID+"/"+positionID].Clone(), nil
}

func (m *mockStore) FindActiveByBot(ctx context.Context, botID string) ([]*domain.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PositionState
	for _, p := range m.positions {
		if p.BotID == botID && p.Status != domain.StatusClosed {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func enterEvent() lifecycle.EnterEvent {
	return lifecycle.EnterEvent{
		BotID:      "bot-1",
		PositionID: "pos-1",
		Symbol:     "BTCUSDT",
		Side:       domain.SideLong,
		Quantity:   2,
		EntryPrice: 100,
		StopPrice:  95,
		AtMs:       1000,
	}
}

func newTracker(t *testing.T, store ports.PositionStore) (*PositionTracker, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	tracker, err := NewPositionTracker(store, logger)
	require.NoError(t, err)
	return tracker, logger
}

func TestNewPositionTracker_RequiresDependencies(t *testing.T) {
	_, err := NewPositionTracker(nil, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = NewPositionTracker(newMockStore(), nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestApply_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	tracker, logger := newTracker(t, store)

	pos, err := tracker.Apply(ctx, "bot-1", "pos-1", enterEvent())
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusEntryPending, pos.Status)

	pos, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.PositionSyncEvent{Quantity: 2, AvgEntryPrice: 100.5, AtMs: 2000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, 100.5, pos.AvgEntryPrice)

	pos, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.ReduceEvent{RemainingQuantity: 1, RealizedPnlDelta: 5, AtMs: 3000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReducing, pos.Status)

	pos, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.CloseEvent{RealizedPnlDelta: 3, AtMs: 4000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, pos.Status)
	assert.Equal(t, 8.0, pos.RealizedPnl)
	assert.Equal(t, int64(4000), pos.ClosedAtMs)

	stored, _ := store.FindPosition(ctx, "bot-1", "pos-1")
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Equal(t, 4, store.saves)
	assert.Len(t, logger.infoMsgs, 4)

	// Only the first event had to consult the store.
	assert.Equal(t, 2, store.finds)
}

func TestApply_AbsentPositionIsNotPersisted(t *testing.T) {
	store := newMockStore()
	tracker, _ := newTracker(t, store)

	pos, err := tracker.Apply(context.Background(), "bot-1", "missing", lifecycle.CloseEvent{AtMs: 1})
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.Zero(t, store.saves)
}

func TestApply_LoadsFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SavePosition(ctx, &domain.PositionState{
		BotID: "bot-1", PositionID: "pos-9", Side: domain.SideShort, Status: domain.StatusOpen,
		Quantity: 3, RemainingQuantity: 3, AvgEntryPrice: 50, StopPrice: 55,
	}))
	tracker, _ := newTracker(t, store)

	pos, err := tracker.Apply(ctx, "bot-1", "pos-9", lifecycle.MoveStopEvent{StopPrice: 52, AtMs: 10})
	require.NoError(t, err)
	assert.Equal(t, 52.0, pos.StopPrice)
	assert.Equal(t, 3.0, pos.RemainingQuantity)
}

func TestApply_InvalidRequest(t *testing.T) {
	tracker, _ := newTracker(t, newMockStore())

	_, err := tracker.Apply(context.Background(), "", "pos-1", enterEvent())
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	_, err = tracker.Apply(context.Background(), "bot-1", "pos-1", nil)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestApply_PersistFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	tracker, logger := newTracker(t, store)

	_, err := tracker.Apply(ctx, "bot-1", "pos-1", enterEvent())
	require.NoError(t, err)

	store.saveErr = ports.ErrUpdateFailed
	_, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.OrderRejectedEvent{OrderID: "o-1", AtMs: 5})
	assert.True(t, errors.Is(err, ports.ErrUpdateFailed))
	assert.Len(t, logger.errorMsgs, 1)

	pos, err := tracker.Get(ctx, "bot-1", "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEntryPending, pos.Status)
}

func TestApply_SerializesSamePosition(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, newMockStore())

	_, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.PositionSyncEvent{Quantity: 100, AvgEntryPrice: 10, AtMs: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.MoveStopEvent{StopPrice: 9, AtMs: 2})
			assert.NoError(t, err)
			_, err = tracker.Apply(ctx, "bot-1", "pos-2", lifecycle.PositionSyncEvent{Quantity: 1, AvgEntryPrice: 10, AtMs: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Reduce deltas accumulate without lost updates.
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.ReduceEvent{RemainingQuantity: 50, RealizedPnlDelta: 1, AtMs: 3})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pos, err := tracker.Get(ctx, "bot-1", "pos-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, pos.RealizedPnl)
	assert.Equal(t, 9.0, pos.StopPrice)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SavePosition(ctx, &domain.PositionState{BotID: "bot-1", PositionID: "a", Status: domain.StatusOpen, Quantity: 1, RemainingQuantity: 1}))
	require.NoError(t, store.SavePosition(ctx, &domain.PositionState{BotID: "bot-1", PositionID: "b", Status: domain.StatusClosed}))
	tracker, _ := newTracker(t, store)

	n, err := tracker.Restore(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	findsBefore := store.finds
	_, err = tracker.Get(ctx, "bot-1", "a")
	require.NoError(t, err)
	assert.Equal(t, findsBefore, store.finds)
}

func TestApply_ReentersClosedPosition(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SavePosition(ctx, &domain.PositionState{
		BotID: "bot-1", PositionID: "pos-1", Symbol: "BTCUSDT", Side: domain.SideLong, Status: domain.StatusClosed,
		Quantity: 1, RealizedPnl: 7, OpenedAtMs: 10, ClosedAtMs: 20,
	}))
	tracker, _ := newTracker(t, store)

	pos, err := tracker.Apply(ctx, "bot-1", "pos-1", enterEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEntryPending, pos.Status)
	assert.Equal(t, 2.0, pos.RemainingQuantity)
	assert.Zero(t, pos.ClosedAtMs)
	assert.Zero(t, pos.RealizedPnl)

	stored, _ := store.FindPosition(ctx, "bot-1", "pos-1")
	assert.Equal(t, domain.StatusEntryPending, stored.Status)
}

func TestApply_ErrorStatusIgnoresStrategyEvents(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	tracker, _ := newTracker(t, store)

	_, err := tracker.Apply(ctx, "bot-1", "pos-1", enterEvent())
	require.NoError(t, err)
	_, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.OrderRejectedEvent{OrderID: "o-1", AtMs: 5})
	require.NoError(t, err)
	saves := store.saves

	pos, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.ReduceEvent{RemainingQuantity: 1, AtMs: 6})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, pos.Status)
	assert.Equal(t, 2.0, pos.RemainingQuantity)
	assert.Equal(t, saves, store.saves)

	pos, err = tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.PositionSyncEvent{Quantity: 2, AvgEntryPrice: 100, AtMs: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, pos.Status)
}

func TestApply_ReleasesPositionLocks(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t, newMockStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.PositionSyncEvent{Quantity: 1, AvgEntryPrice: 10, AtMs: 1})
			assert.NoError(t, err)
			_, err = tracker.Get(ctx, "bot-1", "pos-2")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := tracker.Apply(ctx, "bot-1", "pos-1", lifecycle.CloseEvent{AtMs: 2})
	require.NoError(t, err)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.locks)
	assert.Empty(t, tracker.cache)
}
