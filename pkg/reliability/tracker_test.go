package reliability

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ReserveRejectsReuse(t *testing.T) {
	tracker := NewTracker(time.Hour)
	defer tracker.Close()

	require.NoError(t, tracker.Reserve("ID1", []byte("<a/>")))

	err := tracker.Reserve("ID1", []byte("<b/>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))

	s, ok := tracker.Get("ID1")
	require.True(t, ok)
	assert.Equal(t, StateReserved, s.State)
	assert.Equal(t, ContentHash([]byte("<a/>")), s.ContentHash)
}

func TestTracker_FailedIdStaysReserved(t *testing.T) {
	tracker := NewTracker(0)
	defer tracker.Close()

	require.NoError(t, tracker.Reserve("ID1", nil))
	require.NoError(t, tracker.MarkFailed("ID1", errors.New("connection reset")))

	s, ok := tracker.Get("ID1")
	require.True(t, ok)
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, "connection reset", s.Error)
	assert.False(t, s.CompletedAt.IsZero())

	assert.ErrorIs(t, tracker.Reserve("ID1", nil), ErrDuplicateID)
}

func TestTracker_StateTransitions(t *testing.T) {
	tracker := NewTracker(0)
	defer tracker.Close()

	require.NoError(t, tracker.Reserve("ID1", nil))
	require.NoError(t, tracker.MarkSent("ID1", "1.2.3"))
	s, _ := tracker.Get("ID1")
	assert.Equal(t, StateSent, s.State)
	assert.Equal(t, "1.2.3", s.Protocol)

	require.NoError(t, tracker.Reserve("ID2", nil))
	require.NoError(t, tracker.MarkRejected("ID2", "401 Lote Incorreto"))
	s, _ = tracker.Get("ID2")
	assert.Equal(t, StateRejected, s.State)
	assert.Equal(t, "rejected", s.State.String())

	assert.Error(t, tracker.MarkSent("unknown", ""))
	assert.Equal(t, 2, tracker.Len())
}

func TestTracker_WindowExpiry(t *testing.T) {
	tracker := NewTracker(time.Hour)
	defer tracker.Close()

	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	require.NoError(t, tracker.Reserve("ID1", nil))

	now = now.Add(2 * time.Hour)
	_, ok := tracker.Get("ID1")
	assert.False(t, ok)
	assert.NoError(t, tracker.Reserve("ID1", nil))

	now = now.Add(2 * time.Hour)
	tracker.purge()
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_ConcurrentReserve(t *testing.T) {
	tracker := NewTracker(0)
	defer tracker.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.Reserve("ID-shared", nil) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	tracker := NewTracker(time.Minute)
	tracker.Close()
	assert.NotPanics(t, tracker.Close)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateReserved: "reserved",
		StateSent:     "sent",
		StateRejected: "rejected",
		StateFailed:   "failed",
		State(9):      fmt.Sprintf("State(%d)", 9),
	} {
		assert.Equal(t, want, s.String())
	}
}
