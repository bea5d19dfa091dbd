package reliability

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateID is returned when an Id has already been transmitted.
var ErrDuplicateID = errors.New("event Id already transmitted")

// State represents the state of a tracked submission
type State int

const (
	StateReserved State = iota // Id claimed, transmission under way
	StateSent                  // Service accepted the lot
	StateRejected              // Service answered with a rejection
	StateFailed                // No answer was obtained
)

func (s State) String() string {
	switch s {
	case StateReserved:
		return "reserved"
	case StateSent:
		return "sent"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Submission is the tracked record of one event Id
type Submission struct {
	EventID     string
	ContentHash string
	State       State
	ReservedAt  time.Time
	CompletedAt time.Time
	Protocol    string
	Error       string
}

// Tracker records which event Ids have been transmitted
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Submission
	window  time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker that remembers Ids for window. A zero
// window remembers them for the life of the process.
func NewTracker(window time.Duration) *Tracker {
	t := &Tracker{
		entries: make(map[string]*Submission),
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if window > 0 {
		go t.cleanupExpired(window)
	}
	return t
}

// Close stops the background cleanup.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Reserve claims id for transmission of content. It fails with
// ErrDuplicateID when id was reserved before and has not expired.
func (t *Tracker) Reserve(id string, content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if existing, ok := t.entries[id]; ok && !t.expired(existing, now) {
		return fmt.Errorf("%w: %s (%s at %s)", ErrDuplicateID, id, existing.State, existing.ReservedAt.Format(time.RFC3339))
	}

	t.entries[id] = &Submission{
		EventID:     id,
		ContentHash: ContentHash(content),
		State:       StateReserved,
		ReservedAt:  now,
	}
	return nil
}

// MarkSent records that the service accepted the lot carrying id
func (t *Tracker) MarkSent(id, protocol string) error {
	return t.complete(id, func(s *Submission) {
		s.State = StateSent
		s.Protocol = protocol
	})
}

// MarkRejected records that the service rejected the lot carrying id
func (t *Tracker) MarkRejected(id, reason string) error {
	return t.complete(id, func(s *Submission) {
		s.State = StateRejected
		s.Error = reason
	})
}

// MarkFailed records that no answer was obtained for id
func (t *Tracker) MarkFailed(id string, err error) error {
	return t.complete(id, func(s *Submission) {
		s.State = StateFailed
		if err != nil {
			s.Error = err.Error()
		}
	})
}

func (t *Tracker) complete(id string, update func(*Submission)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("event %s not tracked", id)
	}
	update(s)
	s.CompletedAt = t.now()
	return nil
}

// Get returns a copy of the record for id
func (t *Tracker) Get(id string) (Submission, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.entries[id]
	if !ok || t.expired(s, t.now()) {
		return Submission{}, false
	}
	return *s, true
}

// Len returns the number of remembered Ids
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tracker) expired(s *Submission, now time.Time) bool {
	return t.window > 0 && now.Sub(s.ReservedAt) > t.window
}

func (t *Tracker) cleanupExpired(interval time.Duration) {
	if interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.purge()
		}
	}
}

func (t *Tracker) purge() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, s := range t.entries {
		if t.expired(s, now) {
			delete(t.entries, id)
		}
	}
}

// ContentHash computes the SHA-256 of a signed document
func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
