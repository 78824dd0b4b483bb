package locks

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gamenight/livescore/go/internal/models"
)

// DefaultLease is how long a lock stays valid without being re-acquired.
const DefaultLease = 5 * time.Minute

// Key identifies one editable field of one team in one game.
type Key struct {
	GameID int64
	TeamID int64
	Field  string
}

// Result reports the outcome of an Acquire attempt. When Granted is false,
// LockedBy carries the current holder's display name.
type Result struct {
	Granted  bool
	LockedBy string
}

// Manager grants exclusive, time-leased editing rights on score fields.
// Locks are advisory: clients are expected, not forced, to honor denials.
// Leases are fixed; only a re-acquire by the same holder resets the clock,
// so a missed disconnect bounds staleness to the lease duration.
type Manager struct {
	mu    sync.Mutex
	locks map[Key]models.FieldLock
	lease time.Duration
	clock clockwork.Clock
}

// NewManager creates a lock manager with the given lease duration. A lease
// of zero or less falls back to DefaultLease.
func NewManager(lease time.Duration, clock clockwork.Clock) *Manager {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Manager{
		locks: make(map[Key]models.FieldLock),
		lease: lease,
		clock: clock,
	}
}

// Acquire attempts to take the lock for a field. It grants when the key is
// free, when the caller already holds it (refreshing the lease), or when the
// existing lease has expired (steal). It never blocks or queues; a denial
// is immediate and names the holder.
func (m *Manager) Acquire(gameID, teamID int64, field, userID, displayName string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{GameID: gameID, TeamID: teamID, Field: field}
	now := m.clock.Now()

	if existing, ok := m.locks[key]; ok {
		if existing.UserID != userID && !m.expired(existing, now) {
			return Result{Granted: false, LockedBy: existing.DisplayName}
		}
	}

	m.locks[key] = models.FieldLock{
		GameID:      gameID,
		TeamID:      teamID,
		Field:       field,
		UserID:      userID,
		DisplayName: displayName,
		AcquiredAt:  now,
	}
	return Result{Granted: true}
}

// Release frees a lock if the caller is the current holder. A release by
// anyone else is a no-op, so a stale session cannot drop another's lock.
func (m *Manager) Release(gameID, teamID int64, field, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{GameID: gameID, TeamID: teamID, Field: field}
	if existing, ok := m.locks[key]; ok && existing.UserID == userID {
		delete(m.locks, key)
		return true
	}
	return false
}

// HasLock reports whether the user currently holds the lock on a field.
func (m *Manager) HasLock(gameID, teamID int64, field, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[Key{GameID: gameID, TeamID: teamID, Field: field}]
	return ok && existing.UserID == userID
}

// ReleaseAllForUser frees every lock held by a user and returns the freed
// keys. Used by disconnect cleanup; atomic with respect to concurrent
// Acquire calls on the same keys.
func (m *Manager) ReleaseAllForUser(userID string) []Key {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []Key
	for key, lock := range m.locks {
		if lock.UserID == userID {
			delete(m.locks, key)
			released = append(released, key)
		}
	}
	return released
}

// LocksForGame returns a snapshot of every live lock in a game, used to
// rehydrate a newly joined client's view. Expired locks are omitted: any
// acquire would steal them, so showing them as held would be a lie.
func (m *Manager) LocksForGame(gameID int64) []models.FieldLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var out []models.FieldLock
	for key, lock := range m.locks {
		if key.GameID == gameID && !m.expired(lock, now) {
			out = append(out, lock)
		}
	}
	return out
}

// SweepExpired drops every expired lock and returns how many were removed.
// Optional maintenance: Acquire already treats expired locks as steal-able,
// so correctness never depends on the sweep running.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	count := 0
	for key, lock := range m.locks {
		if m.expired(lock, now) {
			delete(m.locks, key)
			count++
		}
	}
	if count > 0 {
		log.Debug().Int("count", count).Msg("swept expired edit locks")
	}
	return count
}

// expired reports whether a lock's lease has run out. The boundary is
// inclusive: a lock is steal-able at exactly acquiredAt+lease.
func (m *Manager) expired(lock models.FieldLock, now time.Time) bool {
	return !now.Before(lock.AcquiredAt.Add(m.lease))
}
