package schedule

import (
	"context"
	"sync"
	"time"

	"reserv.org/internal/ids"
)

// MemoryLedger implements Ledger with in-process concurrency safety. The
// single mutex makes every Claim an atomic read-check-write, which satisfies
// the per-date serialization requirement trivially.
type MemoryLedger struct {
	mu   sync.RWMutex
	rows map[string]*Booking // date string -> row
}

// NewMemoryLedger creates a fresh in-memory booking ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make(map[string]*Booking)}
}

var _ Ledger = (*MemoryLedger)(nil)

func (m *MemoryLedger) BookingByDate(ctx context.Context, date Date) (Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[date.String()]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return *row, nil
}

func (m *MemoryLedger) CountUserBooked(ctx context.Context, userID string, from, to Date) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID != userID || row.Status != StatusBooked {
			continue
		}
		if row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryLedger) Claim(ctx context.Context, date Date, userID string) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := date.String()
	if row, ok := m.rows[key]; ok {
		if row.Status == StatusBooked {
			return Booking{}, ErrDateTaken
		}
		row.UserID = userID
		row.Status = StatusBooked
		row.UpdatedAt = now
		return *row, nil
	}

	row := &Booking{
		ID:        ids.New(),
		Date:      date,
		UserID:    userID,
		Status:    StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rows[key] = row
	return *row, nil
}

func (m *MemoryLedger) Release(ctx context.Context, date Date) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[date.String()]
	if !ok || row.Status != StatusBooked {
		return Booking{}, ErrNotFound
	}
	row.Status = StatusCancelled
	row.UpdatedAt = time.Now().UTC()
	return *row, nil
}
