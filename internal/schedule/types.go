package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Booking statuses. Cancellation is a status transition, not a deletion, so
// the ledger preserves history.
const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrDateTaken    = errors.New("date already booked")
	ErrInvalidRange = errors.New("invalid date range")
)

// Date is a civil calendar date, the natural key of the booking ledger.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// NewDate constructs a date from components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func (d Date) String() string      { return d.t.Format(dateLayout) }
func (d Date) IsZero() bool        { return d.t.IsZero() }
func (d Date) Time() time.Time     { return d.t }
func (d Date) AddDays(n int) Date  { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Before(o Date) bool  { return d.t.Before(o.t) }
func (d Date) After(o Date) bool   { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool   { return d.t.Equal(o.t) }

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Booking assigns one user to one calendar date. For a given date there is at
// most one row, hence at most one row with status booked.
type Booking struct {
	ID        string    `json:"id"`
	Date      Date      `json:"date"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the booking currently holds its date.
func (b Booking) Active() bool { return b.Status == StatusBooked }

// LedgerReader is the read surface the validator depends on. Window counts
// read across dates without serialization; see Ledger.Claim for the
// authoritative write-time gate.
type LedgerReader interface {
	// BookingByDate returns the row for the date, regardless of status.
	// ErrNotFound when no row exists.
	BookingByDate(ctx context.Context, date Date) (Booking, error)

	// CountUserBooked counts the user's bookings with status booked whose
	// date falls within [from, to] inclusive.
	CountUserBooked(ctx context.Context, userID string, from, to Date) (int, error)
}

// Ledger is the persistent record of bookings keyed by date.
type Ledger interface {
	LedgerReader

	// Claim atomically assigns the date to the user: inserts a row when none
	// exists, revives a cancelled row, and fails with ErrDateTaken when an
	// active booking already holds the date. The read-check-write is a single
	// atomic unit per date.
	Claim(ctx context.Context, date Date, userID string) (Booking, error)

	// Release transitions the date's booking to cancelled. ErrNotFound when
	// no active booking exists.
	Release(ctx context.Context, date Date) (Booking, error)
}

// NameDirectory resolves user ids to display names for read models.
type NameDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
