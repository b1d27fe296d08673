package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"reserv.org/internal/ids"
	"reserv.org/internal/schedule"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store is the PostgreSQL-backed booking ledger and auth store.
type Store struct {
	db *sql.DB
}

var _ schedule.Ledger = (*Store)(nil)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) BookingByDate(ctx context.Context, date schedule.Date) (schedule.Booking, error) {
	var (
		b   schedule.Booking
		day time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		select id, date, user_id, status, created_at, updated_at
		from schedule where date = $1
	`, date.Time()).Scan(&b.ID, &day, &b.UserID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Booking{}, schedule.ErrNotFound
	}
	if err != nil {
		return schedule.Booking{}, err
	}
	b.Date = schedule.DateOf(day)
	return b, nil
}

func (s *Store) CountUserBooked(ctx context.Context, userID string, from, to schedule.Date) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from schedule
		where user_id = $1 and status = 'booked' and date between $2 and $3
	`, userID, from.Time(), to.Time()).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Claim assigns the date to the user inside one transaction: the row lock on
// the date makes read-check-write atomic, and the unique constraint on date
// catches the insert race when two claims arrive for a date with no row yet.
func (s *Store) Claim(ctx context.Context, date schedule.Date, userID string) (schedule.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id     string
		owner  string
		status string
	)
	err = tx.QueryRowContext(ctx, `
		select id, user_id, status from schedule where date = $1 for update
	`, date.Time()).Scan(&id, &owner, &status)

	var b schedule.Booking
	switch {
	case errors.Is(err, sql.ErrNoRows):
		b = schedule.Booking{ID: ids.New(), Date: date, UserID: userID, Status: schedule.StatusBooked}
		err = tx.QueryRowContext(ctx, `
			insert into schedule (id, date, user_id, status)
			values ($1, $2, $3, 'booked')
			returning created_at, updated_at
		`, b.ID, date.Time(), userID).Scan(&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return schedule.Booking{}, schedule.ErrDateTaken
			}
			return schedule.Booking{}, err
		}
	case err != nil:
		return schedule.Booking{}, err
	case status == schedule.StatusBooked:
		return schedule.Booking{}, schedule.ErrDateTaken
	default:
		// Cancelled row: revive it for the new owner.
		b = schedule.Booking{ID: id, Date: date, UserID: userID, Status: schedule.StatusBooked}
		err = tx.QueryRowContext(ctx, `
			update schedule set user_id = $1, status = 'booked', updated_at = now()
			where date = $2
			returning created_at, updated_at
		`, userID, date.Time()).Scan(&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return schedule.Booking{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return schedule.Booking{}, err
	}
	return b, nil
}

func (s *Store) Release(ctx context.Context, date schedule.Date) (schedule.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		b      schedule.Booking
		status string
	)
	err = tx.QueryRowContext(ctx, `
		select id, user_id, status, created_at from schedule where date = $1 for update
	`, date.Time()).Scan(&b.ID, &b.UserID, &status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Booking{}, schedule.ErrNotFound
	}
	if err != nil {
		return schedule.Booking{}, err
	}
	if status != schedule.StatusBooked {
		return schedule.Booking{}, schedule.ErrNotFound
	}

	b.Date = date
	b.Status = schedule.StatusCancelled
	err = tx.QueryRowContext(ctx, `
		update schedule set status = 'cancelled', updated_at = now()
		where date = $1
		returning updated_at
	`, date.Time()).Scan(&b.UpdatedAt)
	if err != nil {
		return schedule.Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return schedule.Booking{}, err
	}
	return b, nil
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
