package schedule

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"reserv.org/internal/auth"
)

type staticNames map[string]string

func (n staticNames) DisplayName(_ context.Context, userID string) (string, error) {
	return n[userID], nil
}

func newTestService(t *testing.T, ledger Ledger, names NameDirectory, today string) *Service {
	t.Helper()
	if names == nil {
		names = staticNames{}
	}
	svc, err := NewService(ledger, names, WithClock(fixedClock(today)))
	require.NoError(t, err)
	return svc
}

func TestBookThenGetBooker(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := newTestService(t, ledger, staticNames{"u1": "Dana"}, "2024-06-10")
	ctx := context.Background()
	p := principalWith("u1", auth.PermView, auth.PermBook)

	res, err := svc.Book(ctx, p, mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, res.Outcome)
	require.NotNil(t, res.Booking)

	info, err := svc.GetBooker(ctx, p, mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.True(t, info.IsBooked)
	require.Equal(t, "Dana", info.Booker)
	require.True(t, info.BookPerm)
}

func TestBookRejectionDoesNotMutate(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()
	p := principalWith("u1", auth.PermView)

	res, err := svc.Book(ctx, p, mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Equal(t, ReasonNoPermission, res.Reason)

	_, err = ledger.BookingByDate(ctx, mustDate(t, "2024-06-12"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBookRejectionIsRepeatable(t *testing.T) {
	ledger := NewMemoryLedger()
	seedBooking(t, ledger, "u1", "2024-06-05")
	seedBooking(t, ledger, "u1", "2024-06-08")
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()
	p := principalWith("u1", auth.PermBook)

	for i := 0; i < 3; i++ {
		res, err := svc.Book(ctx, p, mustDate(t, "2024-06-11"))
		require.NoError(t, err)
		require.Equal(t, OutcomeRejected, res.Outcome)
		require.Equal(t, ReasonRateLimit, res.Reason)
	}
}

func TestBookConflictOnTakenDate(t *testing.T) {
	ledger := NewMemoryLedger()
	seedBooking(t, ledger, "u1", "2024-06-12")
	svc := newTestService(t, ledger, nil, "2024-06-10")

	res, err := svc.Book(context.Background(), principalWith("u2", auth.PermBook), mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, res.Outcome)
	require.Equal(t, ReasonDateTaken, res.Reason)
}

func TestConcurrentBookSingleWinner(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()
	date := mustDate(t, "2024-06-12")

	const n = 16
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := principalWith("user-"+string(rune('a'+i)), auth.PermBook)
			res, err := svc.Book(ctx, p, date)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, res := range results {
		switch res.Outcome {
		case OutcomeBooked:
			booked++
		case OutcomeConflict:
		default:
			t.Fatalf("unexpected outcome %q", res.Outcome)
		}
	}
	require.Equal(t, 1, booked)
}

func TestCancelThenRebook(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()
	u1 := principalWith("u1", auth.PermBook)
	u2 := principalWith("u2", auth.PermBook)
	date := mustDate(t, "2024-06-12")

	res, err := svc.Book(ctx, u1, date)
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, res.Outcome)

	res, err = svc.Cancel(ctx, u1, date)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, res.Outcome)

	res, err = svc.Book(ctx, u2, date)
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, res.Outcome)
	require.Equal(t, "u2", res.Booking.UserID)
}

func TestCancelByManager(t *testing.T) {
	ledger := NewMemoryLedger()
	seedBooking(t, ledger, "u1", "2024-06-12")
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()

	res, err := svc.Cancel(ctx, principalWith("u2", auth.PermBook), mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Equal(t, ReasonNotAuthorized, res.Reason)

	res, err = svc.Cancel(ctx, principalWith("admin", auth.PermManage), mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestCancelledDateFreesRateLimit(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := newTestService(t, ledger, nil, "2024-06-10")
	ctx := context.Background()
	p := principalWith("u1", auth.PermBook)

	for _, d := range []string{"2024-06-10", "2024-06-11"} {
		res, err := svc.Book(ctx, p, mustDate(t, d))
		require.NoError(t, err)
		require.Equal(t, OutcomeBooked, res.Outcome)
	}

	res, err := svc.Book(ctx, p, mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)

	res, err = svc.Cancel(ctx, p, mustDate(t, "2024-06-10"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, res.Outcome)

	res, err = svc.Book(ctx, p, mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, res.Outcome)
}

func TestGetBookersRange(t *testing.T) {
	ledger := NewMemoryLedger()
	seedBooking(t, ledger, "u1", "2024-06-11")
	svc := newTestService(t, ledger, staticNames{"u1": "Dana"}, "2024-06-10")
	ctx := context.Background()
	p := principalWith("u2", auth.PermView, auth.PermBook)

	infos, err := svc.GetBookers(ctx, p, mustDate(t, "2024-06-10"), mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.False(t, infos["2024-06-10"].IsBooked)
	require.True(t, infos["2024-06-11"].IsBooked)
	require.Equal(t, "Dana", infos["2024-06-11"].Booker)
	require.False(t, infos["2024-06-12"].IsBooked)
}

func TestGetBookersInvalidRange(t *testing.T) {
	svc := newTestService(t, NewMemoryLedger(), nil, "2024-06-10")
	p := principalWith("u1", auth.PermView)

	_, err := svc.GetBookers(context.Background(), p, mustDate(t, "2024-06-12"), mustDate(t, "2024-06-10"))
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.GetBookers(context.Background(), p, mustDate(t, "2024-01-01"), mustDate(t, "2024-12-31"))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetBookerMissingName(t *testing.T) {
	ledger := NewMemoryLedger()
	seedBooking(t, ledger, "ghost", "2024-06-12")
	svc := newTestService(t, ledger, staticNames{}, "2024-06-10")

	info, err := svc.GetBooker(context.Background(), principalWith("u1", auth.PermView), mustDate(t, "2024-06-12"))
	require.NoError(t, err)
	require.True(t, info.IsBooked)
	require.Equal(t, "", info.Booker)
}
