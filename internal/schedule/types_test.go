package schedule

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-10")
	require.NoError(t, err)
	require.Equal(t, "2024-06-10", d.String())

	_, err = ParseDate("10.06.2024")
	require.Error(t, err)
	_, err = ParseDate("")
	require.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := mustDate(t, "2024-06-10")
	require.Equal(t, "2024-06-17", d.AddDays(7).String())
	require.Equal(t, "2024-06-03", d.AddDays(-7).String())
	require.True(t, d.Before(d.AddDays(1)))
	require.True(t, d.After(d.AddDays(-1)))
	require.True(t, d.Equal(mustDate(t, "2024-06-10")))

	// Month boundary.
	require.Equal(t, "2024-07-01", mustDate(t, "2024-06-30").AddDays(1).String())
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-06-10"}`), &payload))
	require.Equal(t, "2024-06-10", payload.Date.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2024-06-10"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"date":"soon"}`), &payload))
}

func TestMemoryLedgerReviveKeepsID(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	date := mustDate(t, "2024-06-12")

	first, err := ledger.Claim(ctx, date, "u1")
	require.NoError(t, err)

	_, err = ledger.Claim(ctx, date, "u2")
	require.ErrorIs(t, err, ErrDateTaken)

	_, err = ledger.Release(ctx, date)
	require.NoError(t, err)

	revived, err := ledger.Claim(ctx, date, "u2")
	require.NoError(t, err)
	require.Equal(t, first.ID, revived.ID)
	require.Equal(t, "u2", revived.UserID)
}

func TestMemoryLedgerCountUserBooked(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	for _, d := range []string{"2024-06-05", "2024-06-08", "2024-06-20"} {
		_, err := ledger.Claim(ctx, mustDate(t, d), "u1")
		require.NoError(t, err)
	}
	_, err := ledger.Claim(ctx, mustDate(t, "2024-06-06"), "u2")
	require.NoError(t, err)

	n, err := ledger.CountUserBooked(ctx, "u1", mustDate(t, "2024-06-05"), mustDate(t, "2024-06-11"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = ledger.CountUserBooked(ctx, "u1", mustDate(t, "2024-06-01"), mustDate(t, "2024-06-30"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
