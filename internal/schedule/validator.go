package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserv.org/internal/auth"
)

// WindowPolicy bounds booking frequency: no more than MaxPerWindow active
// bookings per user in any WindowDays-consecutive-day span. The boundary
// semantics are a parameter, not hard-coded.
type WindowPolicy struct {
	WindowDays   int
	MaxPerWindow int
}

// DefaultWindowPolicy is the production rule: at most two bookings in any
// rolling seven-day window.
var DefaultWindowPolicy = WindowPolicy{WindowDays: 7, MaxPerWindow: 2}

// Validator is the pure decision core: given a request, the caller's
// principal and the ledger's current state, it answers accept or reject with
// a reason. It holds no state of its own.
type Validator struct {
	ledger LedgerReader
	policy WindowPolicy
	now    func() time.Time
}

// NewValidator constructs a Validator over the given ledger reader.
func NewValidator(ledger LedgerReader, policy WindowPolicy, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	if policy.WindowDays <= 0 {
		policy = DefaultWindowPolicy
	}
	return &Validator{ledger: ledger, policy: policy, now: now}
}

// ValidateBook runs the booking checks in order; the first failing check
// determines the rejection reason.
func (v *Validator) ValidateBook(ctx context.Context, principal auth.Principal, date Date) (Decision, error) {
	if !principal.HasPermission(auth.PermBook) {
		return Reject(ReasonNoPermission), nil
	}
	if date.Before(DateOf(v.now())) {
		return Reject(ReasonPastDate), nil
	}

	// Every window of WindowDays consecutive days containing the requested
	// date starts at date-i for i in [0, WindowDays). The count is taken on
	// pre-insertion state, so an existing count at the limit already means
	// the new booking would exceed it.
	for i := 0; i < v.policy.WindowDays; i++ {
		start := date.AddDays(-i)
		end := start.AddDays(v.policy.WindowDays - 1)
		n, err := v.ledger.CountUserBooked(ctx, principal.UserID(), start, end)
		if err != nil {
			return Decision{}, fmt.Errorf("count bookings in [%s, %s]: %w", start, end, err)
		}
		if n >= v.policy.MaxPerWindow {
			return Reject(ReasonRateLimit), nil
		}
	}
	return Accept(), nil
}

// ValidateCancel runs the cancellation checks in order.
func (v *Validator) ValidateCancel(ctx context.Context, principal auth.Principal, date Date) (Decision, error) {
	if date.Before(DateOf(v.now())) {
		return Reject(ReasonPastDate), nil
	}
	booking, err := v.ledger.BookingByDate(ctx, date)
	if errors.Is(err, ErrNotFound) {
		return Reject(ReasonNothingToCancel), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load booking for %s: %w", date, err)
	}
	if !booking.Active() {
		return Reject(ReasonNothingToCancel), nil
	}
	if booking.UserID != principal.UserID() && !principal.HasPermission(auth.PermManage) {
		return Reject(ReasonNotAuthorized), nil
	}
	return Accept(), nil
}
