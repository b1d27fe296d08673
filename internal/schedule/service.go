package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserv.org/internal/auth"
	"reserv.org/internal/obs"
)

const defaultStoreTimeout = 5 * time.Second

// maxRangeDays caps GetBookers spans; two months covers any calendar view.
const maxRangeDays = 62

// BookerInfo is the read model the calendar surface renders for one date.
type BookerInfo struct {
	IsBooked bool   `json:"is_booked"`
	Booker   string `json:"booker"`
	BookPerm bool   `json:"book_perm"`
}

// Service coordinates validator and ledger with per-date atomicity. The
// validator's pre-check is advisory under concurrency; the ledger's Claim is
// the authoritative conflict gate.
type Service struct {
	ledger       Ledger
	names        NameDirectory
	validator    *Validator
	policy       WindowPolicy
	now          func() time.Time
	storeTimeout time.Duration
}

// ServiceOption configures the coordinator.
type ServiceOption func(*Service)

// WithWindowPolicy overrides the rolling-window rule.
func WithWindowPolicy(policy WindowPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithStoreTimeout bounds every ledger call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewService constructs the booking coordinator.
func NewService(ledger Ledger, names NameDirectory, opts ...ServiceOption) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if names == nil {
		return nil, errors.New("name directory is required")
	}
	s := &Service{
		ledger:       ledger,
		names:        names,
		policy:       DefaultWindowPolicy,
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(ledger, s.policy, s.now)
	return s, nil
}

// Book validates and, on acceptance, atomically claims the date. Rejections
// never mutate the ledger. A lost race at the write surfaces as Conflict.
func (s *Service) Book(ctx context.Context, principal auth.Principal, date Date) (Result, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	decision, err := s.validator.ValidateBook(ctx, principal, date)
	if err != nil {
		obs.ObserveDecision("book", "error")
		return Result{}, fmt.Errorf("validate booking: %w", err)
	}
	if !decision.OK {
		obs.ObserveDecision("book", "rejected")
		return Result{Outcome: OutcomeRejected, Reason: decision.Reason}, nil
	}

	booking, err := s.ledger.Claim(ctx, date, principal.UserID())
	if errors.Is(err, ErrDateTaken) {
		// Another booking won the race for this date. Equivalent to "already
		// booked" from the caller's point of view, not a server fault.
		obs.ObserveDecision("book", "conflict")
		return Result{Outcome: OutcomeConflict, Reason: ReasonDateTaken}, nil
	}
	if err != nil {
		obs.ObserveDecision("book", "error")
		return Result{}, fmt.Errorf("claim %s for %s: %w", date, principal.UserID(), err)
	}
	obs.ObserveDecision("book", "booked")
	return Result{Outcome: OutcomeBooked, Booking: &booking}, nil
}

// Cancel validates and transitions the date's booking to cancelled.
func (s *Service) Cancel(ctx context.Context, principal auth.Principal, date Date) (Result, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	decision, err := s.validator.ValidateCancel(ctx, principal, date)
	if err != nil {
		obs.ObserveDecision("cancel", "error")
		return Result{}, fmt.Errorf("validate cancellation: %w", err)
	}
	if !decision.OK {
		obs.ObserveDecision("cancel", "rejected")
		return Result{Outcome: OutcomeRejected, Reason: decision.Reason}, nil
	}

	booking, err := s.ledger.Release(ctx, date)
	if errors.Is(err, ErrNotFound) {
		// The booking vanished between validation and write.
		obs.ObserveDecision("cancel", "rejected")
		return Result{Outcome: OutcomeRejected, Reason: ReasonNothingToCancel}, nil
	}
	if err != nil {
		obs.ObserveDecision("cancel", "error")
		return Result{}, fmt.Errorf("release %s: %w", date, err)
	}
	obs.ObserveDecision("cancel", "cancelled")
	return Result{Outcome: OutcomeCancelled, Booking: &booking}, nil
}

// GetBooker reports who holds the date, if anyone, plus whether the caller
// may book it.
func (s *Service) GetBooker(ctx context.Context, principal auth.Principal, date Date) (BookerInfo, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	info := BookerInfo{BookPerm: principal.HasPermission(auth.PermBook)}
	booking, err := s.ledger.BookingByDate(ctx, date)
	if errors.Is(err, ErrNotFound) {
		return info, nil
	}
	if err != nil {
		return BookerInfo{}, fmt.Errorf("load booking for %s: %w", date, err)
	}
	if !booking.Active() {
		return info, nil
	}
	info.IsBooked = true
	info.Booker = s.lookupName(ctx, booking)
	return info, nil
}

// GetBookers evaluates GetBooker over an inclusive date range.
func (s *Service) GetBookers(ctx context.Context, principal auth.Principal, from, to Date) (map[string]BookerInfo, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange, from, to)
	}
	out := make(map[string]BookerInfo)
	for d, i := from, 0; !d.After(to); d, i = d.AddDays(1), i+1 {
		if i >= maxRangeDays {
			return nil, fmt.Errorf("%w: spans more than %d days", ErrInvalidRange, maxRangeDays)
		}
		info, err := s.GetBooker(ctx, principal, d)
		if err != nil {
			return nil, err
		}
		out[d.String()] = info
	}
	return out, nil
}

// lookupName degrades to an empty name rather than failing the whole read
// when the booking references a user with no display name.
func (s *Service) lookupName(ctx context.Context, booking Booking) string {
	name, err := s.names.DisplayName(ctx, booking.UserID)
	if err != nil || name == "" {
		obs.Warn("no display name for booker", map[string]any{
			"user_id": booking.UserID,
			"date":    booking.Date.String(),
		})
		return ""
	}
	return name
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
