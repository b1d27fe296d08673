package schedule

// Reason is the user-facing text attached to a rejected request. The strings
// are presentation, not a stable machine contract.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoPermission    Reason = "no booking permission"
	ReasonPastDate        Reason = "date in past"
	ReasonRateLimit       Reason = "rate limit exceeded"
	ReasonNothingToCancel Reason = "nothing to cancel"
	ReasonNotAuthorized   Reason = "not authorized"
	ReasonDateTaken       Reason = "already booked"
)

// Decision is the validator's verdict. Business rejections are values, never
// errors; only infrastructure failures travel the error channel.
type Decision struct {
	OK     bool
	Reason Reason
}

// Accept returns a passing decision.
func Accept() Decision { return Decision{OK: true} }

// Reject returns a failing decision with the given reason.
func Reject(reason Reason) Decision { return Decision{Reason: reason} }

// Outcome classifies the result of a coordinator operation.
type Outcome string

const (
	OutcomeBooked    Outcome = "booked"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRejected  Outcome = "rejected"
	OutcomeConflict  Outcome = "conflict"
)

// Result is what a book or cancel operation reports to the request layer.
type Result struct {
	Outcome Outcome
	Reason  Reason
	Booking *Booking
}
