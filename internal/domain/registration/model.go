package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"registrar/internal/domain/pricing"
	"registrar/internal/domain/program"
)

// Lifecycle status constants
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Payment status constants
const (
	PaymentUnpaid  = "unpaid"
	PaymentPaid    = "paid"
	PaymentPartial = "partial"
	PaymentWaived  = "waived"
)

// Payment method constants (the family's stated preference; capture happens elsewhere)
const (
	MethodBankTransfer = "bank_transfer"
	MethodCash         = "cash"
	MethodCard         = "card"
)

// ValidStatuses contains all lifecycle statuses.
var ValidStatuses = []string{StatusPending, StatusConfirmed, StatusCancelled}

// ValidPaymentStatuses contains all payment statuses.
var ValidPaymentStatuses = []string{PaymentUnpaid, PaymentPaid, PaymentPartial, PaymentWaived}

// ValidPaymentMethods contains all accepted payment preferences.
var ValidPaymentMethods = []string{MethodBankTransfer, MethodCash, MethodCard}

// Domain errors
var (
	ErrInvalidStatus        = errors.New("status must be one of: pending, confirmed, cancelled")
	ErrInvalidPaymentStatus = errors.New("payment status must be one of: unpaid, paid, partial, waived")
	ErrInvalidPaymentMethod = errors.New("payment method must be one of: bank_transfer, cash, card")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrNegativeAmount       = errors.New("amount cannot be negative")
	ErrNoChildren           = errors.New("registration must have at least one child")
	ErrNoSessions           = errors.New("registration must reference at least one session")
)

// Registration is one family's signup for one or more sessions of a program.
// Contact and consent fields are a snapshot taken at submission time.
type Registration struct {
	ID          string       `json:"id"`
	ProgramType program.Type `json:"program_type"`
	SessionIDs  []string     `json:"session_ids"`
	AccountID   string       `json:"account_id,omitempty"` // owning account, empty for anonymous submissions

	ParentName         string `json:"parent_name"`
	ParentEmail        string `json:"parent_email"`
	ParentPhone        string `json:"parent_phone"`
	ParentRelationship string `json:"parent_relationship"`

	EmergencyName         string `json:"emergency_name"`
	EmergencyPhone        string `json:"emergency_phone"`
	EmergencyRelationship string `json:"emergency_relationship"`

	BasePriceCents   int    `json:"base_price_cents"`
	SessionCount     int    `json:"session_count"`
	TotalAmountCents int    `json:"total_amount_cents"`
	AmountPaidCents  int    `json:"amount_paid_cents"`
	PaymentMethod    string `json:"payment_method"`
	PaymentStatus    string `json:"payment_status"`

	Status             string    `json:"status"`
	CancelledAt        time.Time `json:"cancelled_at,omitzero"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`

	MediaConsentInternal  bool `json:"media_consent_internal"`
	MediaConsentMarketing bool `json:"media_consent_marketing"`

	HowHeard   string `json:"how_heard"`
	Comments   string `json:"comments"`
	AdminNotes string `json:"admin_notes"`

	NeedsRepair bool `json:"needs_repair"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Child is one child on a registration.
type Child struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	Position       int    `json:"position"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	School         string `json:"school"`
	MedicalNotes   string `json:"medical_notes"`
	Allergies      string `json:"allergies"`
	Dietary        string `json:"dietary"`
	TShirtSize     string `json:"tshirt_size"`
	DiscountCents  int    `json:"discount_cents"`
}

// Pickup is an adult authorized to collect the children.
type Pickup struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id"`
	Position       int    `json:"position"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Relationship   string `json:"relationship"`
}

// Validate checks if the Registration header has valid data.
// PRE: Registration struct is populated
// POST: Returns nil if valid, error otherwise
// INVARIANT: status and payment status are members of their closed sets
func (r *Registration) Validate() error {
	if _, err := program.ParseType(string(r.ProgramType)); err != nil {
		return err
	}
	if len(r.SessionIDs) == 0 {
		return ErrNoSessions
	}
	if strings.TrimSpace(r.ParentName) == "" {
		return errors.New("parent name cannot be empty")
	}
	if !strings.Contains(r.ParentEmail, "@") {
		return errors.New("parent email must be valid")
	}
	if !IsValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	if !IsValidPaymentStatus(r.PaymentStatus) {
		return ErrInvalidPaymentStatus
	}
	if r.TotalAmountCents < 0 || r.AmountPaidCents < 0 || r.BasePriceCents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// IsCancelled returns true if the registration has been cancelled.
// INVARIANT: Registration fields are not mutated
func (r *Registration) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// BalanceCents returns what is still owed, never below zero.
func (r *Registration) BalanceCents() int {
	if r.PaymentStatus == PaymentWaived {
		return 0
	}
	b := r.TotalAmountCents - r.AmountPaidCents
	if b < 0 {
		return 0
	}
	return b
}

// CanTransition reports whether the lifecycle status may move from -> to.
// Allowed: pending<->confirmed, pending|confirmed -> cancelled, cancelled -> pending.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusPending || to == StatusCancelled
	case StatusCancelled:
		return to == StatusPending
	}
	return false
}

// SetStatus moves the registration to a new lifecycle status.
// Cancelling stamps CancelledAt and stores reason; reinstating clears both.
// Payment fields are never touched.
// PRE: to is a valid status
// POST: Status updated, or ErrInvalidTransition and no change
func (r *Registration) SetStatus(to string, reason string, now time.Time) error {
	if !IsValidStatus(to) {
		return ErrInvalidStatus
	}
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	if r.Status == to {
		return nil
	}
	switch {
	case to == StatusCancelled:
		r.CancelledAt = now
		r.CancellationReason = strings.TrimSpace(reason)
	case r.Status == StatusCancelled:
		r.CancelledAt = time.Time{}
		r.CancellationReason = ""
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// SetPaymentStatus records a new payment status; independent of lifecycle status.
// PRE: status is a valid payment status
// POST: PaymentStatus updated
func (r *Registration) SetPaymentStatus(status string, now time.Time) error {
	if !IsValidPaymentStatus(status) {
		return ErrInvalidPaymentStatus
	}
	r.PaymentStatus = status
	r.UpdatedAt = now
	return nil
}

// VerifyTotal checks the stored total against the stored per-child discounts.
// PRE: children are this registration's children
// POST: Returns nil when Σ(base − discount) * sessions == TotalAmountCents
func (r *Registration) VerifyTotal(children []Child) error {
	if len(children) == 0 {
		return ErrNoChildren
	}
	discounts := make([]int, len(children))
	for _, c := range children {
		if c.Position < 0 || c.Position >= len(children) {
			return fmt.Errorf("child %s has position %d out of range", c.ID, c.Position)
		}
		discounts[c.Position] = c.DiscountCents
	}
	derived, err := pricing.TotalFromStored(r.BasePriceCents, discounts, r.SessionCount)
	if err != nil {
		return err
	}
	if derived != r.TotalAmountCents {
		return fmt.Errorf("stored total %d does not match derived total %d", r.TotalAmountCents, derived)
	}
	return nil
}

// IsValidStatus reports membership in ValidStatuses.
func IsValidStatus(s string) bool {
	return contains(ValidStatuses, s)
}

// IsValidPaymentStatus reports membership in ValidPaymentStatuses.
func IsValidPaymentStatus(s string) bool {
	return contains(ValidPaymentStatuses, s)
}

// IsValidPaymentMethod reports membership in ValidPaymentMethods.
func IsValidPaymentMethod(s string) bool {
	return contains(ValidPaymentMethods, s)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
