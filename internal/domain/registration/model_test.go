package registration_test

import (
	"errors"
	"testing"
	"time"

	"registrar/internal/domain/program"
	"registrar/internal/domain/registration"
)

var now = time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

func validRegistration() registration.Registration {
	return registration.Registration{
		ID:               "reg-1",
		ProgramType:      program.TypeWorkshop,
		SessionIDs:       []string{"s1", "s2"},
		ParentName:       "Maria Lopez",
		ParentEmail:      "maria@example.com",
		BasePriceCents:   7500,
		SessionCount:     2,
		TotalAmountCents: 39000,
		PaymentMethod:    registration.MethodBankTransfer,
		PaymentStatus:    registration.PaymentUnpaid,
		Status:           registration.StatusPending,
	}
}

// TestRegistration_Validate tests validation of the header row.
func TestRegistration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *registration.Registration)
		wantErr bool
	}{
		{"valid", func(r *registration.Registration) {}, false},
		{"no sessions", func(r *registration.Registration) { r.SessionIDs = nil }, true},
		{"bad email", func(r *registration.Registration) { r.ParentEmail = "maria" }, true},
		{"bad status", func(r *registration.Registration) { r.Status = "waitlisted" }, true},
		{"bad payment status", func(r *registration.Registration) { r.PaymentStatus = "refunded" }, true},
		{"negative paid", func(r *registration.Registration) { r.AmountPaidCents = -1 }, true},
		{"unknown program", func(r *registration.Registration) { r.ProgramType = "yoga" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration()
			tt.mutate(&r)
			if err := r.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

// TestCanTransition covers the lifecycle transition table.
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{registration.StatusPending, registration.StatusConfirmed, true},
		{registration.StatusPending, registration.StatusCancelled, true},
		{registration.StatusConfirmed, registration.StatusPending, true},
		{registration.StatusConfirmed, registration.StatusCancelled, true},
		{registration.StatusCancelled, registration.StatusPending, true},
		{registration.StatusCancelled, registration.StatusConfirmed, false},
		{registration.StatusPending, registration.StatusPending, true},
		{"bogus", registration.StatusPending, false},
	}
	for _, tt := range tests {
		if got := registration.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s)=%v want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// TestSetStatus_CancelLeavesPaymentAlone verifies cancellation stamps time and reason only.
// PRE: confirmed + paid registration
// POST: cancelled, CancelledAt set, reason stored, payment status still paid
func TestSetStatus_CancelLeavesPaymentAlone(t *testing.T) {
	r := validRegistration()
	r.Status = registration.StatusConfirmed
	r.PaymentStatus = registration.PaymentPaid
	r.AmountPaidCents = 39000

	if err := r.SetStatus(registration.StatusCancelled, "  family moved  ", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsCancelled() {
		t.Error("expected cancelled status")
	}
	if !r.CancelledAt.Equal(now) {
		t.Errorf("CancelledAt=%v want %v", r.CancelledAt, now)
	}
	if r.CancellationReason != "family moved" {
		t.Errorf("reason=%q want %q", r.CancellationReason, "family moved")
	}
	if r.PaymentStatus != registration.PaymentPaid || r.AmountPaidCents != 39000 {
		t.Errorf("payment fields changed: %s %d", r.PaymentStatus, r.AmountPaidCents)
	}
}

// TestSetStatus_ReinstateClearsCancellation verifies cancelled -> pending clears the stamps.
func TestSetStatus_ReinstateClearsCancellation(t *testing.T) {
	r := validRegistration()
	_ = r.SetStatus(registration.StatusCancelled, "duplicate", now)
	if err := r.SetStatus(registration.StatusPending, "", now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.CancelledAt.IsZero() || r.CancellationReason != "" {
		t.Errorf("expected cancellation fields cleared, got %v %q", r.CancelledAt, r.CancellationReason)
	}
}

// TestSetStatus_RejectsDisallowed verifies cancelled -> confirmed is refused without mutation.
func TestSetStatus_RejectsDisallowed(t *testing.T) {
	r := validRegistration()
	_ = r.SetStatus(registration.StatusCancelled, "x", now)
	err := r.SetStatus(registration.StatusConfirmed, "", now)
	if !errors.Is(err, registration.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
	if r.Status != registration.StatusCancelled {
		t.Errorf("status=%s want cancelled", r.Status)
	}
}

// TestSetPaymentStatus_IndependentAxis verifies confirmed+unpaid and cancelled+paid are both valid.
func TestSetPaymentStatus_IndependentAxis(t *testing.T) {
	r := validRegistration()
	_ = r.SetStatus(registration.StatusConfirmed, "", now)
	if err := r.Validate(); err != nil {
		t.Fatalf("confirmed+unpaid should be valid: %v", err)
	}
	if err := r.SetPaymentStatus(registration.PaymentPaid, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = r.SetStatus(registration.StatusCancelled, "", now)
	if err := r.Validate(); err != nil {
		t.Errorf("cancelled+paid should be valid: %v", err)
	}
	if err := r.SetPaymentStatus("refunded", now); !errors.Is(err, registration.ErrInvalidPaymentStatus) {
		t.Errorf("err=%v want ErrInvalidPaymentStatus", err)
	}
}

// TestVerifyTotal checks the stored round-trip property.
func TestVerifyTotal(t *testing.T) {
	r := validRegistration()
	children := []registration.Child{
		{ID: "c3", Position: 2, DiscountCents: 2000},
		{ID: "c1", Position: 0, DiscountCents: 0},
		{ID: "c2", Position: 1, DiscountCents: 1000},
	}
	if err := r.VerifyTotal(children); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	r.TotalAmountCents = 40000
	if err := r.VerifyTotal(children); err == nil {
		t.Error("expected mismatch error")
	}
	if err := r.VerifyTotal(nil); !errors.Is(err, registration.ErrNoChildren) {
		t.Errorf("err=%v want ErrNoChildren", err)
	}
}

// TestBalanceCents verifies waived and overpaid registrations owe nothing.
func TestBalanceCents(t *testing.T) {
	r := validRegistration()
	r.AmountPaidCents = 10000
	if r.BalanceCents() != 29000 {
		t.Errorf("balance=%d want 29000", r.BalanceCents())
	}
	r.PaymentStatus = registration.PaymentWaived
	if r.BalanceCents() != 0 {
		t.Errorf("balance=%d want 0 when waived", r.BalanceCents())
	}
}
