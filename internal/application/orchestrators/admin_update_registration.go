package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/domain/activity"
	"registrar/internal/domain/registration"
)

// ErrEmptyUpdate is returned when the payload names no editable field.
var ErrEmptyUpdate = errors.New("update must include at least one field")

// RegistrationStoreForAdmin defines the store interface needed by AdminUpdateRegistration.
type RegistrationStoreForAdmin interface {
	GetByID(ctx context.Context, id string) (registration.Registration, error)
	ApplyAdminUpdate(ctx context.Context, r registration.Registration, readAt time.Time, entry *activity.Entry) error
}

// AdminUpdateRecorder counts admin update results.
type AdminUpdateRecorder interface {
	AdminUpdate(result string)
}

// AdminUpdateInput carries a partial update. Nil fields are absent from the payload.
type AdminUpdateInput struct {
	RegistrationID     string
	Status             *string
	PaymentStatus      *string
	AmountPaidCents    *int
	PaymentMethod      *string
	AdminNotes         *string
	CancellationReason *string

	ActorID    string
	ActorEmail string
}

// AdminUpdateResult carries the stored registration and the entry written, if any.
type AdminUpdateResult struct {
	Registration registration.Registration
	Entry        *activity.Entry
}

// AdminUpdateDeps holds dependencies for AdminUpdateRegistration.
type AdminUpdateDeps struct {
	Registrations RegistrationStoreForAdmin
	Metrics       AdminUpdateRecorder // optional
	GenerateID    func() string
	Now           func() time.Time
}

// ExecuteAdminUpdateRegistration applies a staff update to status, payment and notes.
// PRE: Actor passed the admin allow-list
// POST: Update and one activity entry stored in one transaction; nothing is written when
// no field changes. Returns storage.ErrConflict when the row changed since it was read.
// INVARIANT: Lifecycle status and payment status are independent; cancelling never changes payment
func ExecuteAdminUpdateRegistration(ctx context.Context, input AdminUpdateInput, deps AdminUpdateDeps) (AdminUpdateResult, error) {
	if input.Status == nil && input.PaymentStatus == nil && input.AmountPaidCents == nil &&
		input.PaymentMethod == nil && input.AdminNotes == nil && input.CancellationReason == nil {
		return AdminUpdateResult{}, ErrEmptyUpdate
	}

	reg, err := deps.Registrations.GetByID(ctx, input.RegistrationID)
	if err != nil {
		return AdminUpdateResult{}, err
	}
	before := adminFields(reg)
	now := deps.Now()
	updated := reg

	present := map[string]bool{}
	if input.PaymentStatus != nil {
		present["payment_status"] = true
		if err := updated.SetPaymentStatus(*input.PaymentStatus, now); err != nil {
			return deps.reject(err)
		}
	}
	if input.AmountPaidCents != nil {
		present["amount_paid_cents"] = true
		if *input.AmountPaidCents < 0 {
			return deps.reject(registration.ErrNegativeAmount)
		}
		updated.AmountPaidCents = *input.AmountPaidCents
	}
	if input.PaymentMethod != nil {
		present["payment_method"] = true
		if !registration.IsValidPaymentMethod(*input.PaymentMethod) {
			return deps.reject(registration.ErrInvalidPaymentMethod)
		}
		updated.PaymentMethod = *input.PaymentMethod
	}
	if input.AdminNotes != nil {
		present["admin_notes"] = true
		updated.AdminNotes = strings.TrimSpace(*input.AdminNotes)
	}
	if input.Status != nil {
		present["status"] = true
		present["cancelled_at"] = true
		present["cancellation_reason"] = true
		reason := updated.CancellationReason
		if input.CancellationReason != nil {
			reason = *input.CancellationReason
		}
		if err := updated.SetStatus(*input.Status, reason, now); err != nil {
			return deps.reject(err)
		}
		if updated.IsCancelled() {
			updated.CancellationReason = strings.TrimSpace(reason)
		}
	} else if input.CancellationReason != nil {
		present["cancellation_reason"] = true
		if !updated.IsCancelled() {
			return deps.reject(fmt.Errorf("%w: cancellation reason requires a cancelled registration", registration.ErrInvalidTransition))
		}
		updated.CancellationReason = strings.TrimSpace(*input.CancellationReason)
	}

	after := adminFields(updated)
	update := make(map[string]any, len(present))
	for field := range present {
		update[field] = after[field]
	}
	changes := activity.Diff(before, update)
	if len(changes) == 0 {
		if deps.Metrics != nil {
			deps.Metrics.AdminUpdate("unchanged")
		}
		return AdminUpdateResult{Registration: reg}, nil
	}

	updated.UpdatedAt = now
	entry := activity.Entry{
		ID:         deps.GenerateID(),
		Action:     adminAction(reg.Status, updated.Status),
		EntityType: activity.EntityRegistration,
		EntityID:   reg.ID,
		Changes:    changes,
		ActorID:    input.ActorID,
		ActorEmail: input.ActorEmail,
		Timestamp:  now,
	}
	if err := deps.Registrations.ApplyAdminUpdate(ctx, updated, reg.UpdatedAt, &entry); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			slog.Warn("registration_admin_update_conflict", "registration_id", reg.ID, "actor_email", input.ActorEmail)
			return deps.reject(err)
		}
		return AdminUpdateResult{}, fmt.Errorf("apply admin update: %w", err)
	}
	if deps.Metrics != nil {
		deps.Metrics.AdminUpdate("applied")
	}
	slog.Info("registration_admin_updated",
		"registration_id", reg.ID,
		"action", entry.Action,
		"fields", strings.Join(changes.Fields(), ","),
		"actor_email", input.ActorEmail,
	)
	return AdminUpdateResult{Registration: updated, Entry: &entry}, nil
}

func (d AdminUpdateDeps) reject(err error) (AdminUpdateResult, error) {
	if d.Metrics != nil {
		d.Metrics.AdminUpdate("rejected")
	}
	return AdminUpdateResult{}, err
}

// adminFields snapshots the editable fields; an unset cancellation time is nil.
func adminFields(r registration.Registration) map[string]any {
	var cancelledAt any
	if !r.CancelledAt.IsZero() {
		cancelledAt = r.CancelledAt.UTC().Format(time.RFC3339)
	}
	var reason any
	if r.CancellationReason != "" {
		reason = r.CancellationReason
	}
	return map[string]any{
		"status":              r.Status,
		"payment_status":      r.PaymentStatus,
		"amount_paid_cents":   r.AmountPaidCents,
		"payment_method":      r.PaymentMethod,
		"admin_notes":         r.AdminNotes,
		"cancelled_at":        cancelledAt,
		"cancellation_reason": reason,
	}
}

func adminAction(from, to string) activity.Action {
	switch {
	case from != registration.StatusCancelled && to == registration.StatusCancelled:
		return activity.ActionRegistrationCancelled
	case from == registration.StatusCancelled && to != registration.StatusCancelled:
		return activity.ActionRegistrationReinstated
	}
	return activity.ActionRegistrationUpdated
}
