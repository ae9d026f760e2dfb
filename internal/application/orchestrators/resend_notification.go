package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"registrar/internal/adapters/notify"
	"registrar/internal/domain/activity"
	"registrar/internal/domain/outbox"
)

// ErrResendFailed wraps a delivery failure during an admin-triggered resend.
var ErrResendFailed = errors.New("notification resend failed")

// OutboxStoreForResend defines the store interface needed by ResendNotification.
type OutboxStoreForResend interface {
	GetByID(ctx context.Context, id string) (outbox.Entry, error)
	Save(ctx context.Context, e outbox.Entry) error
}

// ResendNotificationInput identifies the entry and the staff member acting on it.
type ResendNotificationInput struct {
	EntryID string
	// Abandon stops offering the entry instead of sending it.
	Abandon    bool
	ActorID    string
	ActorEmail string
}

// ResendNotificationDeps holds dependencies for ResendNotification.
type ResendNotificationDeps struct {
	Outbox     OutboxStoreForResend
	Notifier   notify.Notifier
	Activity   ActivityAppender // optional
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteResendNotification makes one manual delivery attempt for a failed notification.
// PRE: Entry is in failed status
// POST: Entry saved as sent, failed with a new attempt, or abandoned; an activity entry
// records the attempt. A failed delivery returns the saved entry and ErrResendFailed.
func ExecuteResendNotification(ctx context.Context, input ResendNotificationInput, deps ResendNotificationDeps) (outbox.Entry, error) {
	entry, err := deps.Outbox.GetByID(ctx, input.EntryID)
	if err != nil {
		return outbox.Entry{}, err
	}
	before := map[string]any{"status": entry.Status, "attempts": entry.Attempts}
	now := deps.Now()

	var sendErr error
	if input.Abandon {
		if err := entry.Abandon(); err != nil {
			return entry, err
		}
	} else {
		if !entry.CanResend() {
			return entry, outbox.ErrNotResendable
		}
		sendErr = notify.Replay(ctx, deps.Notifier, entry.ActionType, entry.Payload)
		if err := entry.RecordResend(sendErr, now); err != nil {
			return entry, err
		}
	}

	if err := deps.Outbox.Save(ctx, entry); err != nil {
		return entry, fmt.Errorf("save outbox entry: %w", err)
	}

	if deps.Activity != nil {
		a := activity.Entry{
			ID:         deps.GenerateID(),
			Action:     activity.ActionNotificationResent,
			EntityType: activity.EntityOutbox,
			EntityID:   entry.ID,
			Changes:    activity.Diff(before, map[string]any{"status": entry.Status, "attempts": entry.Attempts}),
			ActorID:    input.ActorID,
			ActorEmail: input.ActorEmail,
			Timestamp:  now,
		}
		if err := deps.Activity.Append(ctx, a); err != nil {
			slog.Error("activity_append_failed", "entity_type", a.EntityType, "entity_id", a.EntityID, "error", err)
		}
	}

	slog.Info("notification_resend",
		"entry_id", entry.ID,
		"action", entry.ActionType,
		"registration_id", entry.RegistrationID,
		"status", entry.Status,
		"attempts", entry.Attempts,
	)
	if sendErr != nil {
		return entry, fmt.Errorf("%w: %v", ErrResendFailed, sendErr)
	}
	return entry, nil
}
