package outbox

import (
	"errors"
	"time"
)

// Status constants for outbox entry lifecycle.
// Entries only leave failed through an explicit admin action.
const (
	StatusFailed    = "failed"
	StatusSent      = "sent"
	StatusAbandoned = "abandoned"
)

// Action types record which notification failed.
const (
	ActionConfirmation = "confirmation"
	ActionAdminNotice  = "admin_notice"
)

// Domain errors.
var (
	ErrEmptyActionType   = errors.New("action type is required")
	ErrUnknownActionType = errors.New("action type must be one of: confirmation, admin_notice")
	ErrEmptyPayload      = errors.New("payload is required")
	ErrMissingCreatedAt  = errors.New("created_at must be set")
	ErrNotResendable     = errors.New("entry is not awaiting resend")
)

// Entry is a notification that could not be delivered, kept for manual resend.
type Entry struct {
	ID              string    `json:"id"`
	ActionType      string    `json:"action_type"` // confirmation, admin_notice
	RegistrationID  string    `json:"registration_id"`
	Payload         string    `json:"payload"` // JSON payload for replay
	Status          string    `json:"status"`  // failed, sent, abandoned
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"last_error,omitempty"`
	LastAttemptedAt time.Time `json:"last_attempted_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewFailed records a first delivery failure.
// PRE: payload is valid JSON
// POST: Returns an entry in failed status with one attempt recorded
func NewFailed(id, actionType, registrationID, payload string, cause error, now time.Time) Entry {
	e := Entry{
		ID:              id,
		ActionType:      actionType,
		RegistrationID:  registrationID,
		Payload:         payload,
		Status:          StatusFailed,
		Attempts:        1,
		LastAttemptedAt: now,
		CreatedAt:       now,
	}
	if cause != nil {
		e.LastError = cause.Error()
	}
	return e
}

// Validate checks that the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	switch e.ActionType {
	case "":
		return ErrEmptyActionType
	case ActionConfirmation, ActionAdminNotice:
	default:
		return ErrUnknownActionType
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return ErrMissingCreatedAt
	}
	return nil
}

// CanResend reports whether an admin may trigger another delivery attempt.
func (e *Entry) CanResend() bool {
	return e.Status == StatusFailed
}

// RecordResend applies the outcome of an admin-triggered delivery attempt.
// PRE: CanResend() is true
// POST: Attempts incremented; status sent on success, failed with LastError otherwise
func (e *Entry) RecordResend(sendErr error, now time.Time) error {
	if !e.CanResend() {
		return ErrNotResendable
	}
	e.Attempts++
	e.LastAttemptedAt = now
	if sendErr != nil {
		e.LastError = sendErr.Error()
		return nil
	}
	e.Status = StatusSent
	e.LastError = ""
	return nil
}

// Abandon stops the entry from being offered for resend.
// PRE: CanResend() is true
// POST: Status set to abandoned
func (e *Entry) Abandon() error {
	if !e.CanResend() {
		return ErrNotResendable
	}
	e.Status = StatusAbandoned
	return nil
}
