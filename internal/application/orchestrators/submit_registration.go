package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"registrar/internal/adapters/identity"
	"registrar/internal/adapters/notify"
	"registrar/internal/adapters/storage"
	"registrar/internal/application/intake"
	"registrar/internal/domain/account"
	"registrar/internal/domain/bundle"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/outbox"
	"registrar/internal/domain/pricing"
	"registrar/internal/domain/program"
	"registrar/internal/domain/registration"
	"registrar/internal/domain/session"
)

// ValidationError reports field-level problems with a submission. Nothing was persisted.
type ValidationError struct {
	Fields bundle.FieldErrors
}

func (e *ValidationError) Error() string {
	return "registration is invalid: " + e.Fields.Error()
}

// PersistenceError is a retry-able storage failure. Err is for logs, never for clients.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "registration could not be saved, please try again"
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RegistrationStoreForSubmit defines the store interface needed by SubmitRegistration.
type RegistrationStoreForSubmit interface {
	InsertHeader(ctx context.Context, r registration.Registration) error
	InsertDependents(ctx context.Context, registrationID string, children []registration.Child, pickups []registration.Pickup) error
	MarkNeedsRepair(ctx context.Context, id string, now time.Time) error
	LinkAccount(ctx context.Context, id, accountID string, now time.Time) error
}

// SessionStoreForSubmit defines the session reads needed by SubmitRegistration.
type SessionStoreForSubmit interface {
	GetMany(ctx context.Context, ids []string) ([]session.Session, error)
	Availability(ctx context.Context, ids []string) ([]session.Availability, error)
}

// AccountCreator creates the inline account a family asked for.
type AccountCreator interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (account.Account, error)
}

// OutboxWriter records notifications that failed to send.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// SubmitRecorder counts submission outcomes.
type SubmitRecorder interface {
	RegistrationOutcome(program, outcome string)
	NotificationFailed(action string)
}

// SubmitRegistrationInput carries input for the orchestrator.
type SubmitRegistrationInput struct {
	Submission bundle.Submission
	// ActorAccountID is the signed-in account, empty for anonymous submissions.
	ActorAccountID string
}

// SubmitRegistrationResult describes an accepted submission.
type SubmitRegistrationResult struct {
	RegistrationID string
	Quote          pricing.Quote
	Waitlisted     bool
	NeedsRepair    bool
	AccountID      string
	AccountCreated bool
}

// SubmitRegistrationDeps holds dependencies for SubmitRegistration.
type SubmitRegistrationDeps struct {
	Catalog       *program.Catalog
	Registrations RegistrationStoreForSubmit
	Sessions      SessionStoreForSubmit
	Accounts      AccountCreator // nil disables inline account creation
	Notifier      notify.Notifier
	Outbox        OutboxWriter
	Metrics       SubmitRecorder // optional
	GenerateID    func() string
	Now           func() time.Time
	// Background runs notification work after the response is written.
	// Nil runs it inline before returning.
	Background func(func())
}

func (d SubmitRegistrationDeps) count(p program.Type, outcome string) {
	if d.Metrics != nil {
		d.Metrics.RegistrationOutcome(string(p), outcome)
	}
}

// submittedProgram maps an unchecked program key onto a metric label.
func submittedProgram(raw string) program.Type {
	t, err := program.ParseType(raw)
	if err != nil {
		return programUnknown
	}
	return t
}

// programUnknown labels submissions whose program key is not a known type.
const programUnknown program.Type = "unknown"

// ExecuteSubmitRegistration validates, prices and persists one registration bundle.
// PRE: Submission decoded at the boundary
// POST: On success the header is stored with the authoritative total. Child or pickup
// failures leave the header marked needs_repair and still succeed. Notification failures
// are recorded in the outbox. Returns *ValidationError or *PersistenceError otherwise.
// INVARIANT: No de-duplication and no capacity locking; capacity is an advisory signal
func ExecuteSubmitRegistration(ctx context.Context, input SubmitRegistrationInput, deps SubmitRegistrationDeps) (SubmitRegistrationResult, error) {
	sub := input.Submission
	sub.Normalize()

	if sub.IsSpam() {
		slog.Info("registration_honeypot_triggered", "program", sub.ProgramType)
		deps.count(submittedProgram(sub.ProgramType), "spam")
		return SubmitRegistrationResult{RegistrationID: deps.GenerateID()}, nil
	}

	b, fieldErrs := bundle.Validate(sub, deps.Catalog)
	if len(fieldErrs) > 0 {
		slog.Info("registration_rejected", "program", sub.ProgramType, "fields", fieldErrs.Error())
		deps.count(submittedProgram(sub.ProgramType), "invalid")
		return SubmitRegistrationResult{}, &ValidationError{Fields: fieldErrs}
	}
	programType := b.Program.Type

	sessions, err := deps.Sessions.GetMany(ctx, b.SessionIDs)
	if errors.Is(err, storage.ErrNotFound) {
		return SubmitRegistrationResult{}, &ValidationError{Fields: bundle.FieldErrors{bundle.KeySessionIDs: "one or more selected sessions do not exist"}}
	}
	if err != nil {
		slog.Error("registration_session_lookup_failed", "error", err)
		deps.count(programType, "failed")
		return SubmitRegistrationResult{}, &PersistenceError{Err: err}
	}
	if err := session.SameProgram(programType, sessions); err != nil {
		return SubmitRegistrationResult{}, &ValidationError{Fields: bundle.FieldErrors{bundle.KeySessionIDs: err.Error()}}
	}

	quote, err := b.Program.Ladder().Quote(len(b.Children), len(sessions))
	if err != nil {
		deps.count(programType, "failed")
		return SubmitRegistrationResult{}, &PersistenceError{Err: fmt.Errorf("price registration: %w", err)}
	}
	if !intake.ProjectionAgrees(b.DisplayedTotalCents, quote.TotalCents) {
		slog.Warn("price_projection_mismatch",
			"program", programType,
			"displayed_cents", *b.DisplayedTotalCents,
			"authoritative_cents", quote.TotalCents,
			"children", len(b.Children),
			"sessions", len(sessions),
		)
		deps.count(programType, "projection_mismatch")
	}

	waitlisted := overCapacity(ctx, deps.Sessions, b.SessionIDs, len(b.Children))

	now := deps.Now()
	reg := registration.Registration{
		ID:                    deps.GenerateID(),
		ProgramType:           programType,
		SessionIDs:            b.SessionIDs,
		AccountID:             input.ActorAccountID,
		ParentName:            b.Parent.Name,
		ParentEmail:           b.Parent.Email,
		ParentPhone:           b.Parent.Phone,
		ParentRelationship:    b.Parent.Relationship,
		EmergencyName:         b.Emergency.Name,
		EmergencyPhone:        b.Emergency.Phone,
		EmergencyRelationship: b.Emergency.Relationship,
		BasePriceCents:        b.Program.BasePriceCents,
		SessionCount:          len(sessions),
		TotalAmountCents:      quote.TotalCents,
		PaymentMethod:         b.PaymentMethod,
		PaymentStatus:         registration.PaymentUnpaid,
		Status:                registration.StatusPending,
		MediaConsentInternal:  b.MediaConsentInternal,
		MediaConsentMarketing: b.MediaConsentMarketing,
		HowHeard:              b.HowHeard,
		Comments:              b.Comments,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := reg.Validate(); err != nil {
		deps.count(programType, "failed")
		return SubmitRegistrationResult{}, &PersistenceError{Err: fmt.Errorf("registration header invalid: %w", err)}
	}
	if err := deps.Registrations.InsertHeader(ctx, reg); err != nil {
		slog.Error("registration_header_insert_failed", "program", programType, "error", err)
		deps.count(programType, "failed")
		return SubmitRegistrationResult{}, &PersistenceError{Err: err}
	}

	result := SubmitRegistrationResult{
		RegistrationID: reg.ID,
		Quote:          quote,
		Waitlisted:     waitlisted,
		AccountID:      input.ActorAccountID,
	}

	discounts := make([]int, len(quote.Lines))
	for i, line := range quote.Lines {
		discounts[i] = line.DiscountCents
	}
	children := b.RegistrationChildren(discounts)
	for i := range children {
		children[i].ID = deps.GenerateID()
		children[i].RegistrationID = reg.ID
	}
	pickups := b.RegistrationPickups()
	for i := range pickups {
		pickups[i].ID = deps.GenerateID()
		pickups[i].RegistrationID = reg.ID
	}
	if err := deps.Registrations.InsertDependents(ctx, reg.ID, children, pickups); err != nil {
		slog.Error("registration_children_insert_failed",
			"registration_id", reg.ID,
			"children", len(children),
			"pickups", len(pickups),
			"error", err,
		)
		result.NeedsRepair = true
		if markErr := deps.Registrations.MarkNeedsRepair(ctx, reg.ID, now); markErr != nil {
			slog.Error("registration_repair_mark_failed", "registration_id", reg.ID, "error", markErr)
		}
		deps.count(programType, "needs_repair")
	}

	if b.CreateAccount && input.ActorAccountID == "" && deps.Accounts != nil {
		result.AccountID, result.AccountCreated = createInlineAccount(ctx, deps, b, reg.ID, now)
	}

	notifyRegistration(ctx, deps, reg, b, sessions, result)

	if waitlisted {
		deps.count(programType, "waitlisted")
	}
	deps.count(programType, "created")
	slog.Info("registration_submitted",
		"registration_id", reg.ID,
		"program", programType,
		"children", len(children),
		"sessions", len(sessions),
		"total_cents", quote.TotalCents,
		"waitlisted", waitlisted,
		"needs_repair", result.NeedsRepair,
		"account_created", result.AccountCreated,
	)
	return result, nil
}

// overCapacity reads the soft capacity signal. A failed read is logged and treated as space available.
func overCapacity(ctx context.Context, sessions SessionStoreForSubmit, ids []string, children int) bool {
	avail, err := sessions.Availability(ctx, ids)
	if err != nil {
		slog.Warn("registration_capacity_read_failed", "error", err)
		return false
	}
	for _, a := range avail {
		if a.Waitlisted(children) {
			return true
		}
	}
	return false
}

// createInlineAccount runs the deferred account creation after the header exists.
// Failure never affects the registration.
func createInlineAccount(ctx context.Context, deps SubmitRegistrationDeps, b bundle.Bundle, registrationID string, now time.Time) (string, bool) {
	acct, err := deps.Accounts.SignUp(ctx, identity.SignUpInput{
		Email:       b.Parent.Email,
		Password:    b.AccountPassword,
		DisplayName: b.Parent.Name,
	})
	if err != nil {
		slog.Warn("registration_account_create_failed",
			"registration_id", registrationID,
			"category", linkage.CategoryOf(err),
			"error", err,
		)
		deps.count(b.Program.Type, "account_skipped")
		return "", false
	}
	if err := deps.Registrations.LinkAccount(ctx, registrationID, acct.ID, now); err != nil {
		slog.Error("registration_account_link_failed", "registration_id", registrationID, "account_id", acct.ID, "error", err)
	}
	deps.count(b.Program.Type, "account_created")
	return acct.ID, true
}

// notifyRegistration sends the family confirmation and the admin notice concurrently.
// Neither failure reaches the caller; each is logged and written to the outbox.
// Sends use a context detached from the request so a closed connection does not cancel them.
func notifyRegistration(ctx context.Context, deps SubmitRegistrationDeps, reg registration.Registration, b bundle.Bundle, sessions []session.Session, result SubmitRegistrationResult) {
	if deps.Notifier == nil {
		return
	}
	lines := make([]notify.SessionLine, len(sessions))
	titles := make([]string, len(sessions))
	for i, s := range sessions {
		lines[i] = notify.SessionLine{Title: s.Title, StartsAt: s.StartsAt}
		titles[i] = s.Title
	}
	names := make([]string, len(b.Children))
	for i, c := range b.Children {
		names[i] = c.Name
	}

	confirmation := notify.Confirmation{
		RegistrationID: reg.ID,
		ProgramName:    b.Program.Name,
		ParentName:     reg.ParentName,
		ParentEmail:    reg.ParentEmail,
		Sessions:       lines,
		ChildNames:     names,
		TotalCents:     reg.TotalAmountCents,
		PaymentMethod:  reg.PaymentMethod,
		Waitlisted:     result.Waitlisted,
	}
	summary := notify.AdminSummary{
		RegistrationID: reg.ID,
		ProgramName:    b.Program.Name,
		ParentName:     reg.ParentName,
		ParentEmail:    reg.ParentEmail,
		SessionTitles:  titles,
		ChildCount:     len(b.Children),
		TotalCents:     reg.TotalAmountCents,
		Waitlisted:     result.Waitlisted,
		NeedsRepair:    result.NeedsRepair,
	}

	ctx = context.WithoutCancel(ctx)
	send := func() {
		var g errgroup.Group
		g.Go(func() error {
			err := deps.Notifier.SendConfirmation(ctx, confirmation)
			recordNotificationFailure(ctx, deps, outbox.ActionConfirmation, reg.ID, confirmation, err)
			return nil
		})
		g.Go(func() error {
			err := deps.Notifier.SendAdminNotification(ctx, summary)
			recordNotificationFailure(ctx, deps, outbox.ActionAdminNotice, reg.ID, summary, err)
			return nil
		})
		_ = g.Wait()
	}
	if deps.Background == nil {
		send()
		return
	}
	deps.Background(send)
}

func recordNotificationFailure(ctx context.Context, deps SubmitRegistrationDeps, action, registrationID string, payload any, sendErr error) {
	if sendErr == nil {
		return
	}
	slog.Error("notification_send_failed", "action", action, "registration_id", registrationID, "error", sendErr)
	if deps.Metrics != nil {
		deps.Metrics.NotificationFailed(action)
	}
	if deps.Outbox == nil {
		return
	}
	body, err := notify.Payload(payload)
	if err != nil {
		slog.Error("notification_outbox_encode_failed", "action", action, "registration_id", registrationID, "error", err)
		return
	}
	entry := outbox.NewFailed(deps.GenerateID(), action, registrationID, body, sendErr, deps.Now())
	if err := deps.Outbox.Save(ctx, entry); err != nil {
		slog.Error("notification_outbox_save_failed", "action", action, "registration_id", registrationID, "error", err)
	}
}
