package linkage

import (
	"net/mail"
	"strings"
)

// State is the account-linkage flow state for the email typed into a registration form.
type State string

const (
	StateIdle         State = "idle"
	StateChecking     State = "checking"
	StateNewUser      State = "new_user"
	StateExistingUser State = "existing_user"
	StateLoggedIn     State = "logged_in"
)

// EventKind identifies a resolver event.
type EventKind string

const (
	EventEmailChanged    EventKind = "email_changed"
	EventProbeResolved   EventKind = "probe_resolved"
	EventSignInSucceeded EventKind = "sign_in_succeeded"
	EventSignInFailed    EventKind = "sign_in_failed"
	EventSignInDeclined  EventKind = "sign_in_declined"
	EventSessionActive   EventKind = "session_active"
	EventSignedOut       EventKind = "signed_out"
)

// Event is one input to the resolver.
// Email is set for EventEmailChanged; Ticket and Result for EventProbeResolved.
type Event struct {
	Kind   EventKind
	Email  string
	Ticket Ticket
	Result Existence
}

// Ticket identifies one probe so a result for a superseded email can be discarded.
type Ticket struct {
	Email string
	Seq   int
}

// Resolver is the linkage state machine.
// INVARIANT: A probe result only applies while State is checking and its Ticket is current
type Resolver struct {
	State State
	Email string
	seq   int
}

// NewResolver returns a resolver in the idle state.
func NewResolver() *Resolver {
	return &Resolver{State: StateIdle}
}

// Ticket returns the ticket a probe for the current email must carry.
func (r *Resolver) Ticket() Ticket {
	return Ticket{Email: r.Email, Seq: r.seq}
}

// Apply feeds one event into the machine.
// PRE: none
// POST: Returns true if the event changed the state or was accepted; false if it was discarded
func (r *Resolver) Apply(ev Event) bool {
	switch ev.Kind {
	case EventEmailChanged:
		email := NormalizeEmail(ev.Email)
		if r.State == StateLoggedIn {
			return false
		}
		if email == r.Email && r.State != StateIdle {
			return false
		}
		r.seq++
		r.Email = email
		if !ValidEmail(email) {
			r.State = StateIdle
			return true
		}
		r.State = StateChecking
		return true

	case EventProbeResolved:
		if r.State != StateChecking || ev.Ticket != r.Ticket() {
			return false
		}
		r.State = ResolvedState(ev.Result)
		return true

	case EventSignInSucceeded:
		if r.State != StateExistingUser {
			return false
		}
		r.State = StateLoggedIn
		return true

	case EventSignInFailed:
		return r.State == StateExistingUser

	case EventSignInDeclined:
		if r.State != StateExistingUser {
			return false
		}
		r.State = StateNewUser
		return true

	case EventSessionActive:
		r.seq++
		if ev.Email != "" {
			r.Email = NormalizeEmail(ev.Email)
		}
		r.State = StateLoggedIn
		return true

	case EventSignedOut:
		r.seq++
		r.Email = ""
		r.State = StateIdle
		return true
	}
	return false
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address is worth probing.
func ValidEmail(email string) bool {
	if email == "" || !strings.Contains(email, "@") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
