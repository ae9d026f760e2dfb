package activity

import (
	"errors"
	"reflect"
	"sort"
	"time"
)

// Action tags an activity entry.
type Action string

const (
	ActionRegistrationCreated     Action = "registration.created"
	ActionRegistrationUpdated     Action = "registration.updated"
	ActionRegistrationCancelled   Action = "registration.cancelled"
	ActionRegistrationReinstated  Action = "registration.reinstated"
	ActionNotificationResent      Action = "notification.resent"
	ActionAccountSettingsReplaced Action = "account_settings.replaced"
)

// Entity types recorded on entries.
const (
	EntityRegistration    = "registration"
	EntityOutbox          = "outbox_entry"
	EntityAccountSettings = "account_settings"
)

var (
	ErrEmptyAction = errors.New("activity action is required")
	ErrEmptyEntity = errors.New("activity entity type and id are required")
)

// Change is one field's before/after pair.
type Change struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Changes maps field name to its change.
type Changes map[string]Change

// Fields returns the changed field names in sorted order.
func (c Changes) Fields() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entry is an append-only activity log record.
// INVARIANT: Entries are never mutated or deleted once stored
type Entry struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Changes    Changes   `json:"changes"`
	ActorID    string    `json:"actor_id"`
	ActorEmail string    `json:"actor_email"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the entry has the fields every stored entry needs.
// PRE: none
// POST: Returns nil if the entry is storable
func (e Entry) Validate() error {
	if e.Action == "" {
		return ErrEmptyAction
	}
	if e.EntityType == "" || e.EntityID == "" {
		return ErrEmptyEntity
	}
	return nil
}

// Diff compares the fields present in update against current.
// Fields absent from update are ignored. A pair where both sides are nil is not a change,
// and pointer values are compared by what they point to.
// PRE: none
// POST: Returns only the fields whose value differs; empty (non-nil) when nothing changed
// INVARIANT: Pure function
func Diff(current, update map[string]any) Changes {
	out := Changes{}
	for field, after := range update {
		before := current[field]
		b, a := deref(before), deref(after)
		if b == nil && a == nil {
			continue
		}
		if reflect.DeepEqual(b, a) {
			continue
		}
		out[field] = Change{Before: b, After: a}
	}
	return out
}

// deref unwraps pointers so *string("x") and "x" compare equal; nil pointers become nil.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
