package projections

import (
	"context"
	"testing"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/adapters/storage/activity"
	"registrar/internal/adapters/storage/outbox"
	"registrar/internal/adapters/storage/registration"
	"registrar/internal/adapters/storage/session"
	domainAccountSettings "registrar/internal/domain/accountsettings"
	domainActivity "registrar/internal/domain/activity"
	domainOutbox "registrar/internal/domain/outbox"
	domainRegistration "registrar/internal/domain/registration"
	domainSession "registrar/internal/domain/session"
)

var queryTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type mockRegistrationReader struct {
	regs     []domainRegistration.Registration
	children map[string][]domainRegistration.Child
	filter   registration.ListFilter
}

// GetByID returns a seeded registration.
// PRE: id is non-empty
// POST: Returns the registration or storage.ErrNotFound
func (m *mockRegistrationReader) GetByID(_ context.Context, id string) (domainRegistration.Registration, error) {
	for _, r := range m.regs {
		if r.ID == id {
			return r, nil
		}
	}
	return domainRegistration.Registration{}, storage.ErrNotFound
}

// ListChildren returns seeded children for the registration.
func (m *mockRegistrationReader) ListChildren(_ context.Context, id string) ([]domainRegistration.Child, error) {
	return m.children[id], nil
}

// ListPickups returns no pickups.
func (m *mockRegistrationReader) ListPickups(_ context.Context, _ string) ([]domainRegistration.Pickup, error) {
	return nil, nil
}

// List records the filter and applies its needs-repair flag.
// PRE: filter is valid
// POST: Returns seeded registrations matching NeedsRepair when set
func (m *mockRegistrationReader) List(_ context.Context, filter registration.ListFilter) ([]domainRegistration.Registration, error) {
	m.filter = filter
	var out []domainRegistration.Registration
	for _, r := range m.regs {
		if filter.NeedsRepair != nil && r.NeedsRepair != *filter.NeedsRepair {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type mockActivityReader struct {
	entries []domainActivity.Entry
	filter  activity.Filter
}

// List returns the seeded entries and records the filter.
func (m *mockActivityReader) List(_ context.Context, filter activity.Filter) ([]domainActivity.Entry, error) {
	m.filter = filter
	return m.entries, nil
}

type mockOutboxReader struct {
	entries []domainOutbox.Entry
	filter  outbox.ListFilter
}

// List returns the seeded entries and records the filter.
func (m *mockOutboxReader) List(_ context.Context, filter outbox.ListFilter) ([]domainOutbox.Entry, error) {
	m.filter = filter
	return m.entries, nil
}

func seededRegistrations() *mockRegistrationReader {
	ok := domainRegistration.Registration{
		ID: "reg-ok", ProgramType: "workshop", ParentName: "Aroha", ParentEmail: "aroha@example.com",
		BasePriceCents: 5000, SessionCount: 2, TotalAmountCents: 18000, AmountPaidCents: 5000,
		Status: domainRegistration.StatusPending, PaymentStatus: domainRegistration.PaymentPartial,
		AccountID: "acct-1", CreatedAt: queryTime,
	}
	broken := domainRegistration.Registration{
		ID: "reg-broken", ProgramType: "workshop", ParentName: "Sam", ParentEmail: "sam@example.com",
		BasePriceCents: 5000, SessionCount: 1, TotalAmountCents: 5000,
		Status: domainRegistration.StatusPending, PaymentStatus: domainRegistration.PaymentUnpaid,
		NeedsRepair: true, CreatedAt: queryTime,
	}
	return &mockRegistrationReader{
		regs: []domainRegistration.Registration{ok, broken},
		children: map[string][]domainRegistration.Child{
			"reg-ok": {
				{ID: "c1", RegistrationID: "reg-ok", Position: 0, DiscountCents: 0},
				{ID: "c2", RegistrationID: "reg-ok", Position: 1, DiscountCents: 1000},
			},
		},
	}
}

// TestQueryGetRegistrationList_RowsAndRepairCount verifies list rows carry balances and repair flags.
// PRE: One healthy and one needs-repair registration are seeded
// POST: Both rows returned, balance derived, repair counted, default limit applied
func TestQueryGetRegistrationList_RowsAndRepairCount(t *testing.T) {
	regs := seededRegistrations()
	got, err := QueryGetRegistrationList(context.Background(), GetRegistrationListQuery{}, GetRegistrationListDeps{Registrations: regs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Registrations) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Registrations))
	}
	if got.Registrations[0].BalanceCents != 13000 || !got.Registrations[0].Linked {
		t.Errorf("row 0 = %+v, want balance 13000 and linked", got.Registrations[0])
	}
	if got.NeedsRepair != 1 {
		t.Errorf("NeedsRepair = %d, want 1", got.NeedsRepair)
	}
	if regs.filter.Limit != defaultRegistrationLimit {
		t.Errorf("limit = %d, want %d", regs.filter.Limit, defaultRegistrationLimit)
	}
}

// TestQueryGetRegistrationList_NeedsRepairFilter verifies the repair filter reaches the store.
func TestQueryGetRegistrationList_NeedsRepairFilter(t *testing.T) {
	yes := true
	got, err := QueryGetRegistrationList(context.Background(), GetRegistrationListQuery{NeedsRepair: &yes, Limit: 10}, GetRegistrationListDeps{Registrations: seededRegistrations()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Registrations) != 1 || got.Registrations[0].ID != "reg-broken" {
		t.Errorf("rows = %+v, want only reg-broken", got.Registrations)
	}
}

// TestQueryGetRegistrationDetail_VerifiesTotal verifies the stored total is re-derived.
// PRE: reg-ok stores base 5000, discounts 0 and 1000, two sessions, total 18000
// POST: TotalVerified true; history and outbox are filtered to the registration
func TestQueryGetRegistrationDetail_VerifiesTotal(t *testing.T) {
	act := &mockActivityReader{entries: []domainActivity.Entry{{ID: "a1", Action: domainActivity.ActionRegistrationUpdated}}}
	box := &mockOutboxReader{}
	got, err := QueryGetRegistrationDetail(context.Background(), GetRegistrationDetailQuery{RegistrationID: "reg-ok"}, GetRegistrationDetailDeps{
		Registrations: seededRegistrations(), Activity: act, Outbox: box,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.TotalVerified {
		t.Errorf("TotalVerified = false: %s", got.TotalProblem)
	}
	if len(got.Children) != 2 || len(got.History) != 1 {
		t.Errorf("children=%d history=%d, want 2 and 1", len(got.Children), len(got.History))
	}
	if act.filter.EntityID != "reg-ok" || act.filter.EntityType != domainActivity.EntityRegistration {
		t.Errorf("activity filter = %+v", act.filter)
	}
	if box.filter.RegistrationID != "reg-ok" {
		t.Errorf("outbox filter = %+v", box.filter)
	}
}

// TestQueryGetRegistrationDetail_Problems covers tampered totals, missing children and unknown IDs.
func TestQueryGetRegistrationDetail_Problems(t *testing.T) {
	regs := seededRegistrations()
	regs.regs[0].TotalAmountCents = 17000

	got, err := QueryGetRegistrationDetail(context.Background(), GetRegistrationDetailQuery{RegistrationID: "reg-ok"}, GetRegistrationDetailDeps{Registrations: regs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalVerified || got.TotalProblem == "" {
		t.Errorf("tampered total verified: %+v", got)
	}

	got, err = QueryGetRegistrationDetail(context.Background(), GetRegistrationDetailQuery{RegistrationID: "reg-broken"}, GetRegistrationDetailDeps{Registrations: regs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalVerified {
		t.Error("registration without children verified")
	}

	_, err = QueryGetRegistrationDetail(context.Background(), GetRegistrationDetailQuery{RegistrationID: "missing"}, GetRegistrationDetailDeps{Registrations: regs})
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

type mockSessionReader struct {
	sessions []domainSession.Session
	enrolled map[string]int
}

// List returns the seeded sessions.
func (m *mockSessionReader) List(_ context.Context, _ session.ListFilter) ([]domainSession.Session, error) {
	return m.sessions, nil
}

// Availability returns seeded enrolment for sessions that have any.
func (m *mockSessionReader) Availability(_ context.Context, ids []string) ([]domainSession.Availability, error) {
	var out []domainSession.Availability
	for _, s := range m.sessions {
		if n, ok := m.enrolled[s.ID]; ok {
			out = append(out, domainSession.Availability{SessionID: s.ID, Capacity: s.Capacity, Enrolled: n})
		}
	}
	return out, nil
}

// TestQueryGetSessionAvailability covers full, open and unlimited sessions.
func TestQueryGetSessionAvailability(t *testing.T) {
	deps := GetSessionAvailabilityDeps{Sessions: &mockSessionReader{
		sessions: []domainSession.Session{
			{ID: "s-full", ProgramType: "workshop", Title: "Robots", StartsAt: queryTime, Capacity: 3, Active: true},
			{ID: "s-open", ProgramType: "workshop", Title: "Kites", StartsAt: queryTime, Capacity: 10, Active: true},
			{ID: "s-any", ProgramType: "workshop", Title: "Clay", StartsAt: queryTime, Active: true},
		},
		enrolled: map[string]int{"s-full": 4, "s-open": 2},
	}}
	got, err := QueryGetSessionAvailability(context.Background(), GetSessionAvailabilityQuery{}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]struct {
		remaining int
		full      bool
	}{"s-full": {0, true}, "s-open": {8, false}, "s-any": {-1, false}}
	for _, s := range got {
		w := want[s.ID]
		if s.Remaining != w.remaining || s.Full != w.full {
			t.Errorf("%s: remaining=%d full=%v, want %d %v", s.ID, s.Remaining, s.Full, w.remaining, w.full)
		}
	}
}

// TestQueryGetOutbox_DefaultsToFailed verifies the default status filter.
func TestQueryGetOutbox_DefaultsToFailed(t *testing.T) {
	box := &mockOutboxReader{}
	got, err := QueryGetOutbox(context.Background(), GetOutboxQuery{}, GetOutboxDeps{Outbox: box})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if box.filter.Status != domainOutbox.StatusFailed {
		t.Errorf("status filter = %q, want failed", box.filter.Status)
	}
	if got == nil {
		t.Error("nil slice returned for empty outbox")
	}
}

// TestQueryGetActivityFeed_DefaultLimit verifies the feed limit default.
func TestQueryGetActivityFeed_DefaultLimit(t *testing.T) {
	act := &mockActivityReader{}
	if _, err := QueryGetActivityFeed(context.Background(), GetActivityFeedQuery{EntityType: "registration"}, GetActivityFeedDeps{Activity: act}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act.filter.Limit != defaultRegistrationLimit || act.filter.EntityType != "registration" {
		t.Errorf("filter = %+v", act.filter)
	}
}

type mockSettingsReader struct {
	saved map[string]domainAccountSettings.Settings
}

// Get returns saved settings or storage.ErrNotFound.
func (m *mockSettingsReader) Get(_ context.Context, id string) (domainAccountSettings.Settings, error) {
	s, ok := m.saved[id]
	if !ok {
		return domainAccountSettings.Settings{}, storage.ErrNotFound
	}
	return s, nil
}

// TestQueryGetAccountSettings_EmptyWhenUnsaved verifies accounts without settings get an empty document.
func TestQueryGetAccountSettings_EmptyWhenUnsaved(t *testing.T) {
	deps := GetAccountSettingsDeps{Settings: &mockSettingsReader{saved: map[string]domainAccountSettings.Settings{
		"acct-1": {AccountID: "acct-1", Parent: domainAccountSettings.Contact{Name: "Dana"}},
	}}}
	got, err := QueryGetAccountSettings(context.Background(), "acct-2", deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AccountID != "acct-2" || got.Children == nil || !got.Parent.IsZero() {
		t.Errorf("empty settings = %+v", got)
	}
	got, _ = QueryGetAccountSettings(context.Background(), "acct-1", deps)
	if got.Parent.Name != "Dana" {
		t.Errorf("saved settings = %+v", got)
	}
}
