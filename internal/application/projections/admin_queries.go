package projections

import (
	"context"
	"errors"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/adapters/storage/activity"
	"registrar/internal/adapters/storage/outbox"
	"registrar/internal/adapters/storage/session"
	domainAccountSettings "registrar/internal/domain/accountsettings"
	domainActivity "registrar/internal/domain/activity"
	domainOutbox "registrar/internal/domain/outbox"
	domainSession "registrar/internal/domain/session"
)

// SessionReader lists sessions and their enrolment counts.
type SessionReader interface {
	List(ctx context.Context, filter session.ListFilter) ([]domainSession.Session, error)
	Availability(ctx context.Context, ids []string) ([]domainSession.Availability, error)
}

// GetSessionAvailabilityQuery filters sessions by program.
type GetSessionAvailabilityQuery struct {
	ProgramType string
	ActiveOnly  bool
}

// SessionAvailability pairs a session with its soft capacity signal.
type SessionAvailability struct {
	ID          string `json:"id"`
	ProgramType string `json:"program_type"`
	Title       string `json:"title"`
	StartsAt    string `json:"starts_at"`
	Active      bool   `json:"active"`
	Capacity    int    `json:"capacity"`
	Enrolled    int    `json:"enrolled"`
	// Remaining is -1 for sessions without a capacity.
	Remaining int  `json:"remaining"`
	Full      bool `json:"full"`
}

// GetSessionAvailabilityDeps holds dependencies for GetSessionAvailability.
type GetSessionAvailabilityDeps struct {
	Sessions SessionReader
}

// QueryGetSessionAvailability lists sessions with enrolled counts.
// PRE: none
// POST: Counts are point-in-time reads; concurrent submissions may overfill a session
func QueryGetSessionAvailability(ctx context.Context, query GetSessionAvailabilityQuery, deps GetSessionAvailabilityDeps) ([]SessionAvailability, error) {
	sessions, err := deps.Sessions.List(ctx, session.ListFilter{ProgramType: query.ProgramType, ActiveOnly: query.ActiveOnly})
	if err != nil {
		return nil, err
	}
	out := make([]SessionAvailability, 0, len(sessions))
	if len(sessions) == 0 {
		return out, nil
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	avail, err := deps.Sessions.Availability(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domainSession.Availability, len(avail))
	for _, a := range avail {
		byID[a.SessionID] = a
	}
	for _, s := range sessions {
		a, ok := byID[s.ID]
		if !ok {
			a = domainSession.Availability{SessionID: s.ID, Capacity: s.Capacity}
		}
		out = append(out, SessionAvailability{
			ID:          s.ID,
			ProgramType: string(s.ProgramType),
			Title:       s.Title,
			StartsAt:    s.StartsAt.UTC().Format(time.RFC3339),
			Active:      s.Active,
			Capacity:    a.Capacity,
			Enrolled:    a.Enrolled,
			Remaining:   a.Remaining(),
			Full:        a.Remaining() == 0,
		})
	}
	return out, nil
}

// GetActivityFeedQuery filters the activity log.
type GetActivityFeedQuery struct {
	EntityType string
	EntityID   string
	ActorID    string
	Limit      int
}

// GetActivityFeedDeps holds dependencies for GetActivityFeed.
type GetActivityFeedDeps struct {
	Activity ActivityReader
}

// QueryGetActivityFeed returns activity entries newest first.
// PRE: Caller passed the admin allow-list
// POST: At most Limit entries; Limit defaults to 100
func QueryGetActivityFeed(ctx context.Context, query GetActivityFeedQuery, deps GetActivityFeedDeps) ([]domainActivity.Entry, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultRegistrationLimit
	}
	entries, err := deps.Activity.List(ctx, activity.Filter{
		EntityType: query.EntityType,
		EntityID:   query.EntityID,
		ActorID:    query.ActorID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domainActivity.Entry{}
	}
	return entries, nil
}

// GetOutboxQuery filters outbox entries. An empty Status lists failed entries.
type GetOutboxQuery struct {
	Status         string
	RegistrationID string
	Limit          int
}

// GetOutboxDeps holds dependencies for GetOutbox.
type GetOutboxDeps struct {
	Outbox OutboxReader
}

// QueryGetOutbox lists notifications awaiting manual resend.
// PRE: Caller passed the admin allow-list
// POST: Returns entries newest first
func QueryGetOutbox(ctx context.Context, query GetOutboxQuery, deps GetOutboxDeps) ([]domainOutbox.Entry, error) {
	status := query.Status
	if status == "" {
		status = domainOutbox.StatusFailed
	}
	entries, err := deps.Outbox.List(ctx, outbox.ListFilter{Status: status, RegistrationID: query.RegistrationID, Limit: query.Limit})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domainOutbox.Entry{}
	}
	return entries, nil
}

// SettingsReader loads saved account settings.
type SettingsReader interface {
	Get(ctx context.Context, accountID string) (domainAccountSettings.Settings, error)
}

// GetAccountSettingsDeps holds dependencies for GetAccountSettings.
type GetAccountSettingsDeps struct {
	Settings SettingsReader
}

// QueryGetAccountSettings returns an account's saved defaults.
// PRE: accountID is the signed-in account
// POST: An account that never saved settings gets an empty document, not an error
func QueryGetAccountSettings(ctx context.Context, accountID string, deps GetAccountSettingsDeps) (domainAccountSettings.Settings, error) {
	s, err := deps.Settings.Get(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return domainAccountSettings.Settings{AccountID: accountID, Pickups: []domainAccountSettings.Contact{}, Children: []domainAccountSettings.Child{}}, nil
	}
	if err != nil {
		return domainAccountSettings.Settings{}, err
	}
	return s, nil
}
