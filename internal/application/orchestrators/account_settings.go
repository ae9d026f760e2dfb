package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"registrar/internal/adapters/storage"
	"registrar/internal/domain/accountsettings"
	"registrar/internal/domain/activity"
	"registrar/internal/domain/bundle"
)

// SettingsStore defines the store interface needed by SaveAccountSettings.
type SettingsStore interface {
	Get(ctx context.Context, accountID string) (accountsettings.Settings, error)
	Save(ctx context.Context, s accountsettings.Settings) error
}

// ActivityAppender appends to the activity log.
type ActivityAppender interface {
	Append(ctx context.Context, entry activity.Entry) error
}

// SaveAccountSettingsInput carries the full replacement settings document.
type SaveAccountSettingsInput struct {
	AccountID  string
	ActorEmail string
	Settings   accountsettings.Settings
}

// SaveAccountSettingsDeps holds dependencies for SaveAccountSettings.
type SaveAccountSettingsDeps struct {
	Store      SettingsStore
	Activity   ActivityAppender // optional
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteSaveAccountSettings replaces an account's registration defaults.
// PRE: AccountID is the signed-in account
// POST: Settings stored; past registrations are never touched
func ExecuteSaveAccountSettings(ctx context.Context, input SaveAccountSettingsInput, deps SaveAccountSettingsDeps) (accountsettings.Settings, error) {
	now := deps.Now()
	s := input.Settings
	s.AccountID = input.AccountID
	s.Normalize()
	for i := range s.Children {
		if s.Children[i].ID == "" {
			s.Children[i].ID = deps.GenerateID()
		}
	}
	if err := s.Validate(now); err != nil {
		return accountsettings.Settings{}, &ValidationError{Fields: bundle.FieldErrors{"settings": err.Error()}}
	}
	s.UpdatedAt = now

	previous, err := deps.Store.Get(ctx, input.AccountID)
	existed := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return accountsettings.Settings{}, err
	}

	if err := deps.Store.Save(ctx, s); err != nil {
		return accountsettings.Settings{}, err
	}

	if deps.Activity != nil {
		entry := activity.Entry{
			ID:         deps.GenerateID(),
			Action:     activity.ActionAccountSettingsReplaced,
			EntityType: activity.EntityAccountSettings,
			EntityID:   input.AccountID,
			Changes: activity.Diff(
				map[string]any{"children": len(previous.Children), "pickups": len(previous.Pickups), "existed": existed},
				map[string]any{"children": len(s.Children), "pickups": len(s.Pickups), "existed": true},
			),
			ActorID:    input.AccountID,
			ActorEmail: input.ActorEmail,
			Timestamp:  now,
		}
		if err := deps.Activity.Append(ctx, entry); err != nil {
			slog.Error("activity_append_failed", "entity_type", entry.EntityType, "entity_id", entry.EntityID, "error", err)
		}
	}

	slog.Info("account_settings_saved", "account_id", input.AccountID, "children", len(s.Children), "pickups", len(s.Pickups))
	return s, nil
}
