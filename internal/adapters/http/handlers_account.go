package web

import (
	"errors"
	"net/http"

	"registrar/internal/adapters/http/middleware"
	"registrar/internal/application/orchestrators"
	"registrar/internal/application/projections"
	"registrar/internal/domain/accountsettings"
)

func (s *server) handleGetAccountSettings(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	settings, err := projections.QueryGetAccountSettings(r.Context(), sess.AccountID, projections.GetAccountSettingsDeps{Settings: s.Stores.Settings})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSaveAccountSettings replaces the signed-in account's defaults. Past registrations
// keep the snapshot taken when they were submitted.
func (s *server) handleSaveAccountSettings(w http.ResponseWriter, r *http.Request) {
	var body accountsettings.Settings
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	saved, err := orchestrators.ExecuteSaveAccountSettings(r.Context(), orchestrators.SaveAccountSettingsInput{
		AccountID:  sess.AccountID,
		ActorEmail: sess.Email,
		Settings:   body,
	}, orchestrators.SaveAccountSettingsDeps{
		Store:      s.Stores.Settings,
		Activity:   s.Stores.Activity,
		GenerateID: s.GenerateID,
		Now:        s.Now,
	})
	var verr *orchestrators.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "settings are invalid", "fields": verr.Fields})
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
