package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"registrar/internal/adapters/http/middleware"
	"registrar/internal/application/intake"
	"registrar/internal/application/orchestrators"
	"registrar/internal/application/projections"
	"registrar/internal/domain/accountsettings"
	"registrar/internal/domain/bundle"
	"registrar/internal/domain/linkage"
	"registrar/internal/domain/pricing"
	"registrar/internal/domain/program"
)

// handlePrograms lists the configured programs and their price ladders.
func (s *server) handlePrograms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.All())
}

// handlePublicSessions lists open sessions with remaining places for the form.
func (s *server) handlePublicSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := projections.QueryGetSessionAvailability(r.Context(), projections.GetSessionAvailabilityQuery{
		ProgramType: r.URL.Query().Get("program"),
		ActiveOnly:  true,
	}, projections.GetSessionAvailabilityDeps{Sessions: s.Stores.Sessions})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleQuote prices a child and session count: GET /api/quote?program=&children=&sessions=
func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := program.ParseType(q.Get("program"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.Catalog.Get(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	children, _ := strconv.Atoi(q.Get("children"))
	sessions, _ := strconv.Atoi(q.Get("sessions"))
	quote, err := cfg.Ladder().Quote(children, sessions)
	if err != nil {
		if errors.Is(err, pricing.ErrChildCount) || errors.Is(err, pricing.ErrSessionCount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleDraft merges saved defaults into untouched sections and attaches a price projection.
// A signed-in session always counts as logged_in regardless of what the browser reports.
func (s *server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req intake.DraftRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var settings *accountsettings.Settings
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		req.Linkage = linkage.StateLoggedIn
		saved, err := projections.QueryGetAccountSettings(r.Context(), sess.AccountID, projections.GetAccountSettingsDeps{Settings: s.Stores.Settings})
		if err != nil {
			internalError(w, r, err)
			return
		}
		settings = &saved
	} else if req.Linkage == linkage.StateLoggedIn {
		req.Linkage = linkage.StateIdle
	}

	writeJSON(w, http.StatusOK, intake.BuildDraft(req, settings, s.Catalog, s.Now()))
}

type submitResponse struct {
	RegistrationID string         `json:"registration_id"`
	TotalCents     int            `json:"total_cents"`
	Quote          *pricing.Quote `json:"quote,omitempty"`
	Waitlisted     bool           `json:"waitlisted"`
	AccountCreated bool           `json:"account_created"`
}

// handleSubmitRegistration accepts a registration bundle as JSON or as a form post.
func (s *server) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var sub bundle.Submission
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := strictDecode(w, r, &sub); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		sub = bundle.DecodeForm(r.PostForm)
	}

	input := orchestrators.SubmitRegistrationInput{Submission: sub}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		input.ActorAccountID = sess.AccountID
	}

	res, err := orchestrators.ExecuteSubmitRegistration(r.Context(), input, orchestrators.SubmitRegistrationDeps{
		Catalog:       s.Catalog,
		Registrations: s.Stores.Registrations,
		Sessions:      s.Stores.Sessions,
		Accounts:      s.Identity,
		Notifier:      s.Notifier,
		Outbox:        s.Stores.Outbox,
		Metrics:       s.Metrics,
		GenerateID:    s.GenerateID,
		Now:           s.Now,
		Background:    s.Background,
	})
	var verr *orchestrators.ValidationError
	var perr *orchestrators.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "registration is invalid", "fields": verr.Fields})
		return
	case errors.As(err, &perr):
		writeError(w, http.StatusInternalServerError, perr.Error())
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	resp := submitResponse{
		RegistrationID: res.RegistrationID,
		TotalCents:     res.Quote.TotalCents,
		Waitlisted:     res.Waitlisted,
		AccountCreated: res.AccountCreated,
	}
	if len(res.Quote.Lines) > 0 {
		resp.Quote = &res.Quote
	}
	writeJSON(w, http.StatusCreated, resp)
}
