package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"registrar/internal/adapters/http/middleware"
	"registrar/internal/adapters/storage"
	"registrar/internal/application/orchestrators"
	"registrar/internal/application/projections"
	"registrar/internal/domain/outbox"
	"registrar/internal/domain/program"
	"registrar/internal/domain/registration"
	"registrar/internal/domain/session"
)

// handleAdminListRegistrations: GET /api/admin/registrations?status=&payment_status=&program=&session_id=&needs_repair=
func (s *server) handleAdminListRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := projections.QueryGetRegistrationList(r.Context(), projections.GetRegistrationListQuery{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		ProgramType:   q.Get("program"),
		SessionID:     q.Get("session_id"),
		NeedsRepair:   queryBool(r, "needs_repair"),
		Limit:         queryInt(r, "limit", 100, 500),
		Offset:        queryInt(r, "offset", 0, 0),
	}, projections.GetRegistrationListDeps{Registrations: s.Stores.Registrations})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdminRegistrationDetail: GET /api/admin/registrations/{id}
func (s *server) handleAdminRegistrationDetail(w http.ResponseWriter, r *http.Request) {
	res, err := projections.QueryGetRegistrationDetail(r.Context(), projections.GetRegistrationDetailQuery{
		RegistrationID: chi.URLParam(r, "id"),
	}, projections.GetRegistrationDetailDeps{
		Registrations: s.Stores.Registrations,
		Activity:      s.Stores.Activity,
		Outbox:        s.Stores.Outbox,
	})
	if err != nil {
		notFoundOr(w, r, err, "registration")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type adminUpdateRequest struct {
	Status             *string `json:"status"`
	PaymentStatus      *string `json:"payment_status"`
	AmountPaidCents    *int    `json:"amount_paid_cents"`
	PaymentMethod      *string `json:"payment_method"`
	AdminNotes         *string `json:"admin_notes"`
	CancellationReason *string `json:"cancellation_reason"`
}

// handleAdminUpdateRegistration: PATCH /api/admin/registrations/{id}
// Only fields present in the body are considered.
func (s *server) handleAdminUpdateRegistration(w http.ResponseWriter, r *http.Request) {
	var body adminUpdateRequest
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	res, err := orchestrators.ExecuteAdminUpdateRegistration(r.Context(), orchestrators.AdminUpdateInput{
		RegistrationID:     chi.URLParam(r, "id"),
		Status:             body.Status,
		PaymentStatus:      body.PaymentStatus,
		AmountPaidCents:    body.AmountPaidCents,
		PaymentMethod:      body.PaymentMethod,
		AdminNotes:         body.AdminNotes,
		CancellationReason: body.CancellationReason,
		ActorID:            sess.AccountID,
		ActorEmail:         sess.Email,
	}, orchestrators.AdminUpdateDeps{
		Registrations: s.Stores.Registrations,
		Metrics:       s.Metrics,
		GenerateID:    s.GenerateID,
		Now:           s.Now,
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
		return
	case errors.Is(err, registration.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "registration changed since it was loaded; reload and retry")
		return
	case errors.Is(err, orchestrators.ErrEmptyUpdate),
		errors.Is(err, registration.ErrInvalidStatus),
		errors.Is(err, registration.ErrInvalidPaymentStatus),
		errors.Is(err, registration.ErrInvalidPaymentMethod),
		errors.Is(err, registration.ErrNegativeAmount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registration": res.Registration,
		"changed":      res.Entry != nil,
		"activity":     res.Entry,
	})
}

// handleAdminSessions lists every session, open or not, with enrolment.
func (s *server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	res, err := projections.QueryGetSessionAvailability(r.Context(), projections.GetSessionAvailabilityQuery{
		ProgramType: r.URL.Query().Get("program"),
	}, projections.GetSessionAvailabilityDeps{Sessions: s.Stores.Sessions})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sessionRequest struct {
	ProgramType string    `json:"program_type"`
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int       `json:"capacity"`
	Active      bool      `json:"active"`
}

// handleAdminSaveSession creates or replaces a session: PUT /api/admin/sessions/{id}
func (s *server) handleAdminSaveSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess := session.Session{
		ID:          chi.URLParam(r, "id"),
		ProgramType: program.Type(strings.ToLower(strings.TrimSpace(body.ProgramType))),
		Title:       strings.TrimSpace(body.Title),
		StartsAt:    body.StartsAt,
		Capacity:    body.Capacity,
		Active:      body.Active,
	}
	if err := sess.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Stores.Sessions.Save(r.Context(), sess); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleAdminActivity: GET /api/admin/activity?entity_type=&entity_id=&actor_id=&limit=
func (s *server) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := projections.QueryGetActivityFeed(r.Context(), projections.GetActivityFeedQuery{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("actor_id"),
		Limit:      queryInt(r, "limit", 100, 500),
	}, projections.GetActivityFeedDeps{Activity: s.Stores.Activity})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAdminOutbox lists notifications awaiting resend: GET /api/admin/outbox?status=&registration_id=
func (s *server) handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := projections.QueryGetOutbox(r.Context(), projections.GetOutboxQuery{
		Status:         q.Get("status"),
		RegistrationID: q.Get("registration_id"),
		Limit:          queryInt(r, "limit", 50, 100),
	}, projections.GetOutboxDeps{Outbox: s.Stores.Outbox})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleAdminOutboxResend(w http.ResponseWriter, r *http.Request) {
	s.outboxAction(w, r, false)
}

func (s *server) handleAdminOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	s.outboxAction(w, r, true)
}

func (s *server) outboxAction(w http.ResponseWriter, r *http.Request, abandon bool) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	entry, err := orchestrators.ExecuteResendNotification(r.Context(), orchestrators.ResendNotificationInput{
		EntryID:    chi.URLParam(r, "id"),
		Abandon:    abandon,
		ActorID:    sess.AccountID,
		ActorEmail: sess.Email,
	}, orchestrators.ResendNotificationDeps{
		Outbox:     s.Stores.Outbox,
		Notifier:   s.Notifier,
		Activity:   s.Stores.Activity,
		GenerateID: s.GenerateID,
		Now:        s.Now,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entry)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "outbox entry not found")
	case errors.Is(err, outbox.ErrNotResendable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrators.ErrResendFailed):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"error": "notification could not be delivered", "entry": entry})
	default:
		internalError(w, r, err)
	}
}
