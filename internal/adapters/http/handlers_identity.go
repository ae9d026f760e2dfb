package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"registrar/internal/adapters/http/middleware"
	"registrar/internal/adapters/identity"
	"registrar/internal/application/intake"
	"registrar/internal/application/orchestrators"
	"registrar/internal/domain/account"
	"registrar/internal/domain/linkage"
)

const continuationCookieName = "registrar_continuation"

// identityStatus maps an identity error category to an HTTP status.
func identityStatus(err error) int {
	switch linkage.CategoryOf(err) {
	case linkage.CategoryInvalidInput:
		return http.StatusBadRequest
	case linkage.CategoryWrongSecret, linkage.CategoryUnknownIdentity:
		return http.StatusUnauthorized
	case linkage.CategoryLocked:
		return http.StatusLocked
	case linkage.CategoryRateLimited:
		return http.StatusTooManyRequests
	case linkage.CategoryConflict:
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

// identityMessage returns the client-safe reason inside an identity error.
func identityMessage(err error) string {
	var ie *linkage.IdentityError
	if errors.As(err, &ie) && ie.Err != nil {
		return ie.Err.Error()
	}
	return string(linkage.CategoryOf(err))
}

// handleResolveLinkage classifies the email typed into the form. Always 200.
func (s *server) handleResolveLinkage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := orchestrators.ResolveLinkageInput{Email: body.Email}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		input.SignedInEmail = sess.Email
	}
	writeJSON(w, http.StatusOK, orchestrators.ExecuteResolveLinkage(r.Context(), input, orchestrators.ResolveLinkageDeps{
		Prober:  s.Prober,
		Metrics: s.Metrics,
	}))
}

type linkedSignInRequest struct {
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Decline  bool                `json:"decline"`
	Draft    intake.DraftRequest `json:"draft"`
}

type linkedSignInResponse struct {
	State linkage.State `json:"state"`
	Draft intake.Draft  `json:"draft"`
	Error string        `json:"error,omitempty"`
}

// handleLinkedSignIn runs the sign-in offered inside the registration form.
func (s *server) handleLinkedSignIn(w http.ResponseWriter, r *http.Request) {
	var body linkedSignInRequest
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := orchestrators.ExecuteLinkedSignIn(r.Context(), orchestrators.LinkedSignInInput{
		Email:    body.Email,
		Password: body.Password,
		Decline:  body.Decline,
		Draft:    body.Draft,
	}, orchestrators.LinkedSignInDeps{
		Identity: s.Identity,
		Settings: s.Stores.Settings,
		Catalog:  s.Catalog,
		Now:      s.Now,
	})
	if err != nil {
		status := http.StatusServiceUnavailable
		switch {
		case errors.Is(err, orchestrators.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, orchestrators.ErrAccountLocked):
			status = http.StatusLocked
		}
		writeJSON(w, status, linkedSignInResponse{State: res.State, Draft: res.Draft, Error: err.Error()})
		return
	}
	if res.SessionToken != "" {
		middleware.SetSessionCookie(w, res.SessionToken)
	}
	writeJSON(w, http.StatusOK, linkedSignInResponse{State: res.State, Draft: res.Draft})
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type meResponse struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *server) startSession(w http.ResponseWriter, r *http.Request, acct account.Account) bool {
	token, err := s.Identity.StartSession(acct)
	if err != nil {
		internalError(w, r, err)
		return false
	}
	middleware.SetSessionCookie(w, token)
	return true
}

// handleSignIn is the standalone password sign-in.
func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.Identity.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status := identityStatus(err)
		msg := "sign-in is unavailable right now"
		switch status {
		case http.StatusBadRequest, http.StatusUnauthorized:
			status, msg = http.StatusUnauthorized, orchestrators.ErrInvalidCredentials.Error()
		case http.StatusLocked:
			msg = orchestrators.ErrAccountLocked.Error()
		}
		writeError(w, status, msg)
		return
	}
	if s.startSession(w, r, acct) {
		writeJSON(w, http.StatusOK, meResponse{AccountID: acct.ID, Email: acct.Email, DisplayName: acct.DisplayName, Role: acct.Role})
	}
}

// handleSignUp creates a password account outside the registration flow.
func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.Identity.SignUp(r.Context(), identity.SignUpInput{Email: body.Email, Password: body.Password, DisplayName: body.DisplayName})
	if err != nil {
		status := identityStatus(err)
		if status == http.StatusServiceUnavailable {
			internalError(w, r, err)
			return
		}
		writeError(w, status, identityMessage(err))
		return
	}
	if s.startSession(w, r, acct) {
		writeJSON(w, http.StatusCreated, meResponse{AccountID: acct.ID, Email: acct.Email, DisplayName: acct.DisplayName, Role: acct.Role})
	}
}

// handleSignOut ends the current session. Idempotent.
func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		s.Identity.EndSession(token)
	}
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the signed-in account.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{AccountID: sess.AccountID, Email: sess.Email, DisplayName: sess.DisplayName, Role: sess.Role})
}

// handlePasswordResetRequest always answers 202 so the endpoint cannot enumerate accounts.
func (s *server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Identity.RequestPasswordReset(r.Context(), body.Email); err != nil {
		slog.Warn("password_reset_request_failed", "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

// handlePasswordResetConfirm sets a new password from a reset token.
func (s *server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := strictDecode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Identity.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		status := identityStatus(err)
		if status == http.StatusServiceUnavailable {
			internalError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "reset link is invalid or expired")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOAuthStart issues a continuation token and redirects to the provider.
// GET /auth/oauth/start?return_to=/register
func (s *server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.OAuth == nil {
		writeError(w, http.StatusNotFound, "oauth sign-in is not configured")
		return
	}
	returnTo := r.URL.Query().Get("return_to")
	if returnTo == "" {
		returnTo = "/"
	}
	token, err := s.Continuations.Issue(returnTo)
	if errors.Is(err, linkage.ErrUnsafeReturnPath) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	cont, _ := s.Continuations.Resume(token)
	http.SetCookie(w, &http.Cookie{
		Name:     continuationCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/auth/oauth",
		MaxAge:   int(linkage.ContinuationTTL.Seconds()),
	})
	http.Redirect(w, r, s.OAuth.AuthCodeURL(cont.ID), http.StatusFound)
}

// handleOAuthCallback completes the provider round trip. A missing or stale continuation
// restarts the flow instead of resuming it.
func (s *server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.OAuth == nil {
		writeError(w, http.StatusNotFound, "oauth sign-in is not configured")
		return
	}
	clearContinuation := func() {
		http.SetCookie(w, &http.Cookie{Name: continuationCookieName, Value: "", Path: "/auth/oauth", MaxAge: -1, HttpOnly: true, Secure: s.SecureCookies})
	}

	var token string
	if c, err := r.Cookie(continuationCookieName); err == nil {
		token = c.Value
	}
	cont, ok := s.Continuations.Resume(token)
	if !ok {
		slog.Info("auth_event", "event", "oauth_continuation_rejected")
		clearContinuation()
		http.Redirect(w, r, "/?"+url.Values{"linkage": {"restart"}}.Encode(), http.StatusFound)
		return
	}
	if r.URL.Query().Get("state") != cont.ID {
		slog.Warn("auth_event", "event", "oauth_state_mismatch")
		clearContinuation()
		writeError(w, http.StatusBadRequest, "sign-in state does not match, please try again")
		return
	}
	if e := r.URL.Query().Get("error"); e != "" {
		slog.Info("auth_event", "event", "oauth_denied", "reason", e)
		clearContinuation()
		http.Redirect(w, r, cont.ReturnTo, http.StatusFound)
		return
	}

	profile, err := s.OAuth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		slog.Warn("auth_event", "event", "oauth_exchange_failed", "error", err)
		clearContinuation()
		writeError(w, http.StatusBadGateway, "sign-in with the provider failed, you can continue without signing in")
		return
	}
	acct, err := s.Identity.SignInOAuth(r.Context(), profile)
	if err != nil {
		clearContinuation()
		writeError(w, identityStatus(err), "sign-in with the provider failed, you can continue without signing in")
		return
	}
	clearContinuation()
	if !s.startSession(w, r, acct) {
		return
	}
	http.Redirect(w, r, cont.ReturnTo, http.StatusFound)
}
