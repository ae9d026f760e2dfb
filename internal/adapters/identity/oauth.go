package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"registrar/internal/domain/linkage"
)

// ErrUnverifiedEmail is returned when the provider does not vouch for the email.
var ErrUnverifiedEmail = errors.New("provider did not verify the email address")

// OAuthConfig configures an authorization-code provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// Profile is the identity asserted by the provider.
type Profile struct {
	Email string
	Name  string
}

// OAuthProvider starts and completes the provider redirect.
type OAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewOAuthProvider builds a provider from cfg.
func NewOAuthProvider(cfg OAuthConfig) *OAuthProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL returns the provider URL to redirect to; state round-trips to the callback.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the user's profile.
// PRE: code came from the provider callback
// POST: Returns a profile with a verified email, or an IdentityError
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryUnavailable, fmt.Errorf("oauth exchange: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryUnavailable, err)
	}
	resp, err := p.config.Client(ctx, tok).Do(req)
	if err != nil {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryUnavailable, fmt.Errorf("fetch userinfo: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryUnavailable, fmt.Errorf("userinfo status %d", resp.StatusCode))
	}

	var info struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryUnavailable, fmt.Errorf("decode userinfo: %w", err))
	}
	if !linkage.ValidEmail(info.Email) || (info.EmailVerified != nil && !*info.EmailVerified) {
		return Profile{}, linkage.NewIdentityError(linkage.CategoryInvalidInput, ErrUnverifiedEmail)
	}
	return Profile{Email: linkage.NormalizeEmail(info.Email), Name: info.Name}, nil
}
