package oauth

import (
	"io"

	"golang.org/x/oauth2/google"
)

const (
	GoogleProviderName = "google"
	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleConfig holds Google OAuth credentials. Google sign-in is disabled
// when ClientID is empty.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
}

// Enabled reports whether credentials are configured.
func (c GoogleConfig) Enabled() bool { return c.ClientID != "" }

// GoogleProvider signs users in with Google accounts.
type GoogleProvider struct {
	*base
}

// NewGoogleProvider creates a Google provider redirecting to redirectURL.
func NewGoogleProvider(cfg GoogleConfig, redirectURL string, opts ...Option) (*GoogleProvider, error) {
	b, err := newBase(GoogleProviderName, cfg.ClientID, cfg.ClientSecret, redirectURL,
		[]string{"openid", "email", "profile"}, google.Endpoint, googleUserInfoURL, opts)
	if err != nil {
		return nil, err
	}
	b.decode = decodeGoogle
	return &GoogleProvider{base: b}, nil
}

func decodeGoogle(body io.Reader) (*UserInfo, error) {
	var u struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := decodeJSON(body, &u); err != nil {
		return nil, err
	}
	if !u.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return &UserInfo{
		Subject:   u.Sub,
		Email:     u.Email,
		Name:      u.Name,
		FirstName: u.GivenName,
		Surname:   u.FamilyName,
		Picture:   u.Picture,
	}, nil
}
