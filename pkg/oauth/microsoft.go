package oauth

import (
	"io"
	"strings"

	"golang.org/x/oauth2/microsoft"
)

const (
	MicrosoftProviderName = "microsoft"
	microsoftUserInfoURL  = "https://graph.microsoft.com/oidc/userinfo"
)

// MicrosoftConfig holds Entra ID credentials. Microsoft sign-in is disabled
// when ClientID is empty.
type MicrosoftConfig struct {
	ClientID     string `env:"MICROSOFT_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"MICROSOFT_OAUTH_CLIENT_SECRET"`
	Tenant       string `env:"MICROSOFT_OAUTH_TENANT" envDefault:"common"`
}

// Enabled reports whether credentials are configured.
func (c MicrosoftConfig) Enabled() bool { return c.ClientID != "" }

// MicrosoftProvider signs users in with work, school or personal Microsoft accounts.
type MicrosoftProvider struct {
	*base
}

// NewMicrosoftProvider creates a Microsoft provider redirecting to redirectURL.
func NewMicrosoftProvider(cfg MicrosoftConfig, redirectURL string, opts ...Option) (*MicrosoftProvider, error) {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	b, err := newBase(MicrosoftProviderName, cfg.ClientID, cfg.ClientSecret, redirectURL,
		[]string{"openid", "email", "profile", "User.Read"},
		microsoft.AzureADEndpoint(tenant), microsoftUserInfoURL, opts)
	if err != nil {
		return nil, err
	}
	b.decode = decodeMicrosoft
	return &MicrosoftProvider{base: b}, nil
}

// The Graph userinfo endpoint only returns addresses that belong to the
// account, so a missing email is the only rejection case.
func decodeMicrosoft(body io.Reader) (*UserInfo, error) {
	var u struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := decodeJSON(body, &u); err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.Email) == "" {
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
