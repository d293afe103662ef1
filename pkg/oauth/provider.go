package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

var (
	ErrMissingClientID     = errors.New("oauth: missing client ID")
	ErrMissingClientSecret = errors.New("oauth: missing client secret")
	ErrEmailNotVerified    = errors.New("oauth: email not verified")
	ErrFetchFailed         = errors.New("oauth: failed to fetch from provider")
	ErrRequestFailed       = errors.New("oauth: request returned non-OK status")
	ErrDecodeFailed        = errors.New("oauth: failed to decode response")
	ErrUnknownProvider     = errors.New("oauth: unknown provider")
)

// UserInfo is the provider-agnostic profile returned after sign-in.
type UserInfo struct {
	Provider  string
	Subject   string // provider's stable user identifier
	Email     string
	Name      string
	FirstName string
	Surname   string
	Picture   string
}

// Provider is one OAuth2 identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	endpoint    *oauth2.Endpoint
	userInfoURL string
}

// WithHTTPClient sets the client used for token and userinfo requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(o *options) {
		o.endpoint = &ep
	}
}

// WithUserInfoURL overrides the userinfo endpoint.
func WithUserInfoURL(u string) Option {
	return func(o *options) {
		o.userInfoURL = u
	}
}

// base carries the flow shared by all providers. decode maps the userinfo
// body to UserInfo.
type base struct {
	config      *oauth2.Config
	httpClient  *http.Client
	name        string
	userInfoURL string
	decode      func(body io.Reader) (*UserInfo, error)
}

func newBase(name, clientID, clientSecret, redirectURL string, scopes []string,
	ep oauth2.Endpoint, userInfoURL string, opts []Option,
) (*base, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	if clientSecret == "" {
		return nil, ErrMissingClientSecret
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.endpoint != nil {
		ep = *o.endpoint
	}
	if o.userInfoURL != "" {
		userInfoURL = o.userInfoURL
	}

	return &base{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     ep,
		},
		httpClient:  o.httpClient,
		name:        name,
		userInfoURL: userInfoURL,
	}, nil
}

func (b *base) Name() string {
	return b.name
}

func (b *base) AuthCodeURL(state, verifier string) string {
	return b.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

func (b *base) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return b.config.Exchange(b.withClient(ctx), code, oauth2.VerifierOption(verifier))
}

func (b *base) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := b.config.Client(b.withClient(ctx), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userInfoURL, nil)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, fmt.Errorf("%s userinfo: %w", b.name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("%s userinfo: status=%d body=%s", b.name, resp.StatusCode, body))
	}

	info, err := b.decode(resp.Body)
	if err != nil {
		return nil, err
	}
	info.Provider = b.name
	return info, nil
}

func (b *base) withClient(ctx context.Context) context.Context {
	if b.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return ctx
}

func decodeJSON(body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.Join(ErrDecodeFailed, err)
	}
	return nil
}

// Registry looks providers up by name.
type Registry map[string]Provider

// Register adds p under its name.
func (r Registry) Register(p Provider) {
	r[p.Name()] = p
}

// Get returns the provider called name.
func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}
