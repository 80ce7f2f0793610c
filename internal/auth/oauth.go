package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/spigell/resume-agent/internal/apperr"
)

const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"

	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
	googleUserURL   = "https://openidconnect.googleapis.com/v1/userinfo"

	maxProfileBytes = 1 << 20
)

// OAuthClient holds one provider's credentials.
type OAuthClient struct {
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
}

// OAuthConfig lists the configured providers.
type OAuthConfig struct {
	// RedirectBase is the public URL of this API; callbacks are served
	// under /auth/oauth/{provider}/callback.
	RedirectBase string      `mapstructure:"redirect-base"`
	GitHub       OAuthClient `mapstructure:"github"`
	Google       OAuthClient `mapstructure:"google"`
}

// Profile is the identity returned by a provider.
type Profile struct {
	Email string
	Name  string
}

// Provider runs the authorization code flow for one identity provider.
type Provider struct {
	name       string
	config     *oauth2.Config
	profileURL string
	emailsURL  string
}

// Providers is the set of configured providers by name.
type Providers map[string]*Provider

// NewProviders builds providers for every entry with a client id.
func NewProviders(cfg OAuthConfig) Providers {
	base := strings.TrimRight(cfg.RedirectBase, "/")
	out := Providers{}

	if cfg.GitHub.ClientID != "" {
		out[ProviderGitHub] = &Provider{
			name: ProviderGitHub,
			config: &oauth2.Config{
				ClientID:     cfg.GitHub.ClientID,
				ClientSecret: cfg.GitHub.ClientSecret,
				Endpoint:     github.Endpoint,
				RedirectURL:  base + "/auth/oauth/github/callback",
				Scopes:       []string{"read:user", "user:email"},
			},
			profileURL: githubUserURL,
			emailsURL:  githubEmailsURL,
		}
	}
	if cfg.Google.ClientID != "" {
		out[ProviderGoogle] = &Provider{
			name: ProviderGoogle,
			config: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  base + "/auth/oauth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
			},
			profileURL: googleUserURL,
		}
	}
	return out
}

// Get returns the named provider or a not-configured error.
func (p Providers) Get(name string) (*Provider, error) {
	provider, ok := p[strings.ToLower(name)]
	if !ok {
		return nil, apperr.NotConfigured(name + " oauth")
	}
	return provider, nil
}

// Names lists configured providers.
func (p Providers) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and fetches the user's profile.
func (p *Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.Validation("authorization code is required")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(p.name+" oauth", err)
	}
	client := p.config.Client(ctx, token)

	var raw struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	if err := getJSON(ctx, client, p.profileURL, &raw); err != nil {
		return nil, apperr.UpstreamUnavailable(p.name+" profile", err)
	}

	profile := &Profile{Email: strings.TrimSpace(raw.Email), Name: strings.TrimSpace(raw.Name)}
	if profile.Name == "" {
		profile.Name = raw.Login
	}

	// GitHub hides private addresses from the profile.
	if profile.Email == "" && p.emailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, p.emailsURL, &emails); err != nil {
			return nil, apperr.UpstreamUnavailable(p.name+" profile", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				break
			}
		}
	}

	if profile.Email == "" {
		return nil, apperr.Forbidden(p.name + " account has no verified email")
	}
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
