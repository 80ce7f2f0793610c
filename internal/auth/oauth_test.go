package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/spigell/resume-agent/internal/apperr"
)

func newFakeProviderServer(t *testing.T, profile map[string]any, emails []map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(emails)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *Provider {
	return &Provider{
		name: "fake",
		config: &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
			RedirectURL:  "http://localhost/auth/oauth/fake/callback",
		},
		profileURL: srv.URL + "/user",
		emailsURL:  srv.URL + "/emails",
	}
}

func TestExchangeUsesProfileEmail(t *testing.T) {
	srv := newFakeProviderServer(t, map[string]any{"email": "ann@example.com", "name": "Ann"}, nil)

	profile, err := testProvider(srv).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Email != "ann@example.com" || profile.Name != "Ann" {
		t.Fatalf("unexpected profile %#v", profile)
	}
}

func TestExchangeFallsBackToPrimaryEmail(t *testing.T) {
	srv := newFakeProviderServer(t,
		map[string]any{"login": "octocat"},
		[]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	)

	profile, err := testProvider(srv).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.Email != "octo@example.com" || profile.Name != "octocat" {
		t.Fatalf("unexpected profile %#v", profile)
	}
}

func TestExchangeFailures(t *testing.T) {
	srv := newFakeProviderServer(t, map[string]any{"login": "ghost"}, []map[string]any{})
	p := testProvider(srv)

	if _, err := p.Exchange(context.Background(), "bad-code"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("bad code error = %v", err)
	}
	if _, err := p.Exchange(context.Background(), "good-code"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("missing email error = %v", err)
	}
	if _, err := p.Exchange(context.Background(), " "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank code error = %v", err)
	}
}

func TestProviders(t *testing.T) {
	providers := NewProviders(OAuthConfig{
		RedirectBase: "https://api.example.com/",
		GitHub:       OAuthClient{ClientID: "gh", ClientSecret: "s"},
	})

	if got := providers.Names(); len(got) != 1 || got[0] != ProviderGitHub {
		t.Fatalf("Names = %v", got)
	}
	if _, err := providers.Get(ProviderGoogle); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}

	gh, err := providers.Get("GitHub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	u, err := url.Parse(gh.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("client_id") != "gh" {
		t.Fatalf("unexpected auth url %s", u)
	}
	if q.Get("redirect_uri") != "https://api.example.com/auth/oauth/github/callback" {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
}
