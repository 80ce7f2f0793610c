package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/report"
	"github.com/spigell/resume-agent/internal/store"
)

const errBadCredentials = "incorrect email or password"

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) requireStore() (*store.Store, error) {
	if s.deps.Store == nil {
		return nil, apperr.NotConfigured("user database")
	}
	return s.deps.Store, nil
}

func (s *Server) requireIssuer() (*auth.Issuer, error) {
	if s.deps.Issuer == nil {
		return nil, apperr.NotConfigured("authentication")
	}
	return s.deps.Issuer, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	db, err := s.requireStore()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issuer, err := s.requireIssuer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !strings.Contains(req.Email, "@") {
		s.writeError(w, r, apperr.Validation("a valid email is required"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user := &store.User{
		Email:          req.Email,
		HashedPassword: hash,
		FullName:       strings.TrimSpace(req.FullName),
		IsActive:       true,
	}
	if err := db.CreateUser(r.Context(), user); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Recorder.Inc(report.CounterUsersRegistered)
	s.log(r).Info("user registered", zap.String("user_id", user.ID))

	pair, err := issuer.IssuePair(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	db, err := s.requireStore()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issuer, err := s.requireIssuer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if apperr.Code(err) == apperr.CodeNotFound {
			err = apperr.Unauthorized(errBadCredentials)
		}
		s.writeError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.HashedPassword, req.Password) {
		s.writeError(w, r, apperr.Unauthorized(errBadCredentials))
		return
	}
	if !user.IsActive {
		s.writeError(w, r, apperr.Forbidden("account is disabled"))
		return
	}

	pair, err := issuer.IssuePair(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	db, err := s.requireStore()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issuer, err := s.requireIssuer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	claims, err := issuer.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := db.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		if apperr.Code(err) == apperr.CodeNotFound {
			err = apperr.Unauthorized("account no longer exists")
		}
		s.writeError(w, r, err)
		return
	}
	if !user.IsActive {
		s.writeError(w, r, apperr.Forbidden("account is disabled"))
		return
	}

	pair, err := issuer.IssuePair(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleOAuthStart redirects to the provider with a signed state token bound
// to the provider name.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	issuer, err := s.requireIssuer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "provider")
	provider, err := s.deps.OAuth.Get(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	state, err := issuer.Issue(name, auth.KindState)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// handleOAuthCallback finishes the code flow, signs the user in (creating the
// account on first login) and hands the tokens to the frontend in the URL fragment.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	db, err := s.requireStore()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issuer, err := s.requireIssuer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "provider")
	provider, err := s.deps.OAuth.Get(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	if msg := query.Get("error"); msg != "" {
		s.writeError(w, r, apperr.Unauthorized("authorization denied: "+msg))
		return
	}
	claims, err := issuer.Parse(query.Get("state"), auth.KindState)
	if err != nil || claims.Subject != name {
		s.writeError(w, r, apperr.Unauthorized("invalid oauth state"))
		return
	}
	code := query.Get("code")
	if code == "" {
		s.writeError(w, r, apperr.Validation("code is required"))
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.findOrCreateOAuthUser(r, db, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !user.IsActive {
		s.writeError(w, r, apperr.Forbidden("account is disabled"))
		return
	}

	pair, err := issuer.IssuePair(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", pair.AccessToken)
	fragment.Set("refresh_token", pair.RefreshToken)
	fragment.Set("token_type", pair.TokenType)
	target := strings.TrimRight(s.cfg.FrontendURL, "/") + "/auth/callback#" + fragment.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) findOrCreateOAuthUser(r *http.Request, db *store.Store, profile *auth.Profile) (*store.User, error) {
	user, err := db.GetUserByEmail(r.Context(), profile.Email)
	if err == nil {
		return user, nil
	}
	if apperr.Code(err) != apperr.CodeNotFound {
		return nil, err
	}

	user = &store.User{Email: profile.Email, FullName: profile.Name, IsActive: true}
	if err := db.CreateUser(r.Context(), user); err != nil {
		if apperr.Code(err) == apperr.CodeConflict {
			return db.GetUserByEmail(r.Context(), profile.Email)
		}
		return nil, err
	}
	s.deps.Recorder.Inc(report.CounterUsersRegistered)
	s.log(r).Info("user registered through oauth", zap.String("user_id", user.ID))
	return user, nil
}

// currentUser loads the account behind the request's access token.
func (s *Server) currentUser(r *http.Request) (*store.User, error) {
	subject, ok := auth.Subject(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("not authenticated")
	}
	db, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	user, err := db.GetUserByID(r.Context(), subject)
	if err != nil {
		if apperr.Code(err) == apperr.CodeNotFound {
			return nil, apperr.Unauthorized("account no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("account is disabled")
	}
	return user, nil
}
