package server

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/billing"
	"github.com/spigell/resume-agent/internal/document"
	"github.com/spigell/resume-agent/internal/store"
)

type subscriptionResponse struct {
	Plan     string   `json:"plan"`
	Status   string   `json:"status"`
	Features []string `json:"features"`
}

type uploadResponse struct {
	ID               string   `json:"id"`
	Filename         string   `json:"filename"`
	ContentType      string   `json:"content_type"`
	ExtractedPreview string   `json:"extracted_preview"`
	Keywords         []string `json:"keywords"`
}

type rewriteRequest struct {
	ResumeID string `json:"resume_id"`
	Resume   string `json:"resume"`
	Role     string `json:"role"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := subscriptionResponse{Plan: user.Plan, Status: "free", Features: []string{}}
	if plan, ok := billing.LookupPlan(user.Plan); ok {
		resp.Status = "active"
		resp.Features = plan.Features
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResumeUpload(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Objects == nil {
		s.writeError(w, r, apperr.NotConfigured("object storage"))
		return
	}

	data, contentType, filename, err := s.readUpload(w, r, "file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, apperr.Validation("uploaded file is empty"))
		return
	}

	text, err := document.Extract(filename, contentType, data)
	if err != nil {
		s.writeError(w, r, apperr.Validation("cannot read %s: %v", filename, err))
		return
	}

	id := uuid.NewString()
	key := fmt.Sprintf("resumes/%s/%s%s", user.ID, id, strings.ToLower(path.Ext(filename)))
	if err := s.deps.Objects.Upload(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := &store.Resume{
		ID:            id,
		UserID:        user.ID,
		ObjectKey:     key,
		Filename:      path.Base(filename),
		ContentType:   contentType,
		ExtractedText: text,
	}
	if err := s.deps.Store.CreateResume(r.Context(), rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log(r).Info("resume uploaded",
		zap.String("resume_id", rec.ID),
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType),
	)

	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:               rec.ID,
		Filename:         rec.Filename,
		ContentType:      contentType,
		ExtractedPreview: document.Preview(text, document.PreviewRunes),
		Keywords:         document.Keywords(text),
	})
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resumes, err := s.deps.Store.ListResumes(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resumes)
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.deps.Store.GetResume(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownloadResume(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Objects == nil {
		s.writeError(w, r, apperr.NotConfigured("object storage"))
		return
	}
	rec, err := s.deps.Store.GetResume(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	link, err := s.deps.Objects.PresignedURL(r.Context(), rec.ObjectKey, s.cfg.PresignTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, link, http.StatusTemporaryRedirect)
}

// handleRewrite rewrites either inline resume text or a stored resume.
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	text := req.Resume
	if req.ResumeID != "" {
		user, err := s.currentUser(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rec, err := s.deps.Store.GetResume(r.Context(), req.ResumeID, user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		text = rec.ExtractedText
	}

	out, err := s.deps.Pipeline.Rewrite(r.Context(), req.Role, text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rewritten": out})
}
