package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/document"
	"github.com/spigell/resume-agent/internal/evaluation"
)

type atsScoreRequest struct {
	Resume string `json:"resume"`
	Job    string `json:"job"`
}

type jobParseRequest struct {
	Text string `json:"text"`
}

type generateRequest struct {
	TemplateType      string `json:"template_type"`
	ResumeContent     string `json:"resume_content"`
	JobDescription    string `json:"job_description"`
	AdditionalContext string `json:"additional_context"`
}

type generateResponse struct {
	GeneratedContent string `json:"generated_content"`
	HTML             string `json:"html"`
	TemplateType     string `json:"template_type"`
}

func (s *Server) handleATSScore(w http.ResponseWriter, r *http.Request) {
	var req atsScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Pipeline.ScoreResume(r.Context(), req.Resume, req.Job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleJobParse(w http.ResponseWriter, r *http.Request) {
	var req jobParseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keywords": document.Keywords(req.Text)})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, evaluation.Templates())
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := evaluation.LookupTemplate(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, apperr.NotFound("template"))
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleGenerateTemplate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.deps.Pipeline.GenerateFromTemplate(r.Context(),
		req.TemplateType, req.ResumeContent, req.JobDescription, req.AdditionalContext)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		GeneratedContent: out.Content,
		HTML:             out.HTML,
		TemplateType:     out.Template,
	})
}
