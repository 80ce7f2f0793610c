package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/evaluation"
)

type createSessionRequest struct {
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
}

type submitAnswerRequest struct {
	Answer string `json:"answer"`
}

type evaluateRequest struct {
	Transcript string `json:"transcript"`
	Question   string `json:"question"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.deps.Interview.CreateSession(req.Role, req.Difficulty, req.Language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Interview.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Interview.NextQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Interview.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*evaluation.ScoreResult{"evaluation": result})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Pipeline.EvaluateAnswer(r.Context(), req.Question, req.Transcript)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*evaluation.ScoreResult{"result": result})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, contentType, _, err := s.readUpload(w, r, "file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.deps.Pipeline.Transcribe(r.Context(), data, contentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

// readUpload reads one multipart file field bounded by MaxUploadBytes.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, "", "", apperr.Validation("invalid multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", "", apperr.Validation("multipart field %q is required", field)
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		return nil, "", "", apperr.Validation("file exceeds %d bytes", s.cfg.MaxUploadBytes)
	}
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, "", "", apperr.Validation("read uploaded file: %v", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, "", "", apperr.Validation("file exceeds %d bytes", s.cfg.MaxUploadBytes)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, header.Filename, nil
}
