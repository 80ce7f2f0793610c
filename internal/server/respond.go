package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/logger"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(code string) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeResourceExhausted, apperr.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case apperr.CodeNotConfigured:
		return http.StatusNotImplemented
	case apperr.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case apperr.CodeUpstreamParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a client-safe body. A request the
// client already abandoned gets no body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		if r.Context().Err() != nil {
			s.log(r).Debug("request cancelled by client")
			return
		}
		// Cancelled from our side while the client still waits.
		err = apperr.Wrap(apperr.CodeUpstreamUnavailable, err, "request was cancelled by the server")
	}

	code := apperr.Code(err)
	status := statusFor(code)
	log := s.log(r).With(zap.String("code", code), zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}

	writeJSON(w, status, errorBody{Error: apperr.Message(err), Code: code})
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context(), s.logger)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large")
		}
		return apperr.Validation("invalid JSON body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
