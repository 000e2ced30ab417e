package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument logs and records every routed request by its path template, so
// quiz ids never become label values.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)

		if s.deps.Recorder != nil {
			s.deps.Recorder.ObserveRequest(route, r.Method, sw.status, elapsed)
		}
		logger.WithFields(s.logger, logger.StringFields(
			logger.StringField{Key: logger.FieldRoute, Value: route},
			logger.StringField{Key: logger.FieldQuizID, Value: mux.Vars(r)["id"]},
		)...).Debug("request served",
			zap.String("method", r.Method),
			zap.Int("status", sw.status),
			zap.Duration("duration", elapsed),
		)
	})
}

// requireAdmin checks the bearer password. An unset password disables the
// admin routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		want := s.deps.AdminPassword
		if !ok || want == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			s.writeError(w, r, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
