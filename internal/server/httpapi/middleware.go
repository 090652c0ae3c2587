package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// TokenResolver maps a bearer token to a user id.
type TokenResolver interface {
	ResolveToken(token string) (string, error)
}

// bearerToken extracts the token from an Authorization header, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// requireBearer authenticates the request via the token resolver and
// stores the user id on the context. 401 on missing or invalid tokens.
func (s *Server) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.resolver.ResolveToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(withUserID(r.Context(), userID)))
	}
}

// requireServiceKey guards admin-only operations: the bearer must equal
// the configured service key.
func (s *Server) requireServiceKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if s.cfg.AuthServiceKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthServiceKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid service key")
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) getStatus() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.getStatus(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors handles the CORS_ORIGIN allowlist including preflight. The
// storage gateway echoes exact headers so signed requests survive the
// browser.
func (s *Server) cors(next http.Handler) http.Handler {
	origins := map[string]bool{}
	wildcard := s.cfg.CORSOrigin == "*"
	if !wildcard {
		for _, o := range strings.Split(s.cfg.CORSOrigin, ",") {
			origins[strings.TrimSpace(o)] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
			// non-browser client
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
			reqHeaders := r.Header.Get("Access-Control-Request-Headers")
			if reqHeaders == "" {
				reqHeaders = "Authorization, Content-Type"
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
