package api

import (
	"net/http"
	"time"

	"github.com/ainotebook/notebase/log"
)

// statusWriter records the status code written to the response.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// RequestLogger is a logging middleware.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		if sw.status >= http.StatusInternalServerError {
			log.Warningf("api request: %s %s %s %d %s", r.RemoteAddr, r.Method, r.RequestURI, sw.status, time.Since(start))
			return
		}
		log.Infof("api request: %s %s %s %d %s", r.RemoteAddr, r.Method, r.RequestURI, sw.status, time.Since(start))
	})
}
