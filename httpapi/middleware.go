package httpapi

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/pmc-io/pmc/pmcconfig"
)

// withAuth enforces the bearer-token gate described in §4.8: every route
// requires the exact header "authorization: token <token>" when
// secure.enabled is true. When it is false, the header is ignored
// entirely.
func withAuth(secure pmcconfig.SecureConfig, next http.Handler) http.Handler {
	if !secure.Enabled {
		return next
	}
	expected := "token " + secure.Token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCORS enables CORS for every origin, per §4.8 ("CORS is enabled for
// all origins").
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID tags each request with a correlation id, echoed back to the
// caller and logged, so concurrent control-API calls are traceable in
// daemon.log.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		log.Printf("httpapi: %s %s request=%s", r.Method, r.URL.Path, id)
		next.ServeHTTP(w, r)
	})
}
