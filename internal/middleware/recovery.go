package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"dealerhub-api/pkg/apierror"
	"dealerhub-api/pkg/response"
)

// Recovery turns a panicking handler into a 500 response and logs the stack
// together with the request id.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[Recovery] %s %s rid=%s panic: %v\n%s",
				r.Method, r.URL.Path, GetRequestID(r.Context()), rec, debug.Stack())
			response.Error(w, apierror.InternalError("internal server error"))
		}()

		next.ServeHTTP(w, r)
	})
}
