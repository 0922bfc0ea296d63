package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/klauspost/compress/gzhttp"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// RequestSizeLimit limits the size of request bodies
func RequestSizeLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Compress gzips responses for clients that accept it
func Compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// NewTokenAuth creates the HS256 verifier for admin tokens issued by the
// auth provider.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// AdminAuth returns middleware that admits only requests with a valid token
func AdminAuth(tokenAuth *jwtauth.JWTAuth) Middleware {
	verify := jwtauth.Verifier(tokenAuth)
	return func(next http.Handler) http.Handler {
		return verify(jwtauth.Authenticator(next))
	}
}

var errAuthNotConfigured = errors.New("authentication not configured")

// DenyAll rejects every request. It guards protected routes when no
// authentication has been configured.
func DenyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: errAuthNotConfigured.Error()})
	})
}
