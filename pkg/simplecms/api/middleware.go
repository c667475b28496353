package api

import (
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// CallerMiddleware attaches a simplecms.Caller to the request context. The
// user id is the "sub" claim of a token verified earlier in the chain; the
// request headers are passed through for hooks.
func CallerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := simplecms.Caller{Headers: r.Header.Clone()}
		if token, claims, err := jwtauth.FromContext(r.Context()); err == nil && token != nil {
			if sub, ok := claims["sub"].(string); ok {
				caller.UserID = sub
			}
		}
		next.ServeHTTP(w, r.WithContext(simplecms.WithCaller(r.Context(), caller)))
	})
}

// RequireJWT rejects requests without a valid bearer token signed for ja.
func RequireJWT(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verify := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verify(jwtauth.Authenticator(next))
	}
}
