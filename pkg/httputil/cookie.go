package httputil

import (
	"errors"
	"net/http"
	"strings"
)

const AuthCookieName = "auth_token"

var ErrNoToken = errors.New("no auth token found in cookie, header or query")

// GetTokenFromCookie extracts the JWT token from the auth cookie
func GetTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil {
		return "", errors.New("auth cookie not found")
	}
	if cookie.Value == "" {
		return "", errors.New("auth cookie is empty")
	}
	return cookie.Value, nil
}

// GetTokenFromRequest looks at the auth cookie, then the Authorization
// header, then the token query parameter.
func GetTokenFromRequest(r *http.Request) (string, error) {
	if token, err := GetTokenFromCookie(r); err == nil {
		return token, nil
	}

	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(token), nil
		}
		return authHeader, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrNoToken
}
