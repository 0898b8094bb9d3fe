package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/soyeahso/wayfarer/internal/config"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeNone     = "none"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth is the gateway's effective auth configuration.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth picks the auth mode. With no explicit mode, a configured
// password selects password auth and anything else selects token auth.
// Environment overrides are already applied by the config loader.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Mode == "" {
		if auth.Password != "" {
			auth.Mode = AuthModePassword
		} else {
			auth.Mode = AuthModeToken
		}
	}
	return auth
}

// Authorize checks client credentials against the server's.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if server.Mode == AuthModeNone {
		return AuthResult{OK: true, Method: AuthModeNone}
	}
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	switch server.Mode {
	case AuthModeToken:
		if server.Token == "" {
			return AuthResult{Reason: "server token not configured"}
		}
		if client.Token == "" {
			return AuthResult{Reason: "token required"}
		}
		if !safeEqual(client.Token, server.Token) {
			return AuthResult{Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModeToken}

	case AuthModePassword:
		if server.Password == "" {
			return AuthResult{Reason: "server password not configured"}
		}
		if client.Password == "" {
			return AuthResult{Reason: "password required"}
		}
		if !safeEqual(client.Password, server.Password) {
			return AuthResult{Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModePassword}

	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}
}

// AuthorizeHTTP checks a bearer credential on a plain HTTP request. The
// bearer value is compared against the token or the password, depending on
// the mode.
func AuthorizeHTTP(server ResolvedAuth, r *http.Request) AuthResult {
	var creds *ConnectAuth
	if h := r.Header.Get("Authorization"); h != "" {
		bearer, ok := strings.CutPrefix(h, "Bearer ")
		if ok {
			creds = &ConnectAuth{Token: bearer, Password: bearer}
		}
	}
	return Authorize(server, creds)
}

// safeEqual compares in constant time without leaking the secret length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
