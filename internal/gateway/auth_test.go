package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/wayfarer/internal/config"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "secreT"))
	assert.False(t, safeEqual("short", "much-longer"))
	assert.False(t, safeEqual("", "secret"))
}

func TestResolveAuth(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayAuth
		want ResolvedAuth
	}{
		{"explicit token", config.GatewayAuth{Mode: "token", Token: "t"}, ResolvedAuth{Mode: AuthModeToken, Token: "t"}},
		{"explicit password", config.GatewayAuth{Mode: "password", Password: "p"}, ResolvedAuth{Mode: AuthModePassword, Password: "p"}},
		{"explicit none", config.GatewayAuth{Mode: "none"}, ResolvedAuth{Mode: AuthModeNone}},
		{"default token", config.GatewayAuth{Token: "t"}, ResolvedAuth{Mode: AuthModeToken, Token: "t"}},
		{"password implies mode", config.GatewayAuth{Password: "p"}, ResolvedAuth{Mode: AuthModePassword, Password: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAuth(tt.cfg))
		})
	}
}

func TestAuthorize(t *testing.T) {
	token := ResolvedAuth{Mode: AuthModeToken, Token: "secret"}
	password := ResolvedAuth{Mode: AuthModePassword, Password: "pass123"}

	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"token ok", token, &ConnectAuth{Token: "secret"}, true, ""},
		{"token mismatch", token, &ConnectAuth{Token: "wrong"}, false, "token_mismatch"},
		{"token missing", token, &ConnectAuth{}, false, "token required"},
		{"server token unset", ResolvedAuth{Mode: AuthModeToken}, &ConnectAuth{Token: "x"}, false, "server token not configured"},
		{"password ok", password, &ConnectAuth{Password: "pass123"}, true, ""},
		{"password mismatch", password, &ConnectAuth{Password: "nope"}, false, "password_mismatch"},
		{"password missing", password, &ConnectAuth{}, false, "password required"},
		{"nil credentials", token, nil, false, "no credentials provided"},
		{"none mode", ResolvedAuth{Mode: AuthModeNone}, nil, true, ""},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, false, "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestAuthorizeHTTP(t *testing.T) {
	server := ResolvedAuth{Mode: AuthModeToken, Token: "secret"}

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil)
	assert.False(t, AuthorizeHTTP(server, req).OK)

	req.Header.Set("Authorization", "Basic secret")
	assert.False(t, AuthorizeHTTP(server, req).OK)

	req.Header.Set("Authorization", "Bearer secret")
	assert.True(t, AuthorizeHTTP(server, req).OK)

	pw := ResolvedAuth{Mode: AuthModePassword, Password: "pw"}
	req.Header.Set("Authorization", "Bearer pw")
	assert.True(t, AuthorizeHTTP(pw, req).OK)
}

func TestAuthRateLimiter(t *testing.T) {
	limiter := newAuthRateLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	for i := 0; i < authRateMaxFails-1; i++ {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:5555"), "below the limit")

	limiter.recordFailure("192.168.1.1:12345")
	assert.False(t, limiter.allow("192.168.1.1:5555"), "port is ignored")
	assert.True(t, limiter.allow("192.168.1.2:12345"), "other hosts unaffected")
}

func TestAuthRateLimiter_Window(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := newAuthRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < authRateMaxFails; i++ {
		limiter.recordFailure("10.0.0.1")
	}
	assert.False(t, limiter.allow("10.0.0.1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, limiter.allow("10.0.0.1"))
}

func TestAuthRateLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := newAuthRateLimiter()
	limiter.now = func() time.Time { return now }

	limiter.recordFailure("10.0.0.1")
	now = now.Add(authRateWindow / 2)
	limiter.recordFailure("10.0.0.2")
	now = now.Add(authRateWindow/2 + time.Second)

	limiter.prune()
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.failures, "10.0.0.1")
	assert.Contains(t, limiter.failures, "10.0.0.2")
}

func TestCheckWebSocketOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	assert.True(t, checkWebSocketOrigin(nil)(request("")))
	assert.False(t, checkWebSocketOrigin(nil)(request("http://evil.com")))
	assert.True(t, checkWebSocketOrigin([]string{"*"})(request("http://anything.com")))

	check := checkWebSocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, check(request("http://one.com")))
	assert.True(t, check(request("http://two.com")))
	assert.False(t, check(request("http://three.com")))
}

func TestResolveBindAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18789", resolveBindAddr(config.GatewayConfig{Bind: "loopback", Port: 18789}))
	assert.Equal(t, "0.0.0.0:80", resolveBindAddr(config.GatewayConfig{Bind: "lan", Port: 80}))
	assert.Equal(t, "10.1.2.3:9000", resolveBindAddr(config.GatewayConfig{Bind: "custom", CustomBindHost: "10.1.2.3", Port: 9000}))
}
