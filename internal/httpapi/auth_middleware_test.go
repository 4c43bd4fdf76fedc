package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}

	tests := []struct {
		name    string
		proxies []netip.Prefix
		remote  string
		xff     []string
		want    string
	}{
		{"no proxies ignores header", nil, "203.0.113.7:4000", []string{"198.51.100.1"}, "203.0.113.7"},
		{"untrusted peer ignores header", trusted, "203.0.113.7:4000", []string{"198.51.100.1"}, "203.0.113.7"},
		{"trusted peer uses header", trusted, "10.0.0.2:4000", []string{"198.51.100.1"}, "198.51.100.1"},
		{"skips trusted hops", trusted, "10.0.0.2:4000", []string{"198.51.100.1, 10.1.2.3"}, "198.51.100.1"},
		{"rightmost untrusted wins", trusted, "10.0.0.2:4000", []string{"1.1.1.1, 198.51.100.1"}, "198.51.100.1"},
		{"multiple header lines", trusted, "10.0.0.2:4000", []string{"1.1.1.1", "198.51.100.1"}, "198.51.100.1"},
		{"garbage hop falls back to peer", trusted, "10.0.0.2:4000", []string{"198.51.100.1, nonsense"}, "10.0.0.2"},
		{"trusted peer without header", trusted, "10.0.0.2:4000", nil, "10.0.0.2"},
		{"ipv6 peer", trusted, "[::1]:4000", []string{"2001:db8::5"}, "2001:db8::5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &api{trustedProxies: tc.proxies}
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, a.clientIP(req))
		})
	}
}

func TestLoginLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t)

	login := func(i int) int {
		body := fmt.Sprintf(`{"email":"user%d@x.com","password":"nope"}`, i)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		return serve(env.handler, req).Code
	}

	for i := 0; i < maxAttempts; i++ {
		require.Equal(t, http.StatusBadRequest, login(i), "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, login(maxAttempts))
}
