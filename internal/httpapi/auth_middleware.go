package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"thumbforge/internal/auth"
)

type authCtxKey int

const authUserIDKey authCtxKey = iota

// requireAuth verifies the bearer token and stores the user id it names in the
// request context. The user record is not loaded.
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Authorization token required")
			return
		}

		userID, err := a.tokens.Verify(raw)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token expired"
			}
			WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		ctx := context.WithValue(r.Context(), authUserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func CurrentUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(authUserIDKey).(string)
	return id, ok && id != ""
}

// clientIP is the peer address. When the peer is a trusted proxy it is the
// rightmost X-Forwarded-For entry that is not itself a trusted proxy.
func (a *api) clientIP(r *http.Request) string {
	host := peerHost(r)
	if !a.fromTrustedProxy(r) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return host
		}
		if !a.isTrustedProxy(addr) {
			return addr.Unmap().String()
		}
	}
	return host
}

func (a *api) fromTrustedProxy(r *http.Request) bool {
	peer, err := netip.ParseAddr(peerHost(r))
	return err == nil && a.isTrustedProxy(peer)
}

func peerHost(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && h != "" {
		return h
	}
	return r.RemoteAddr
}

func (a *api) isTrustedProxy(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range a.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
