package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"golang.org/x/time/rate"
)

func newLimiter(t *testing.T, capacity int, trusted ...string) *IPRateLimiter {
	t.Helper()
	var prefixes []netip.Prefix
	for _, p := range trusted {
		prefixes = append(prefixes, netip.MustParsePrefix(p))
	}
	rl, err := NewIPRateLimiter(rate.Limit(0.001), 1, capacity, prefixes)
	if err != nil {
		t.Fatal(err)
	}
	return rl
}

func TestClientIPIgnoresUntrustedForwardedFor(t *testing.T) {
	rl := newLimiter(t, 10)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/voice/generate", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if i > 0 && w.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: rotating X-Forwarded-For bypassed the limit (status %d)", i, w.Code)
		}
	}
	if n := rl.Clients(); n != 1 {
		t.Errorf("expected one tracked client, got %d", n)
	}
}

func TestClientIPTrustedProxy(t *testing.T) {
	rl := newLimiter(t, 10, "10.0.0.0/8")

	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"10.1.2.3:80", "198.51.100.4", "198.51.100.4"},
		{"10.1.2.3:80", "1.1.1.1, 198.51.100.4, 10.9.9.9", "198.51.100.4"},
		{"10.1.2.3:80", "", "10.1.2.3"},
		{"10.1.2.3:80", "garbage", "10.1.2.3"},
		{"192.0.2.1:80", "198.51.100.4", "192.0.2.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := rl.clientIP(req); got != tt.want {
			t.Errorf("clientIP(%s, %q) = %s, want %s", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	rl := newLimiter(t, 2)
	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.2")
	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.3")

	if n := rl.Clients(); n != 2 {
		t.Fatalf("expected capacity to bound clients, got %d", n)
	}
	if rl.limiters.Contains("192.0.2.2") {
		t.Error("expected the idle client to be evicted")
	}
	if !rl.limiters.Contains("192.0.2.1") {
		t.Error("expected the active client to be kept")
	}
}
