package util

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10", " "})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	cases := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted *TrustedProxies
		want    string
	}{
		{"untrusted peer ignores headers", "198.51.100.10:1234", "203.0.113.5", "203.0.113.6", trusted, "198.51.100.10"},
		{"nil allowlist ignores headers", "10.0.0.20:1234", "203.0.113.5", "", nil, "10.0.0.20"},
		{"trusted peer uses forwarded for", "10.0.0.20:1234", "203.0.113.5", "", trusted, "203.0.113.5"},
		{"rightmost untrusted hop wins", "10.0.0.20:1234", "198.51.100.1, 203.0.113.5, 10.0.0.10", "", trusted, "203.0.113.5"},
		{"real ip when forwarded for unusable", "192.168.1.10:80", "garbage", "203.0.113.7", trusted, "203.0.113.7"},
		{"fully trusted chain returns leftmost", "10.0.0.20:1234", "10.0.0.5, 10.0.0.10", "", trusted, "10.0.0.5"},
		{"ipv4 mapped peer", "[::ffff:10.0.0.20]:1234", "203.0.113.9", "", trusted, "203.0.113.9"},
		{"unparseable peer returned as is", "not-an-addr", "", "", trusted, "not-an-addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://gateway.test/api/session", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	tp, err := NewTrustedProxies([]string{"10.1.2.3/8", "2001:db8::1"})
	if err != nil {
		t.Fatalf("valid entries: %v", err)
	}
	if !tp.Contains(netip.MustParseAddr("10.200.0.1")) {
		t.Fatal("expected masked prefix to contain 10.200.0.1")
	}
	if !tp.Contains(netip.MustParseAddr("2001:db8::1")) || tp.Contains(netip.MustParseAddr("2001:db8::2")) {
		t.Fatal("single address entry should match exactly")
	}
	if _, err := NewTrustedProxies([]string{"bad-cidr"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error for invalid prefix length")
	}
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty list = %v, %v; want nil, nil", tp, err)
	}
}
