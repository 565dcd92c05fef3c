package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:4000", want: "203.0.113.7"},
		{name: "untrusted peer ignores forwarded", remoteAddr: "203.0.113.7:4000", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted proxy forwards", remoteAddr: "10.0.0.2:4000", xff: "198.51.100.1, 10.0.0.3", want: "198.51.100.1"},
		{name: "trusted proxy real ip", remoteAddr: "127.0.0.1:4000", xri: "198.51.100.9", want: "198.51.100.9"},
		{name: "garbage forwarded", remoteAddr: "10.0.0.2:4000", xff: "nope", want: "10.0.0.2"},
		{name: "no port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_Middleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/bills/pending?year=2024&month=3", http.StatusOK},
		{http.MethodGet, "/bills/../../etc/passwd", http.StatusBadRequest},
		{"TRACE", "/bills", http.StatusBadRequest},
		{http.MethodGet, "/bills?q=" + strings.Repeat("a", maxURLLength), http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(tt.method, "/", nil)
		req.URL.Path, req.URL.RawQuery, _ = strings.Cut(tt.target, "?")
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.target, rr.Code, tt.want)
		}
	}
	if d.Rejected() != 3 {
		t.Fatalf("rejected = %d, want 3", d.Rejected())
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("headers = %v", rr.Header())
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS set on plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
}
