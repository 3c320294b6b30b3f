package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPResolver(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.0.2.10", " "})
	require.NoError(t, err)

	tests := []struct {
		name      string
		peer      string
		forwarded []string
		realIP    string
		want      string
	}{
		{"untrusted peer ignores headers", "198.51.100.9:4000", []string{"203.0.113.7"}, "203.0.113.8", "198.51.100.9"},
		{"trusted peer uses forwarded hop", "10.1.2.3:4000", []string{"203.0.113.7"}, "", "203.0.113.7"},
		{"skips trusted hops from the right", "10.1.2.3:4000", []string{"198.51.100.1, 203.0.113.7, 10.9.9.9"}, "", "203.0.113.7"},
		{"spoofed leftmost hop is ignored", "192.0.2.10:80", []string{"1.2.3.4, 203.0.113.7"}, "", "203.0.113.7"},
		{"all hops trusted", "10.1.2.3:4000", []string{"10.4.4.4, 10.5.5.5"}, "", "10.4.4.4"},
		{"repeated headers", "10.1.2.3:4000", []string{"198.51.100.1", "203.0.113.7"}, "", "203.0.113.7"},
		{"real ip fallback", "10.1.2.3:4000", nil, "203.0.113.8", "203.0.113.8"},
		{"trusted peer without headers", "10.1.2.3:4000", nil, "", "10.1.2.3"},
		{"peer without port", "198.51.100.9", nil, "", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			for _, v := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, resolver.ClientIP(req))
		})
	}
}

func TestClientIPResolver_NoProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	var nilResolver *ClientIPResolver
	assert.Equal(t, "198.51.100.9", nilResolver.ClientIP(req))

	empty, err := NewClientIPResolver(nil)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", empty.ClientIP(req))
	assert.False(t, empty.Trusted("198.51.100.9"))
}

func TestNewClientIPResolver_Invalid(t *testing.T) {
	for _, proxy := range []string{"not-an-ip", "10.0.0.0/33", "10.0.0"} {
		_, err := NewClientIPResolver([]string{proxy})
		assert.Error(t, err, proxy)
	}

	r, err := NewClientIPResolver([]string{"::ffff:10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, r.Trusted("10.0.0.1"))
	assert.False(t, r.Trusted("garbage"))
}
