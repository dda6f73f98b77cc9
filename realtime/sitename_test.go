package realtime

import (
	"testing"

	"github.com/saleemdev/careverse-hq-sub001/config"
	"github.com/stretchr/testify/assert"
)

func TestResolveSiteName(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.SiteConfig
		upstreamURL string
		want        string
	}{
		{
			name:        "boot site name wins",
			cfg:         config.SiteConfig{BootSiteName: "nairobi.careverse.co.ke", FallbackHost: "fallback.local"},
			upstreamURL: "wss://erp.example.com/hq/mombasa",
			want:        "nairobi.careverse.co.ke",
		},
		{
			name:        "fallback host when boot name absent",
			cfg:         config.SiteConfig{FallbackHost: "fallback.local"},
			upstreamURL: "wss://erp.example.com/hq/mombasa",
			want:        "fallback.local",
		},
		{
			name:        "second path segment of upstream URL",
			upstreamURL: "wss://erp.example.com/hq/mombasa",
			want:        "mombasa",
		},
		{
			name:        "single path segment falls through to default",
			upstreamURL: "wss://erp.example.com/socket.io",
			want:        DefaultSiteName,
		},
		{
			name:        "bare host falls through to default",
			upstreamURL: "wss://erp.example.com",
			want:        DefaultSiteName,
		},
		{
			name: "everything empty",
			want: DefaultSiteName,
		},
		{
			name:        "unparseable URL falls through to default",
			upstreamURL: "://not-a-url",
			want:        DefaultSiteName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSiteName(tt.cfg, tt.upstreamURL))
		})
	}
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "/nairobi.careverse.co.ke", Namespace("nairobi.careverse.co.ke"))
}
