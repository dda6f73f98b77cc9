package realtime

import (
	"net/url"
	"strings"

	"github.com/saleemdev/careverse-hq-sub001/config"
)

// DefaultSiteName is used when no site identifier can be resolved from
// configuration or the upstream URL.
const DefaultSiteName = "careverse.local"

// ResolveSiteName returns the deployment site identifier used to derive the
// realtime namespace. Resolution order: the boot-injected site name, the
// configured fallback host, the second path segment of the upstream URL,
// then DefaultSiteName.
func ResolveSiteName(cfg config.SiteConfig, upstreamURL string) string {
	if cfg.BootSiteName != "" {
		return cfg.BootSiteName
	}
	if cfg.FallbackHost != "" {
		return cfg.FallbackHost
	}
	if seg := secondPathSegment(upstreamURL); seg != "" {
		return seg
	}
	return DefaultSiteName
}

// Namespace derives the per-deployment namespace path for a site.
func Namespace(site string) string {
	return "/" + site
}

func secondPathSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
