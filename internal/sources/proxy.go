package sources

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// NewProxyFunc returns the transport proxy selector. Without explicit proxies
// the environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) is used.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	bypass := parseNoProxy(noProxy)

	return func(req *http.Request) (*url.URL, error) {
		if bypass(req.URL.Hostname()) {
			return nil, nil
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

// parseNoProxy understands "*", exact hosts, ".suffix" / "suffix" domains and CIDRs
func parseNoProxy(list string) func(host string) bool {
	var (
		all      bool
		domains  []string
		networks []*net.IPNet
	)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case entry == "*":
			all = true
		case strings.Contains(entry, "/"):
			if _, n, err := net.ParseCIDR(entry); err == nil {
				networks = append(networks, n)
			}
		default:
			domains = append(domains, strings.TrimPrefix(entry, "."))
		}
	}

	return func(host string) bool {
		if all {
			return true
		}
		host = strings.ToLower(host)
		if ip := net.ParseIP(host); ip != nil {
			for _, n := range networks {
				if n.Contains(ip) {
					return true
				}
			}
		}
		for _, d := range domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	}
}
