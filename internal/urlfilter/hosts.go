package urlfilter

import "strings"

// hostMatcher matches hosts against exact names and domain wildcards.
// "example.com" matches only that host; "*.example.com" and ".example.com"
// match the domain and every subdomain.
type hostMatcher struct {
	exact   map[string]bool
	domains map[string]bool
}

func newHostMatcher(patterns ...string) *hostMatcher {
	m := &hostMatcher{exact: map[string]bool{}, domains: map[string]bool{}}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if domain, ok := strings.CutPrefix(p, "*."); ok {
			p = "." + domain
		}
		if domain, ok := strings.CutPrefix(p, "."); ok {
			if domain != "" {
				m.domains[domain] = true
			}
			continue
		}
		if p != "" {
			m.exact[p] = true
		}
	}
	return m
}

// Match walks host from the full name toward the registrable domain, one
// label at a time.
func (m *hostMatcher) Match(host string) bool {
	if m == nil {
		return false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if m.exact[host] {
		return true
	}
	for name := host; name != ""; {
		if m.domains[name] {
			return true
		}
		_, rest, found := strings.Cut(name, ".")
		if !found {
			break
		}
		name = rest
	}
	return false
}
