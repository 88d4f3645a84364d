// Package simple contains a blocklist-backed admission policy.
package simple

import (
	"net/url"
	"strings"

	"github.com/scoutgrid/leadscout/internal/blocklist"
)

// Policy admits fetches unless the target host is deny-listed.
type Policy struct {
	deny *blocklist.Blocklist
}

// New creates a Policy from deny patterns. With no patterns it is permissive.
func New(denyPatterns []string) *Policy {
	return &Policy{deny: blocklist.New(denyPatterns)}
}

// AllowFetch rejects URLs whose host matches the deny list.
func (p *Policy) AllowFetch(_ string, rawURL string) bool {
	return !p.deny.IsBlocked(hostname(rawURL))
}

// AllowHeadless applies the same deny list to headless promotions.
func (p *Policy) AllowHeadless(jobID string, rawURL string) bool {
	return p.AllowFetch(jobID, rawURL)
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
