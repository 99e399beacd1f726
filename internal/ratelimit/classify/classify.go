// Package classify derives the limiter class and caller key for an incoming
// request from its path, method and attached principal.
package classify

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/platform/middleware/auth"
	"gatekeeper/pkg/platform/middleware/metadata"
	strutil "gatekeeper/pkg/platform/strings"
)

// Classification is the classifier's verdict for one request.
type Classification struct {
	// Bypass means the source is allow-listed: no limiter and no abuse
	// detection apply.
	Bypass      bool
	Class       models.Class
	CallerKey   string
	SourceIP    string
	PrincipalID string
	Endpoint    string
}

// prefixRule maps a path prefix to a class. Rules are ordered; first match
// wins.
type prefixRule struct {
	prefix string
	class  models.Class
}

// defaultRules reflect the API surface this limiter fronts. Broadcast must
// precede the broader bulk-messaging prefix.
var defaultRules = []prefixRule{
	{prefix: "/auth/", class: models.ClassInteractiveAuth},
	{prefix: "/api/uploads", class: models.ClassFileUpload},
	{prefix: "/api/campaigns/broadcast", class: models.ClassBulkMessagingHeavy},
	{prefix: "/api/campaigns/send", class: models.ClassBulkMessaging},
	{prefix: "/public/", class: models.ClassPublicAPI},
}

// Classifier resolves requests to limiter classes. Immutable after New.
type Classifier struct {
	allowlist []netip.Prefix
	rules     []prefixRule
}

// New builds a classifier with the given allow-list entries, each a single
// IP or a CIDR. A malformed entry fails startup.
func New(allowlist []string) (*Classifier, error) {
	c := &Classifier{rules: defaultRules}
	for _, entry := range strutil.DedupeAndTrim(allowlist) {
		prefix, err := parseAllowlistEntry(entry)
		if err != nil {
			return nil, err
		}
		c.allowlist = append(c.allowlist, prefix)
	}
	return c, nil
}

// Classify resolves the request's limiter class and caller key. Order:
// allow-list bypass, path-prefix rules, premium tier escalation, general
// default.
func (c *Classifier) Classify(r *http.Request) Classification {
	ctx := r.Context()
	sourceIP := metadata.GetClientIP(ctx)
	principal, authenticated := auth.GetPrincipal(ctx)

	cls := Classification{
		SourceIP: sourceIP,
		Endpoint: r.Method + " " + r.URL.Path,
	}
	if authenticated {
		cls.PrincipalID = principal.ID
	}
	cls.CallerKey = models.CallerKey(sourceIP, cls.PrincipalID)

	if c.isAllowlisted(sourceIP) {
		cls.Bypass = true
		return cls
	}

	for _, rule := range c.rules {
		if strings.HasPrefix(r.URL.Path, rule.prefix) {
			cls.Class = rule.class
			return cls
		}
	}

	if authenticated && principal.Tier == auth.TierPremium {
		cls.Class = models.ClassPremiumTier
		return cls
	}

	cls.Class = models.ClassGeneralAPI
	return cls
}

func (c *Classifier) isAllowlisted(sourceIP string) bool {
	addr, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return false
	}
	for _, prefix := range c.allowlist {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAllowlistEntry(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("allowlist entry %q: %w", entry, err)
		}
		return prefix, nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("allowlist entry %q: %w", entry, err)
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
