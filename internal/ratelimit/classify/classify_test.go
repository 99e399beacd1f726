package classify

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/platform/middleware/auth"
	"gatekeeper/pkg/platform/middleware/metadata"
)

func classifyRequest(t *testing.T, c *Classifier, method, path, ip string, principal *auth.Principal) Classification {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	ctx := metadata.WithClientIP(r.Context(), ip)
	if principal != nil {
		ctx = auth.WithPrincipal(ctx, *principal)
	}
	return c.Classify(r.WithContext(ctx))
}

func TestClassifyPathRules(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want models.Class
	}{
		{name: "auth prefix", path: "/auth/login", want: models.ClassInteractiveAuth},
		{name: "upload prefix", path: "/api/uploads", want: models.ClassFileUpload},
		{name: "broadcast beats bulk prefix", path: "/api/campaigns/broadcast", want: models.ClassBulkMessagingHeavy},
		{name: "bulk send", path: "/api/campaigns/send", want: models.ClassBulkMessaging},
		{name: "public prefix", path: "/public/status", want: models.ClassPublicAPI},
		{name: "unmatched defaults to general", path: "/api/tickets", want: models.ClassGeneralAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifyRequest(t, c, "POST", tt.path, "203.0.113.5", nil)
			require.False(t, cls.Bypass)
			require.Equal(t, tt.want, cls.Class)
		})
	}
}

func TestClassifyTier(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	premium := &auth.Principal{ID: "user-1", Tier: auth.TierPremium}
	standard := &auth.Principal{ID: "user-2", Tier: auth.TierStandard}

	t.Run("premium tier replaces general default", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", premium)
		require.Equal(t, models.ClassPremiumTier, cls.Class)
	})

	t.Run("standard tier keeps general default", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", standard)
		require.Equal(t, models.ClassGeneralAPI, cls.Class)
	})

	t.Run("path rules beat premium tier", func(t *testing.T) {
		cls := classifyRequest(t, c, "POST", "/auth/login", "203.0.113.5", premium)
		require.Equal(t, models.ClassInteractiveAuth, cls.Class)
	})
}

func TestClassifyCallerKey(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	t.Run("anonymous traffic shares one bucket per IP", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", nil)
		require.Equal(t, "203.0.113.5:anonymous", cls.CallerKey)
	})

	t.Run("authenticated users behind one NAT get distinct keys", func(t *testing.T) {
		a := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", &auth.Principal{ID: "user-1"})
		b := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", &auth.Principal{ID: "user-2"})
		require.Equal(t, "203.0.113.5:user-1", a.CallerKey)
		require.NotEqual(t, a.CallerKey, b.CallerKey)
	})

	t.Run("delimiters in identifiers are escaped", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "::1", &auth.Principal{ID: "user:admin"})
		require.Equal(t, "__1:user_admin", cls.CallerKey)
	})
}

func TestClassifyAllowlist(t *testing.T) {
	c, err := New([]string{"198.51.100.7", "10.0.0.0/8"})
	require.NoError(t, err)

	t.Run("exact IP bypasses", func(t *testing.T) {
		cls := classifyRequest(t, c, "POST", "/auth/login", "198.51.100.7", nil)
		require.True(t, cls.Bypass)
	})

	t.Run("CIDR member bypasses", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "10.42.1.9", nil)
		require.True(t, cls.Bypass)
	})

	t.Run("outside the list is classified normally", func(t *testing.T) {
		cls := classifyRequest(t, c, "GET", "/api/tickets", "203.0.113.5", nil)
		require.False(t, cls.Bypass)
		require.Equal(t, models.ClassGeneralAPI, cls.Class)
	})
}

func TestNewRejectsMalformedAllowlist(t *testing.T) {
	_, err := New([]string{"not-an-ip"})
	require.Error(t, err)

	_, err = New([]string{"10.0.0.0/99"})
	require.Error(t, err)
}
