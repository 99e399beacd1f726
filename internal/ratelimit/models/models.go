// Package models holds the shared value types of the rate limiting subsystem.
package models

import "time"

// Class categorizes endpoints for differentiated rate limiting.
type Class string

const (
	// ClassInteractiveAuth covers login, token and password endpoints.
	// Tightest numbers: credential guessing is the main abuse vector.
	ClassInteractiveAuth Class = "interactive-auth"
	// ClassGeneralAPI is the default for authenticated CRUD traffic.
	ClassGeneralAPI Class = "general-api"
	// ClassFileUpload covers attachment and media uploads.
	ClassFileUpload Class = "file-upload"
	// ClassPremiumTier replaces general-api for premium subscribers.
	ClassPremiumTier Class = "premium-tier"
	// ClassPublicAPI covers unauthenticated read endpoints.
	ClassPublicAPI Class = "public-api"
	// ClassBulkMessaging covers campaign/bulk send operations.
	ClassBulkMessaging Class = "bulk-messaging"
	// ClassBulkMessagingHeavy covers full-audience broadcast sends.
	ClassBulkMessagingHeavy Class = "bulk-messaging-heavy"
)

// Classes lists every limiter class, in no particular order. Used by the
// policy table to validate completeness and by the admin reset to walk all
// namespaces.
func Classes() []Class {
	return []Class{
		ClassInteractiveAuth,
		ClassGeneralAPI,
		ClassFileUpload,
		ClassPremiumTier,
		ClassPublicAPI,
		ClassBulkMessaging,
		ClassBulkMessagingHeavy,
	}
}

// IsValid checks if the class is one of the supported enum values.
func (c Class) IsValid() bool {
	switch c {
	case ClassInteractiveAuth, ClassGeneralAPI, ClassFileUpload,
		ClassPremiumTier, ClassPublicAPI, ClassBulkMessaging, ClassBulkMessagingHeavy:
		return true
	}
	return false
}

// RateLimitResult represents the outcome of a single rate limit check.
// It is transient: produced per request and consumed immediately by the
// decision reporter.
type RateLimitResult struct {
	Allowed bool
	// Bypassed is set when the caller was allow-listed or a skip predicate
	// matched; no counter was touched.
	Bypassed bool
	// Degraded is set when the counter store errored and the check failed
	// open. The reporter surfaces this as X-RateLimit-Status: degraded.
	Degraded   bool
	Class      Class
	Key        string
	Hits       int64
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only meaningful when not allowed
}
