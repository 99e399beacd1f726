package models

import "strings"

// Counter key layout: "rl:<namespace>:<caller key>". The namespace is either
// a limiter class or the brute-force detector's own namespace; one counter
// exists per (namespace, caller key) pair.
const (
	keyRoot = "rl"

	// NamespaceBruteForce is the abuse detector's counter namespace, keyed
	// by source address only.
	NamespaceBruteForce = "brute-force"

	// AnonymousMarker is appended to the caller key when no authenticated
	// principal is attached, so all anonymous traffic behind one IP shares
	// a single bucket.
	AnonymousMarker = "anonymous"
)

// CounterKey builds the store key for a namespace and caller key.
func CounterKey(namespace, callerKey string) string {
	return keyRoot + ":" + namespace + ":" + callerKey
}

// ClassKey builds the store key for a limiter class.
func ClassKey(class Class, callerKey string) string {
	return CounterKey(string(class), callerKey)
}

// BruteForceKey builds the abuse detector's key for a source address.
func BruteForceKey(sourceIP string) string {
	return CounterKey(NamespaceBruteForce, SanitizeKeySegment(sourceIP))
}

// CallerKey composes the identity a limiter counter is keyed on: the source
// address joined with the principal id when present, else the anonymous
// marker. Distinct users behind one NAT get independent buckets once
// authenticated.
func CallerKey(sourceIP, principalID string) string {
	if principalID == "" {
		principalID = AnonymousMarker
	}
	return SanitizeKeySegment(sourceIP) + ":" + SanitizeKeySegment(principalID)
}

// SanitizeKeySegment escapes the key delimiter in caller-controlled segments
// so an identifier containing ':' cannot address an adjacent bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
