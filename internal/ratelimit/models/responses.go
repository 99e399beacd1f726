package models

import "time"

// RateLimitExceededResponse is the JSON body of every 429 this subsystem
// produces. Internal error text never leaks into it; Message is the policy's
// operator-written string.
type RateLimitExceededResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	Timestamp  string `json:"timestamp"`
}

// NewRateLimitExceededResponse builds the rejection body for a deny decision.
func NewRateLimitExceededResponse(errorCode, message string, retryAfter int, now time.Time) *RateLimitExceededResponse {
	return &RateLimitExceededResponse{
		Success:    false,
		Error:      errorCode,
		Message:    message,
		RetryAfter: retryAfter,
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
}
