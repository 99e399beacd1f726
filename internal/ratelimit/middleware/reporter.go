package middleware

import (
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/ratelimit/classify"
	"gatekeeper/internal/ratelimit/events"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/service/abuse"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/privacy"
)

// Decision reporting: every denied request gets a 429 with the structured
// rejection body, the standard rate-limit headers, one warning (or error,
// for abuse) log line, and exactly one observability event — even when both
// the limiter and the abuse detector would fire.

func (m *Middleware) denyPolicy(w http.ResponseWriter, r *http.Request, cls classify.Classification, result *models.RateLimitResult) {
	pol, err := m.limiter.Policy(cls.Class)
	if err != nil {
		// Resolve already succeeded during the check; treat a race with a
		// table replace as a generic rejection.
		pol.ErrorCode = "RATE_LIMIT_EXCEEDED"
		pol.Message = "Too many requests. Please try again later."
	}

	source := privacy.AnonymizeIP(cls.SourceIP)
	if m.logger != nil {
		m.logger.WarnContext(r.Context(), "rate limit exceeded",
			"class", cls.Class,
			"source", source,
			"endpoint", cls.Endpoint,
			"principal_id", cls.PrincipalID,
			"hits", result.Hits,
			"limit", result.Limit,
		)
	}

	event := events.New(events.KindRateLimited, events.SeverityWarning)
	event.Class = string(cls.Class)
	event.Source = source
	event.Endpoint = cls.Endpoint
	event.Hits = result.Hits
	event.Limit = result.Limit
	m.sink.Emit(r.Context(), event)

	addRateLimitHeaders(w, result)
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests,
		models.NewRateLimitExceededResponse(pol.ErrorCode, pol.Message, result.RetryAfter, time.Now()))
}

func (m *Middleware) denyAbuse(w http.ResponseWriter, r *http.Request, cls classify.Classification, retryAfter int, resetAt time.Time) {
	source := privacy.AnonymizeIP(cls.SourceIP)
	if m.logger != nil {
		m.logger.ErrorContext(r.Context(), "request denied for suspicious activity",
			"source", source,
			"endpoint", cls.Endpoint,
			"blocked_until", resetAt,
		)
	}

	event := events.New(events.KindAbuseDetected, events.SeverityError)
	event.Class = string(cls.Class)
	event.Source = source
	event.Endpoint = cls.Endpoint
	m.sink.Emit(r.Context(), event)

	w.Header().Set("X-RateLimit-Limit", "0")
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests,
		models.NewRateLimitExceededResponse(abuse.ErrorCode, abuse.Message, retryAfter, time.Now()))
}

// reportDegraded emits the observability event for a check that failed open
// on a store error. The limiter already logged the warning; this is the
// sink-side counterpart so alerting sees degraded protection too.
func (m *Middleware) reportDegraded(r *http.Request, cls classify.Classification) {
	event := events.New(events.KindStoreDegraded, events.SeverityWarning)
	event.Class = string(cls.Class)
	event.Source = privacy.AnonymizeIP(cls.SourceIP)
	event.Endpoint = cls.Endpoint
	m.sink.Emit(r.Context(), event)
}

// addRateLimitHeaders sets the informational headers on every checked
// request, allowed or not.
func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// statusRecorder observes the downstream status code so the response path
// can feed the abuse detector.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer so http.NewResponseController can
// find Flusher and Hijacker through the wrapper.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
