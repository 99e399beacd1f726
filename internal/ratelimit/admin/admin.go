// Package admin exposes the operator surface of the rate limiter: clearing
// a caller's counters across every namespace to unblock a false positive.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/pkg/platform/httputil"
)

type Service struct {
	store  ports.CounterStore
	logger *slog.Logger
}

func New(store ports.CounterStore, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	return &Service{store: store, logger: logger}, nil
}

// ResetCallerKey clears the caller's counter in every limiter class
// namespace, plus the brute-force counter for the address portion of the
// key. Resets are idempotent: a missing counter is already reset.
func (s *Service) ResetCallerKey(ctx context.Context, callerKey string) error {
	if callerKey == "" {
		return errors.New("caller key is required")
	}

	for _, class := range models.Classes() {
		if err := s.store.Reset(ctx, models.ClassKey(class, callerKey)); err != nil {
			return err
		}
	}

	// Caller keys are "<address>:<principal>"; the brute-force namespace is
	// keyed by address alone.
	address, _, _ := strings.Cut(callerKey, ":")
	if err := s.store.Reset(ctx, models.CounterKey(models.NamespaceBruteForce, address)); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "rate limit counters reset", "caller_key", callerKey)
	}
	return nil
}

// Handler returns the HTTP surface for operator tools:
// POST <mount>/reset {"key": "<caller key>"}.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
			return
		}
		if err := s.ResetCallerKey(r.Context(), req.Key); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(r.Context(), "reset failed", "caller_key", req.Key, "error", err)
			}
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
