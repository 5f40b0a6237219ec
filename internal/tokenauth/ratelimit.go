package tokenauth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"vocacore/internal/obs"
)

// RateLimitError names the breached window so the response can say which
// ceiling was hit and when to come back.
type RateLimitError struct {
	Window     string // "hourly" or "daily"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (%d requests)", e.Window, e.Limit)
}

// RateLimit enforces the per-token ceilings for API client tokens by
// recounting the usage ledger over the trailing hour and day. Recomputing
// from the ledger keeps the limiter consistent with the audit trail and
// survives process restarts; the window query rides the
// (token_type, token_id, timestamp) index. Mobile tokens are not limited
// here.
func RateLimit(store *Store, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil || id.Kind != KindAPI {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			rlErr, hourly, err := checkWindows(r, store, id, now)
			if err != nil {
				lg.Errorw("rate limit count failed", "token", id.TokenID, "error", err)
				writeError(w, http.StatusInternalServerError, "rate limit check failed")
				return
			}

			if id.RateLimitPerHour > 0 {
				remaining := int64(id.RateLimitPerHour) - hourly
				if remaining < 0 {
					remaining = 0
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(id.RateLimitPerHour))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(time.Hour).Unix(), 10))
			}

			if rlErr != nil {
				id.rejected = true
				obs.RateLimited(rlErr.Window)
				lg.Infow("rate limit exceeded",
					"token", id.TokenID, "window", rlErr.Window, "limit", rlErr.Limit)
				secs := int64(rlErr.RetryAfter/time.Second) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				writeError(w, http.StatusTooManyRequests, rlErr.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkWindows(r *http.Request, store *Store, id *Identity, now time.Time) (*RateLimitError, int64, error) {
	ctx := r.Context()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	hourly, err := store.CountSince(ctx, id.Kind, id.TokenID, hourAgo)
	if err != nil {
		return nil, 0, err
	}
	if id.RateLimitPerHour > 0 && hourly >= int64(id.RateLimitPerHour) {
		retry, err := retryAfter(r, store, id, hourAgo, time.Hour, now)
		if err != nil {
			return nil, hourly, err
		}
		return &RateLimitError{Window: "hourly", Limit: id.RateLimitPerHour, RetryAfter: retry}, hourly, nil
	}

	daily, err := store.CountSince(ctx, id.Kind, id.TokenID, dayAgo)
	if err != nil {
		return nil, hourly, err
	}
	if id.RateLimitPerDay > 0 && daily >= int64(id.RateLimitPerDay) {
		retry, err := retryAfter(r, store, id, dayAgo, 24*time.Hour, now)
		if err != nil {
			return nil, hourly, err
		}
		return &RateLimitError{Window: "daily", Limit: id.RateLimitPerDay, RetryAfter: retry}, hourly, nil
	}

	return nil, hourly, nil
}

// retryAfter is the time until the oldest counted entry slides out of the
// window, i.e. when one slot of capacity comes back.
func retryAfter(r *http.Request, store *Store, id *Identity, since time.Time, window time.Duration, now time.Time) (time.Duration, error) {
	oldest, err := store.OldestSince(r.Context(), id.Kind, id.TokenID, since)
	if err != nil {
		return 0, err
	}
	if oldest == nil {
		return window, nil
	}
	d := oldest.Add(window).Sub(now)
	if d < 0 {
		d = 0
	}
	return d, nil
}
