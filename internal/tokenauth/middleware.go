package tokenauth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"vocacore/internal/models"
	"vocacore/internal/obs"
)

const bearerPrefix = "Bearer "

// Authenticate is the entry stage of the pipeline. Requests without a bearer
// credential, or with a credential that is not one of ours, pass through
// unauthenticated for other mechanisms to handle. A recognized prefix commits
// the request to this pipeline: an unknown secret is a hard 401, never a
// silent fallback.
//
// It also hosts the metering tail: once a request authenticates, the response
// is recorded in the usage ledger and the token billed, whatever happens
// downstream.
func Authenticate(store *Store, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, bearerPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			secret := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
			kind := ClassifyKind(secret)
			if kind == KindNone {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			id, err := resolveIdentity(r.Context(), store, kind, secret, ip)
			if err != nil {
				if errors.Is(err, ErrIPNotAllowed) {
					obs.Denied("ip")
					lg.Infow("token ip rejected", "kind", kind, "path", r.URL.Path, "ip", ip)
					writeError(w, http.StatusForbidden, "ip address not allowed")
					return
				}
				if !IsAuthFailure(err) {
					// Store breakage is not a credential problem.
					obs.AuthFailure(string(kind), "error")
					lg.Errorw("token lookup failed",
						"kind", kind, "path", r.URL.Path, "error", err)
					writeError(w, http.StatusInternalServerError, "authentication check failed")
					return
				}
				obs.AuthFailure(string(kind), err.Error())
				lg.Infow("token authentication failed",
					"kind", kind, "path", r.URL.Path, "ip", ip, "reason", err)
				// Clients get a generic message; the cause stays in the logs.
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			obs.AuthSuccess(string(kind))
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithIdentity(r.Context(), id)))
			meter(r.Context(), store, lg, id, r, ww, ip, start)
		})
	}
}

func resolveIdentity(ctx context.Context, store *Store, kind Kind, secret, ip string) (*Identity, error) {
	now := time.Now()
	switch kind {
	case KindMobile:
		t, err := store.FindMobileBySecret(ctx, secret)
		if err != nil {
			return nil, err
		}
		if err := Validate(&t.TokenBase, now); err != nil {
			return nil, err
		}
		if err := CheckIP(&t.TokenBase, ip); err != nil {
			return nil, err
		}
		return &Identity{
			Kind:       KindMobile,
			TokenID:    t.ID,
			TokenName:  t.Name,
			Role:       t.Role,
			AppVersion: &t.AppVersion,
			UsageCount: t.UsageCount,
		}, nil
	case KindAPI:
		t, err := store.FindAPIBySecret(ctx, secret)
		if err != nil {
			return nil, err
		}
		if err := Validate(&t.TokenBase, now); err != nil {
			return nil, err
		}
		if err := CheckIP(&t.TokenBase, ip); err != nil {
			return nil, err
		}
		return &Identity{
			Kind:             KindAPI,
			TokenID:          t.ID,
			TokenName:        t.Name,
			ClientName:       t.ClientName,
			RateLimitPerHour: t.RateLimitPerHour,
			RateLimitPerDay:  t.RateLimitPerDay,
			AllowedEndpoints: t.AllowedEndpoints,
			UsageCount:       t.UsageCount,
		}, nil
	default:
		return nil, ErrTokenNotFound
	}
}

// meter is the audit/metering tail: one ledger row per authenticated call,
// plus the atomic usage increment. Requests denied by a later stage are
// logged with their final status but not billed. Failures here never affect
// the response already written.
func meter(ctx context.Context, store *Store, lg *zap.SugaredLogger, id *Identity,
	r *http.Request, ww middleware.WrapResponseWriter, ip string, start time.Time) {

	now := time.Now()
	reqSize := r.ContentLength
	if reqSize < 0 {
		reqSize = 0
	}
	entry := &models.TokenUsageLog{
		TokenType:      string(id.Kind),
		TokenID:        id.TokenID,
		TokenName:      id.TokenName,
		Endpoint:       r.URL.Path,
		Method:         r.Method,
		IPAddress:      ip,
		UserAgent:      truncate(r.UserAgent(), 1000),
		StatusCode:     ww.Status(),
		ResponseTimeMs: now.Sub(start).Milliseconds(),
		RequestSize:    reqSize,
		ResponseSize:   int64(ww.BytesWritten()),
		Timestamp:      now,
	}
	if err := store.AppendLog(ctx, entry); err != nil {
		obs.AuditError()
		lg.Errorw("usage log write failed", "token", id.TokenID, "error", err)
	}
	if !id.rejected {
		if err := store.IncrementUsage(ctx, id.Kind, id.TokenID, now); err != nil {
			obs.AuditError()
			lg.Errorw("usage increment failed", "token", id.TokenID, "error", err)
		}
	}
	obs.ObserveRequest(string(id.Kind), ww.Status(), now.Sub(start))
}

// ClientIP resolves the caller address, honoring the first X-Forwarded-For
// entry when present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
