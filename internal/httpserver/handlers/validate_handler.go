package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

type validateTokenReq struct {
	Token    string `json:"token"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	IP       string `json:"ip"`
}

// ValidateToken checks a raw secret on behalf of another service and returns
// a redacted summary of the matched token. A successful check counts as one
// use. Failures stay deliberately vague so the endpoint cannot be used as a
// token oracle.
func ValidateToken(store *tokenauth.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateTokenReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind := tokenauth.ClassifyKind(req.Token)
		if kind == tokenauth.KindNone {
			respondError(w, http.StatusBadRequest, "unrecognized token format")
			return
		}

		now := time.Now()
		ctx := r.Context()

		var base *models.TokenBase
		summary := map[string]any{"valid": true, "token_type": string(kind)}

		switch kind {
		case tokenauth.KindMobile:
			t, err := store.FindMobileBySecret(ctx, req.Token)
			if err != nil {
				invalidToken(w, lg, err)
				return
			}
			base = &t.TokenBase
			summary["role"] = t.Role
			if t.AppVersion.VersionName != "" {
				summary["app_version"] = t.AppVersion.VersionName
			}
		case tokenauth.KindAPI:
			t, err := store.FindAPIBySecret(ctx, req.Token)
			if err != nil {
				invalidToken(w, lg, err)
				return
			}
			if req.Endpoint != "" {
				if err := tokenauth.CheckEndpoint(t, req.Endpoint); err != nil {
					respondError(w, http.StatusForbidden, "endpoint not allowed")
					return
				}
			}
			base = &t.TokenBase
			summary["client_name"] = t.ClientName
			summary["rate_limit_per_hour"] = t.RateLimitPerHour
			summary["rate_limit_per_day"] = t.RateLimitPerDay
		}

		if err := tokenauth.Validate(base, now); err != nil {
			invalidToken(w, lg, err)
			return
		}
		if req.IP != "" {
			if err := tokenauth.CheckIP(base, req.IP); err != nil {
				respondError(w, http.StatusForbidden, "ip address not allowed")
				return
			}
		}

		// The check itself is one billed use; report the post-increment count.
		usage := base.UsageCount
		if err := store.IncrementUsage(ctx, kind, base.ID, now); err != nil {
			lg.Warnw("validate: usage increment failed", "token", base.ID, "err", err)
		} else {
			usage++
		}

		summary["name"] = base.Name
		summary["usage_count"] = usage
		summary["expires_at"] = base.ExpiresAt
		respondJSON(w, summary)
	}
}

func invalidToken(w http.ResponseWriter, lg *zap.SugaredLogger, cause error) {
	if !tokenauth.IsAuthFailure(cause) {
		lg.Errorw("validate: token lookup failed", "error", cause)
		respondError(w, http.StatusInternalServerError, "validation check failed")
		return
	}
	if !errors.Is(cause, tokenauth.ErrTokenNotFound) {
		lg.Debugw("validate rejected", "cause", cause.Error())
	}
	respondStatusJSON(w, http.StatusUnauthorized, map[string]any{
		"valid": false,
		"error": "invalid token",
	})
}
