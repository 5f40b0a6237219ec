package tokenauth

import (
	"context"
	"strings"

	"vocacore/internal/models"
)

type ctxKey string

const identityKey ctxKey = "tokenIdentity"

// Identity is what the authentication stage attaches to the request context.
// It is the only channel through which later stages learn that a request is
// token-authenticated.
type Identity struct {
	Kind      Kind
	TokenID   string
	TokenName string

	// Mobile tokens carry a coarse role and the build they were issued for.
	Role       string
	AppVersion *models.AppVersion

	// API client tokens carry client identity, configured ceilings and the
	// endpoint allow-list.
	ClientName       string
	RateLimitPerHour int
	RateLimitPerDay  int
	AllowedEndpoints models.StringList

	UsageCount uint

	// Permission is set by the authorization stage once a matrix row matched;
	// handlers use it for field redaction.
	Permission *models.TokenModelPermission

	// rejected is set when a downstream stage denied the request after
	// authentication; metering then logs the call but does not bill it.
	rejected bool
}

// Reject marks the request as denied after authentication so the metering
// stage records it without billing the token.
func (id *Identity) Reject() { id.rejected = true }

// CheckEndpoint applies the API-client path allow-list carried on the
// identity. Empty list means unrestricted.
func (id *Identity) CheckEndpoint(path string) error {
	if len(id.AllowedEndpoints) == 0 {
		return nil
	}
	for _, sub := range id.AllowedEndpoints {
		if strings.Contains(path, sub) {
			return nil
		}
	}
	return ErrEndpointNotAllowed
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the attached identity, or nil when the request
// is not token-authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey).(*Identity); ok {
		return v
	}
	return nil
}

// HasTokenRole reports whether a mobile token in the context carries at least
// the given coarse role, interpreted exactly like session roles.
func HasTokenRole(ctx context.Context, role string) bool {
	id := IdentityFromContext(ctx)
	if id == nil || id.Kind != KindMobile {
		return false
	}
	rank := map[string]int{
		models.TokenRoleUser:  1,
		models.TokenRoleStaff: 2,
		models.TokenRoleAdmin: 3,
	}
	return rank[id.Role] >= rank[role] && rank[role] > 0
}
