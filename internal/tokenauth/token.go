// Package tokenauth implements the bearer-token authorization pipeline:
// authentication, rate limiting, per-model authorization, field redaction and
// usage metering for mobile app tokens and API client tokens.
package tokenauth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"vocacore/internal/models"
)

// Kind discriminates the two token flavors. The secret prefix is parsed once
// at the authentication boundary; everything downstream switches on Kind.
type Kind string

const (
	KindNone   Kind = ""
	KindMobile Kind = "mobile"
	KindAPI    Kind = "api"
)

const (
	PrefixMobile = "mob_"
	PrefixAPI    = "api_"

	secretRandLen = 60
)

var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenInactive      = errors.New("token inactive")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenExpired       = errors.New("token expired")
	ErrUsageExhausted     = errors.New("token usage exhausted")
	ErrIPNotAllowed       = errors.New("ip address not allowed")
	ErrEndpointNotAllowed = errors.New("endpoint not allowed")
)

// IsAuthFailure reports whether err is one of the credential-level rejection
// sentinels, as opposed to an infrastructure failure during the lookup.
func IsAuthFailure(err error) bool {
	for _, sentinel := range []error{
		ErrTokenNotFound, ErrTokenInactive, ErrTokenRevoked,
		ErrTokenExpired, ErrUsageExhausted,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// ClassifyKind inspects the secret prefix. KindNone means the credential is
// not ours and other auth mechanisms may claim it.
func ClassifyKind(secret string) Kind {
	switch {
	case strings.HasPrefix(secret, PrefixMobile):
		return KindMobile
	case strings.HasPrefix(secret, PrefixAPI):
		return KindAPI
	default:
		return KindNone
	}
}

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSecret returns a fresh opaque secret for the given kind:
// prefix + 60 random alphanumerics.
func GenerateSecret(kind Kind) (string, error) {
	var prefix string
	switch kind {
	case KindMobile:
		prefix = PrefixMobile
	case KindAPI:
		prefix = PrefixAPI
	default:
		return "", fmt.Errorf("generate secret: unknown kind %q", kind)
	}
	b := make([]byte, secretRandLen)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return prefix + string(b), nil
}

// Validate evaluates the stored status plus the derived-invalid conditions
// (expired, usage-exhausted). Status dominates: a revoked token stays invalid
// no matter what happens to its expiry.
func Validate(b *models.TokenBase, now time.Time) error {
	switch b.Status {
	case models.TokenStatusActive:
	case models.TokenStatusRevoked:
		return ErrTokenRevoked
	default:
		return ErrTokenInactive
	}
	if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	if b.MaxUsageCount != nil && b.UsageCount >= *b.MaxUsageCount {
		return ErrUsageExhausted
	}
	return nil
}

// CheckIP enforces the optional allow-list. An empty list is unrestricted.
func CheckIP(b *models.TokenBase, ip string) error {
	if len(b.AllowedIPs) == 0 {
		return nil
	}
	if !b.AllowedIPs.Contains(ip) {
		return ErrIPNotAllowed
	}
	return nil
}

// CheckEndpoint enforces the API-client endpoint allow-list: the request path
// must contain at least one allowed substring.
func CheckEndpoint(t *models.APIClientToken, path string) error {
	if len(t.AllowedEndpoints) == 0 {
		return nil
	}
	for _, sub := range t.AllowedEndpoints {
		if strings.Contains(path, sub) {
			return nil
		}
	}
	return ErrEndpointNotAllowed
}
