package tokenauth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocacore/internal/models"
)

func TestRateLimitIgnoresMobileTokens(t *testing.T) {
	store := newTestStore(t)
	h := RateLimit(store, testLogger())(okHandler(nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(&Identity{Kind: KindMobile}, "/api/cruds/words"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitHourlyWindow(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), func(a *models.APIClientToken) {
		a.RateLimitPerHour = 5
		a.RateLimitPerDay = 100
	})
	h := RateLimit(store, testLogger())(okHandler(nil))

	now := time.Now()
	ident := func() *Identity {
		return &Identity{Kind: KindAPI, TokenID: tok.ID, RateLimitPerHour: 5, RateLimitPerDay: 100}
	}

	// Four recent entries: one slot left.
	for i := 0; i < 4; i++ {
		seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-time.Duration(i+1)*time.Minute))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(ident(), "/api/cruds/words"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	// Fifth entry fills the window.
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-30*time.Second))
	id := ident()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(id, "/api/cruds/words"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "hourly rate limit exceeded")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.True(t, id.rejected)

	// Retry-After points at the oldest entry aging out of the hour.
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 3600)
}

func TestRateLimitWindowSlides(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), func(a *models.APIClientToken) {
		a.RateLimitPerHour = 3
		a.RateLimitPerDay = 100
	})
	h := RateLimit(store, testLogger())(okHandler(nil))

	now := time.Now()
	// Three entries, all older than an hour: the window is empty again.
	for i := 0; i < 3; i++ {
		seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-2*time.Hour))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(
		&Identity{Kind: KindAPI, TokenID: tok.ID, RateLimitPerHour: 3, RateLimitPerDay: 100},
		"/api/cruds/words"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitDailyWindow(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), func(a *models.APIClientToken) {
		a.RateLimitPerHour = 100
		a.RateLimitPerDay = 10
	})
	h := RateLimit(store, testLogger())(okHandler(nil))

	now := time.Now()
	// Ten entries spread over the day but outside the last hour.
	for i := 0; i < 10; i++ {
		seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-time.Duration(i+2)*time.Hour))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(
		&Identity{Kind: KindAPI, TokenID: tok.ID, RateLimitPerHour: 100, RateLimitPerDay: 10},
		"/api/cruds/words"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "daily rate limit exceeded")
}

func TestRateLimitExcludesThrottledRows(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), func(a *models.APIClientToken) {
		a.RateLimitPerHour = 3
		a.RateLimitPerDay = 100
	})
	h := RateLimit(store, testLogger())(okHandler(nil))

	now := time.Now()
	// Two real requests plus a pile of 429 rejections: only the real ones
	// count, so the client is not locked out by its own retries.
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-time.Minute))
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-2*time.Minute))
	for i := 0; i < 10; i++ {
		seedLog(t, store.DB(), KindAPI, tok.ID, 429, now.Add(-time.Duration(i+1)*time.Second))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(
		&Identity{Kind: KindAPI, TokenID: tok.ID, RateLimitPerHour: 3, RateLimitPerDay: 100},
		"/api/cruds/words"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitZeroIsUnlimited(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), func(a *models.APIClientToken) {
		a.RateLimitPerHour = 0
		a.RateLimitPerDay = 0
	})
	h := RateLimit(store, testLogger())(okHandler(nil))

	now := time.Now()
	for i := 0; i < 20; i++ {
		seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-time.Minute))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestWithIdentity(
		&Identity{Kind: KindAPI, TokenID: tok.ID},
		"/api/cruds/words"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
