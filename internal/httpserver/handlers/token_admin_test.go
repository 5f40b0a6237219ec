package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

func TestCreateMobileTokenShowsSecretOnce(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/mobile", map[string]any{
		"name": "android beta", "role": "staff",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	secret, _ := body["token"].(string)
	assert.True(t, strings.HasPrefix(secret, tokenauth.PrefixMobile))
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	// Reads never expose the secret again.
	w = doJSON(t, r, http.MethodGet, "/mobile/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), secret)

	w = doJSON(t, r, http.MethodGet, "/mobile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), secret)
}

func TestCreateMobileTokenValidation(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"role": "staff"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": "x", "role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": "x", "expires_at": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Role defaults to user.
	w = doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": "plain"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tok models.MobileAppToken
	require.NoError(t, store.DB().First(&tok, "name = ?", "plain").Error)
	assert.Equal(t, models.TokenRoleUser, tok.Role)
}

func TestMobileTokenLifecycle(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": "lifecycle"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)

	status := func() string {
		var tok models.MobileAppToken
		require.NoError(t, store.DB().First(&tok, "id = ?", id).Error)
		return tok.Status
	}

	w = doJSON(t, r, http.MethodPost, "/mobile/"+id+"/deactivate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TokenStatusInactive, status())

	w = doJSON(t, r, http.MethodPost, "/mobile/"+id+"/activate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TokenStatusActive, status())

	w = doJSON(t, r, http.MethodPost, "/mobile/"+id+"/revoke", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TokenStatusRevoked, status())

	// Revoked is terminal.
	w = doJSON(t, r, http.MethodPost, "/mobile/"+id+"/activate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.TokenStatusRevoked, status())

	w = doJSON(t, r, http.MethodPost, "/mobile/missing/revoke", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegenerateMobileToken(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": "rotate me"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	id := body["id"].(string)
	oldSecret := body["token"].(string)

	w = doJSON(t, r, http.MethodPost, "/mobile/"+id+"/regenerate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	newSecret := decodeBody(t, w)["new_token"].(string)
	assert.NotEqual(t, oldSecret, newSecret)
	assert.True(t, strings.HasPrefix(newSecret, tokenauth.PrefixMobile))

	_, err := store.FindMobileBySecret(context.Background(), oldSecret)
	assert.ErrorIs(t, err, tokenauth.ErrTokenNotFound)
	found, err := store.FindMobileBySecret(context.Background(), newSecret)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
}

func TestBulkMobileTokenAction(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		w := doJSON(t, r, http.MethodPost, "/mobile", map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decodeBody(t, w)["id"].(string))
	}
	// Revoke one up front; the bulk update must leave it revoked.
	w := doJSON(t, r, http.MethodPost, "/mobile/"+ids[2]+"/revoke", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/mobile/bulk-action", map[string]any{
		"token_ids": ids, "action": "deactivate", "reason": "audit",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["affected"])

	var revoked models.MobileAppToken
	require.NoError(t, store.DB().First(&revoked, "id = ?", ids[2]).Error)
	assert.Equal(t, models.TokenStatusRevoked, revoked.Status)

	w = doJSON(t, r, http.MethodPost, "/mobile/bulk-action", map[string]any{
		"token_ids": ids[:2], "action": "delete",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var n int64
	store.DB().Model(&models.MobileAppToken{}).Count(&n)
	assert.Equal(t, int64(1), n)

	w = doJSON(t, r, http.MethodPost, "/mobile/bulk-action", map[string]any{
		"token_ids": ids, "action": "explode",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAPITokenWithPermissions(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/api", map[string]any{
		"name":         "partner",
		"client_name":  "acme",
		"client_email": "ops@acme.test",
		"permissions": []map[string]any{
			{"model_name": "Word", "can_list": true, "can_read": true},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.True(t, strings.HasPrefix(body["token"].(string), tokenauth.PrefixAPI))
	id := body["id"].(string)

	d, err := store.Permission(context.Background(), id, "Word")
	require.NoError(t, err)
	assert.True(t, d.Allows(tokenauth.ActionList))

	// Defaults applied.
	var tok models.APIClientToken
	require.NoError(t, store.DB().First(&tok, "id = ?", id).Error)
	assert.Equal(t, 1000, tok.RateLimitPerHour)
	assert.Equal(t, 10000, tok.RateLimitPerDay)
}

func TestCreateAPITokenRejectsUnknownModel(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/api", map[string]any{
		"name": "partner", "client_name": "acme", "client_email": "ops@acme.test",
		"permissions": []map[string]any{{"model_name": "Invoice", "can_list": true}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown model")
}

func TestPutTokenPermissionsReplacesMatrix(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/api", map[string]any{
		"name": "partner", "client_name": "acme", "client_email": "ops@acme.test",
		"permissions": []map[string]any{
			{"model_name": "Word", "can_list": true},
			{"model_name": "Language", "can_list": true},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)

	// Replace with a single entry; Language falls back to no access.
	w = doJSON(t, r, http.MethodPut, "/api/"+id+"/permissions", map[string]any{
		"permissions": []map[string]any{
			{"model_name": "Word", "can_list": true, "can_update": true, "restricted_fields": []string{"notes"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	d, err := store.Permission(context.Background(), id, "Language")
	require.NoError(t, err)
	assert.False(t, d.Granted())

	d, err = store.Permission(context.Background(), id, "Word")
	require.NoError(t, err)
	assert.True(t, d.Allows(tokenauth.ActionUpdate))
	assert.Contains(t, d.Entry().RestrictedFields, "notes")

	// Duplicate entries rejected, matrix untouched.
	w = doJSON(t, r, http.MethodPut, "/api/"+id+"/permissions", map[string]any{
		"permissions": []map[string]any{
			{"model_name": "Word"}, {"model_name": "Word"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/"+id+"/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Word")

	w = doJSON(t, r, http.MethodPut, "/api/missing/permissions", map[string]any{
		"permissions": []map[string]any{{"model_name": "Word"}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAPITokenRemovesPermissions(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	w := doJSON(t, r, http.MethodPost, "/api", map[string]any{
		"name": "partner", "client_name": "acme", "client_email": "ops@acme.test",
		"permissions": []map[string]any{{"model_name": "Word", "can_list": true}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)

	w = doJSON(t, r, http.MethodDelete, "/api/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	store.DB().Model(&models.TokenModelPermission{}).Where("token_id = ?", id).Count(&n)
	assert.Zero(t, n)
}

func TestListAPITokensFilters(t *testing.T) {
	store := newTestStore(t)
	r := newTokenAdminRouter(store)

	for _, name := range []string{"alpha", "beta"} {
		w := doJSON(t, r, http.MethodPost, "/api", map[string]any{
			"name": name, "client_name": "acme-" + name, "client_email": "x@y.test",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := doJSON(t, r, http.MethodGet, "/api?search=alpha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alpha")
	assert.NotContains(t, w.Body.String(), "beta")

	w = doJSON(t, r, http.MethodGet, "/api?status=revoked", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "alpha")
}
