package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vocacore/internal/auth"
	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

// MountAPITokenRoutes wires the admin surface for API client tokens.
func MountAPITokenRoutes(r chi.Router, store *tokenauth.Store, lg *zap.SugaredLogger) {
	db := store.DB()
	r.Get("/", ListAPITokens(db))
	r.Post("/", CreateAPIToken(db, lg))
	r.Post("/bulk-action", bulkTokenAction(db, tokenauth.KindAPI))
	r.Get("/{id}", GetAPIToken(db))
	r.Patch("/{id}", UpdateAPIToken(db))
	r.Delete("/{id}", DeleteAPIToken(db))

	regen := regenerateHandler(store, tokenauth.KindAPI)
	r.Post("/{id}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		regen(w, r, chi.URLParam(r, "id"))
	})
	for target, path := range map[string]string{
		models.TokenStatusRevoked:  "/{id}/revoke",
		models.TokenStatusActive:   "/{id}/activate",
		models.TokenStatusInactive: "/{id}/deactivate",
	} {
		h := statusActionHandler(db, tokenauth.KindAPI, target)
		r.Post(path, func(w http.ResponseWriter, r *http.Request) {
			h(w, r, chi.URLParam(r, "id"))
		})
	}
	r.Get("/{id}/usage-stats", TokenUsageStatsHandler(store, tokenauth.KindAPI))
	r.Get("/{id}/permissions", GetTokenPermissions(db))
	r.Put("/{id}/permissions", PutTokenPermissions(db, lg))
}

func ListAPITokens(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Model(&models.APIClientToken{})
		if s := r.URL.Query().Get("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if search := r.URL.Query().Get("search"); search != "" {
			q = q.Where("name LIKE ? OR client_name LIKE ?", "%"+search+"%", "%"+search+"%")
		}
		var tokens []models.APIClientToken
		if err := q.Order("created_at desc").Find(&tokens).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, tokens)
	}
}

type permissionEntryReq struct {
	ModelName string `json:"model_name"`

	CanCreate bool `json:"can_create"`
	CanRead   bool `json:"can_read"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
	CanList   bool `json:"can_list"`

	CanBulkCreate bool `json:"can_bulk_create"`
	CanBulkUpdate bool `json:"can_bulk_update"`
	CanBulkDelete bool `json:"can_bulk_delete"`

	RestrictedFields []string `json:"restricted_fields"`
	ReadonlyFields   []string `json:"readonly_fields"`
}

func (p permissionEntryReq) toModel(tokenID string, now time.Time) models.TokenModelPermission {
	return models.TokenModelPermission{
		TokenID:          tokenID,
		ModelName:        p.ModelName,
		CanCreate:        p.CanCreate,
		CanRead:          p.CanRead,
		CanUpdate:        p.CanUpdate,
		CanDelete:        p.CanDelete,
		CanList:          p.CanList,
		CanBulkCreate:    p.CanBulkCreate,
		CanBulkUpdate:    p.CanBulkUpdate,
		CanBulkDelete:    p.CanBulkDelete,
		RestrictedFields: p.RestrictedFields,
		ReadonlyFields:   p.ReadonlyFields,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

type createAPITokenReq struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	ClientName         string   `json:"client_name"`
	ClientEmail        string   `json:"client_email"`
	ClientOrganization string   `json:"client_organization"`
	RateLimitPerHour   int      `json:"rate_limit_per_hour"`
	RateLimitPerDay    int      `json:"rate_limit_per_day"`
	AllowedEndpoints   []string `json:"allowed_endpoints"`
	AllowedIPs         []string `json:"allowed_ips"`
	ExpiresAt          string   `json:"expires_at"`
	MaxUsageCount      *uint    `json:"max_usage_count"`

	Permissions []permissionEntryReq `json:"permissions"`
}

// CreateAPIToken mints a new API client token, optionally seeding its
// permission matrix in the same request. The secret is shown once.
func CreateAPIToken(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAPITokenReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Name == "" || req.ClientName == "" || req.ClientEmail == "" {
			respondError(w, http.StatusBadRequest, "name, client_name and client_email required")
			return
		}
		if err := validatePermissionModels(req.Permissions); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		expires, err := parseTimeField(req.ExpiresAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		secret, err := tokenauth.GenerateSecret(tokenauth.KindAPI)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if req.RateLimitPerHour <= 0 {
			req.RateLimitPerHour = 1000
		}
		if req.RateLimitPerDay <= 0 {
			req.RateLimitPerDay = 10000
		}

		sub := auth.Subject(r.Context())
		now := time.Now()
		t := models.APIClientToken{
			TokenBase: models.TokenBase{
				Token:         secret,
				Name:          req.Name,
				Description:   req.Description,
				Status:        models.TokenStatusActive,
				ExpiresAt:     expires,
				MaxUsageCount: req.MaxUsageCount,
				AllowedIPs:    req.AllowedIPs,
				CreatedAt:     now,
				UpdatedAt:     now,
			},
			ClientName:         req.ClientName,
			ClientEmail:        req.ClientEmail,
			ClientOrganization: req.ClientOrganization,
			RateLimitPerHour:   req.RateLimitPerHour,
			RateLimitPerDay:    req.RateLimitPerDay,
			AllowedEndpoints:   req.AllowedEndpoints,
		}
		if sub != "" {
			t.CreatedByID = &sub
		}
		for _, p := range req.Permissions {
			t.Permissions = append(t.Permissions, p.toModel("", now))
		}
		if err := db.Create(&t).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		lg.Infow("api token created", "id", t.ID, "name", t.Name, "client", t.ClientName)
		respondStatusJSON(w, http.StatusCreated, map[string]any{
			"id":    t.ID,
			"token": secret,
		})
	}
}

func GetAPIToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t models.APIClientToken
		err := db.Preload("Permissions").First(&t, "id = ?", chi.URLParam(r, "id")).Error
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		respondJSON(w, t)
	}
}

type updateAPITokenReq struct {
	Name               *string  `json:"name"`
	Description        *string  `json:"description"`
	ClientName         *string  `json:"client_name"`
	ClientEmail        *string  `json:"client_email"`
	ClientOrganization *string  `json:"client_organization"`
	RateLimitPerHour   *int     `json:"rate_limit_per_hour"`
	RateLimitPerDay    *int     `json:"rate_limit_per_day"`
	AllowedEndpoints   []string `json:"allowed_endpoints"`
	AllowedIPs         []string `json:"allowed_ips"`
	ExpiresAt          *string  `json:"expires_at"`
	MaxUsageCount      *uint    `json:"max_usage_count"`
}

func UpdateAPIToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateAPITokenReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var t models.APIClientToken
		if err := db.First(&t, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.ClientName != nil {
			t.ClientName = *req.ClientName
		}
		if req.ClientEmail != nil {
			t.ClientEmail = *req.ClientEmail
		}
		if req.ClientOrganization != nil {
			t.ClientOrganization = *req.ClientOrganization
		}
		if req.RateLimitPerHour != nil && *req.RateLimitPerHour > 0 {
			t.RateLimitPerHour = *req.RateLimitPerHour
		}
		if req.RateLimitPerDay != nil && *req.RateLimitPerDay > 0 {
			t.RateLimitPerDay = *req.RateLimitPerDay
		}
		if req.AllowedEndpoints != nil {
			t.AllowedEndpoints = req.AllowedEndpoints
		}
		if req.AllowedIPs != nil {
			t.AllowedIPs = req.AllowedIPs
		}
		if req.ExpiresAt != nil {
			expires, err := parseTimeField(*req.ExpiresAt)
			if err != nil {
				respondError(w, http.StatusBadRequest, "expires_at must be RFC 3339")
				return
			}
			t.ExpiresAt = expires
		}
		if req.MaxUsageCount != nil {
			t.MaxUsageCount = req.MaxUsageCount
		}
		t.UpdatedAt = time.Now()
		if err := db.Omit("Permissions").Save(&t).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func DeleteAPIToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		_ = db.Where("token_id = ?", id).Delete(&models.TokenModelPermission{}).Error
		tx := db.Delete(&models.APIClientToken{}, "id = ?", id)
		if tx.Error != nil {
			respondError(w, http.StatusInternalServerError, tx.Error.Error())
			return
		}
		if tx.RowsAffected == 0 {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		respondJSON(w, map[string]any{"deleted": true})
	}
}

func GetTokenPermissions(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var n int64
		if err := db.Model(&models.APIClientToken{}).Where("id = ?", id).Count(&n).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n == 0 {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		var perms []models.TokenModelPermission
		if err := db.Where("token_id = ?", id).Order("model_name").Find(&perms).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, perms)
	}
}

// PutTokenPermissions replaces the whole matrix for one token atomically.
// Models absent from the new set fall back to no access.
func PutTokenPermissions(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req struct {
			Permissions []permissionEntryReq `json:"permissions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := validatePermissionModels(req.Permissions); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var n int64
		if err := db.Model(&models.APIClientToken{}).Where("id = ?", id).Count(&n).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n == 0 {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		now := time.Now()
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("token_id = ?", id).Delete(&models.TokenModelPermission{}).Error; err != nil {
				return err
			}
			for _, p := range req.Permissions {
				row := p.toModel(id, now)
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		lg.Infow("token permissions replaced", "token", id, "entries", len(req.Permissions))
		respondJSON(w, map[string]any{"updated": true, "entries": len(req.Permissions)})
	}
}

func validatePermissionModels(perms []permissionEntryReq) error {
	seen := map[string]bool{}
	for _, p := range perms {
		if !models.KnownModelNames[p.ModelName] {
			return fmt.Errorf("unknown model %q", p.ModelName)
		}
		if seen[p.ModelName] {
			return fmt.Errorf("duplicate entry for model %q", p.ModelName)
		}
		seen[p.ModelName] = true
	}
	return nil
}

// TokenOverviewHandler serves the aggregate dashboard numbers.
func TokenOverviewHandler(store *tokenauth.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := store.Overview(r.Context(), time.Now())
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, o)
	}
}
