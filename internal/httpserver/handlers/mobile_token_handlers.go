package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vocacore/internal/auth"
	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

// MountMobileTokenRoutes wires the admin surface for mobile app tokens.
func MountMobileTokenRoutes(r chi.Router, store *tokenauth.Store, lg *zap.SugaredLogger) {
	db := store.DB()
	r.Get("/", ListMobileTokens(db))
	r.Post("/", CreateMobileToken(db, lg))
	r.Post("/bulk-action", bulkTokenAction(db, tokenauth.KindMobile))
	r.Get("/{id}", GetMobileToken(db))
	r.Patch("/{id}", UpdateMobileToken(db))
	r.Delete("/{id}", DeleteMobileToken(db))

	regen := regenerateHandler(store, tokenauth.KindMobile)
	r.Post("/{id}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		regen(w, r, chi.URLParam(r, "id"))
	})
	for target, path := range map[string]string{
		models.TokenStatusRevoked:  "/{id}/revoke",
		models.TokenStatusActive:   "/{id}/activate",
		models.TokenStatusInactive: "/{id}/deactivate",
	} {
		h := statusActionHandler(db, tokenauth.KindMobile, target)
		r.Post(path, func(w http.ResponseWriter, r *http.Request) {
			h(w, r, chi.URLParam(r, "id"))
		})
	}
	r.Get("/{id}/usage-stats", TokenUsageStatsHandler(store, tokenauth.KindMobile))
}

func ListMobileTokens(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Model(&models.MobileAppToken{}).Preload("AppVersion")
		if s := r.URL.Query().Get("status"); s != "" {
			q = q.Where("status = ?", s)
		}
		if role := r.URL.Query().Get("role"); role != "" {
			q = q.Where("role = ?", role)
		}
		if search := r.URL.Query().Get("search"); search != "" {
			q = q.Where("name LIKE ?", "%"+search+"%")
		}
		var tokens []models.MobileAppToken
		if err := q.Order("created_at desc").Find(&tokens).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, tokens)
	}
}

type createMobileTokenReq struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	AppVersionID  uint     `json:"app_version_id"`
	Role          string   `json:"role"`
	ExpiresAt     string   `json:"expires_at"`
	MaxUsageCount *uint    `json:"max_usage_count"`
	AllowedIPs    []string `json:"allowed_ips"`
}

// CreateMobileToken mints a new mobile token. The response carries the full
// secret; it is never readable again afterwards.
func CreateMobileToken(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMobileTokenReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Name == "" {
			respondError(w, http.StatusBadRequest, "name required")
			return
		}
		switch req.Role {
		case models.TokenRoleUser, models.TokenRoleStaff, models.TokenRoleAdmin:
		case "":
			req.Role = models.TokenRoleUser
		default:
			respondError(w, http.StatusBadRequest, "unknown role")
			return
		}
		expires, err := parseTimeField(req.ExpiresAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		secret, err := tokenauth.GenerateSecret(tokenauth.KindMobile)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		sub := auth.Subject(r.Context())
		t := models.MobileAppToken{
			TokenBase: models.TokenBase{
				Token:         secret,
				Name:          req.Name,
				Description:   req.Description,
				Status:        models.TokenStatusActive,
				ExpiresAt:     expires,
				MaxUsageCount: req.MaxUsageCount,
				AllowedIPs:    req.AllowedIPs,
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			},
			AppVersionID: req.AppVersionID,
			Role:         req.Role,
		}
		if sub != "" {
			t.CreatedByID = &sub
		}
		if err := db.Create(&t).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		lg.Infow("mobile token created", "id", t.ID, "name", t.Name, "role", t.Role)
		respondStatusJSON(w, http.StatusCreated, map[string]any{
			"id":    t.ID,
			"token": secret,
		})
	}
}

func GetMobileToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t models.MobileAppToken
		err := db.Preload("AppVersion").First(&t, "id = ?", chi.URLParam(r, "id")).Error
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		respondJSON(w, t)
	}
}

type updateMobileTokenReq struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	AppVersionID  *uint    `json:"app_version_id"`
	Role          *string  `json:"role"`
	ExpiresAt     *string  `json:"expires_at"`
	MaxUsageCount *uint    `json:"max_usage_count"`
	AllowedIPs    []string `json:"allowed_ips"`
}

// UpdateMobileToken edits metadata and limits. Status and the secret have
// their own endpoints and are not writable here.
func UpdateMobileToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateMobileTokenReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var t models.MobileAppToken
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
		if req.AppVersionID != nil {
			t.AppVersionID = *req.AppVersionID
		}
		if req.Role != nil {
			switch *req.Role {
			case models.TokenRoleUser, models.TokenRoleStaff, models.TokenRoleAdmin:
				t.Role = *req.Role
			default:
				respondError(w, http.StatusBadRequest, "unknown role")
				return
			}
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
		if req.AllowedIPs != nil {
			t.AllowedIPs = req.AllowedIPs
		}
		t.UpdatedAt = time.Now()
		if err := db.Save(&t).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func DeleteMobileToken(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx := db.Delete(&models.MobileAppToken{}, "id = ?", chi.URLParam(r, "id"))
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

// TokenUsageStatsHandler serves the per-token ledger summary for either kind.
func TokenUsageStatsHandler(store *tokenauth.Store, kind tokenauth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.TokenUsageStats(r.Context(), kind, chi.URLParam(r, "id"), time.Now())
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, stats)
	}
}
