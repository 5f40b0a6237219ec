// Package resource mounts the generic model-backed CRUD surface consumed by
// token-authenticated clients. Every route is registered together with the
// capability it demands, so the verb→permission mapping is resolved once at
// wiring time.
package resource

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

// Resource describes one mounted data model. Name must be a member of the
// permission matrix's closed model set.
type Resource struct {
	Name  string
	Table string
	Path  string
}

// Mount registers the CRUD and bulk routes for one resource under /{Path}.
func Mount(r chi.Router, db *gorm.DB, store *tokenauth.Store, lg *zap.SugaredLogger, res Resource) {
	req := func(a tokenauth.Action) func(http.Handler) http.Handler {
		return tokenauth.Require(store, lg, res.Name, a)
	}
	r.Route("/"+res.Path, func(rr chi.Router) {
		rr.Use(requireTokenIdentity)

		rr.With(req(tokenauth.ActionList)).Get("/", list(db, res))
		rr.With(req(tokenauth.ActionCreate), requireWriteRole).Post("/", create(db, res))

		rr.With(req(tokenauth.ActionBulkCreate), requireWriteRole).Post("/bulk", bulkCreate(db, res))
		rr.With(req(tokenauth.ActionBulkUpdate), requireWriteRole).Put("/bulk", bulkUpdate(db, res))
		rr.With(req(tokenauth.ActionBulkDelete), requireWriteRole).Delete("/bulk", bulkDelete(db, res))

		rr.With(req(tokenauth.ActionRead)).Get("/{id}", retrieve(db, res))
		rr.With(req(tokenauth.ActionUpdate), requireWriteRole).Put("/{id}", update(db, res))
		rr.With(req(tokenauth.ActionUpdate), requireWriteRole).Patch("/{id}", update(db, res))
		rr.With(req(tokenauth.ActionDelete), requireWriteRole).Delete("/{id}", remove(db, res))
	})
}

// requireTokenIdentity rejects requests that reached the CRUD surface without
// a token identity. Session-authenticated operators use the admin surface
// instead.
func requireTokenIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenauth.IdentityFromContext(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireWriteRole applies the coarse role carried by mobile tokens: plain
// user tokens are read-only on this surface. API tokens are governed by the
// permission matrix instead.
func requireWriteRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := tokenauth.IdentityFromContext(r.Context())
		if id != nil && id.Kind == tokenauth.KindMobile &&
			!tokenauth.HasTokenRole(r.Context(), models.TokenRoleStaff) {
			id.Reject()
			respondError(w, http.StatusForbidden, "write access requires staff role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func permissionEntry(r *http.Request) *models.TokenModelPermission {
	if id := tokenauth.IdentityFromContext(r.Context()); id != nil {
		return id.Permission
	}
	return nil
}

func list(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)
		var rows []map[string]any
		if err := db.Table(res.Table).Order("id desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, tokenauth.RedactRows(rows, permissionEntry(r)))
	}
}

func retrieve(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row := map[string]any{}
		err := db.Table(res.Table).Where("id = ?", chi.URLParam(r, "id")).Take(&row).Error
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		tokenauth.StripRestricted(row, permissionEntry(r))
		respondJSON(w, row)
	}
}

func create(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sanitizeWrite(payload, permissionEntry(r), true)
		if err := db.Table(res.Table).Create(payload).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStatusJSON(w, http.StatusCreated, map[string]any{"created": true})
	}
}

func update(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sanitizeWrite(payload, permissionEntry(r), false)
		// After stripping, only the updated_at stamp may be left.
		if len(payload) <= 1 {
			respondError(w, http.StatusBadRequest, "no writable fields in payload")
			return
		}
		tx := db.Table(res.Table).Where("id = ?", chi.URLParam(r, "id")).Updates(payload)
		if tx.Error != nil {
			respondError(w, http.StatusInternalServerError, tx.Error.Error())
			return
		}
		if tx.RowsAffected == 0 {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func remove(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx := db.Exec("DELETE FROM "+res.Table+" WHERE id = ?", chi.URLParam(r, "id"))
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

func bulkCreate(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := decodeArray(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(items) == 0 {
			respondError(w, http.StatusBadRequest, "empty payload")
			return
		}
		entry := permissionEntry(r)
		for _, item := range items {
			sanitizeWrite(item, entry, true)
		}
		if err := db.Table(res.Table).Create(items).Error; err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStatusJSON(w, http.StatusCreated, map[string]any{"created": len(items)})
	}
}

type bulkUpdateReq struct {
	IDs     []int64        `json:"ids"`
	Updates map[string]any `json:"updates"`
}

func bulkUpdate(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkUpdateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.IDs) == 0 || len(req.Updates) == 0 {
			respondError(w, http.StatusBadRequest, "ids and updates required")
			return
		}
		sanitizeWrite(req.Updates, permissionEntry(r), false)
		if len(req.Updates) <= 1 {
			respondError(w, http.StatusBadRequest, "no writable fields in payload")
			return
		}
		tx := db.Table(res.Table).Where("id IN ?", req.IDs).Updates(req.Updates)
		if tx.Error != nil {
			respondError(w, http.StatusInternalServerError, tx.Error.Error())
			return
		}
		respondJSON(w, map[string]any{"updated": tx.RowsAffected})
	}
}

func bulkDelete(db *gorm.DB, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.IDs) == 0 {
			respondError(w, http.StatusBadRequest, "ids required")
			return
		}
		tx := db.Exec("DELETE FROM "+res.Table+" WHERE id IN ?", req.IDs)
		if tx.Error != nil {
			respondError(w, http.StatusInternalServerError, tx.Error.Error())
			return
		}
		respondJSON(w, map[string]any{"deleted": tx.RowsAffected})
	}
}

// sanitizeWrite strips restricted and readonly fields per the matched
// permission entry, drops server-owned columns, and stamps timestamps.
func sanitizeWrite(payload map[string]any, entry *models.TokenModelPermission, creating bool) {
	tokenauth.StripForWrite(payload, entry)
	delete(payload, "id")
	delete(payload, "created_at")
	delete(payload, "updated_at")
	now := time.Now()
	if creating {
		payload["created_at"] = now
	}
	payload["updated_at"] = now
}

func decodeObject(r *http.Request) (map[string]any, error) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeArray(r *http.Request) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositive(v); err == nil && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parsePositive(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondStatusJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
