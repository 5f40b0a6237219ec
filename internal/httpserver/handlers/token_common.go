package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

var errRevokedTerminal = errors.New("token is revoked")

// applyStatus enforces the lifecycle state machine on an operator-driven
// transition. Revoked is terminal; active and inactive flip freely.
func applyStatus(current, target string) error {
	if current == models.TokenStatusRevoked {
		return errRevokedTerminal
	}
	switch target {
	case models.TokenStatusActive, models.TokenStatusInactive, models.TokenStatusRevoked:
		return nil
	default:
		return errors.New("unknown status")
	}
}

// setTokenStatus performs one transition for either token kind.
func setTokenStatus(db *gorm.DB, kind tokenauth.Kind, id, target string) error {
	var current string
	var model any
	switch kind {
	case tokenauth.KindMobile:
		model = &models.MobileAppToken{}
	case tokenauth.KindAPI:
		model = &models.APIClientToken{}
	}
	row := db.Model(model).Where("id = ?", id).Select("status")
	if err := row.Scan(&current).Error; err != nil {
		return err
	}
	if current == "" {
		return gorm.ErrRecordNotFound
	}
	if err := applyStatus(current, target); err != nil {
		return err
	}
	return db.Model(model).Where("id = ?", id).
		Updates(map[string]any{"status": target, "updated_at": time.Now()}).Error
}

func statusActionHandler(db *gorm.DB, kind tokenauth.Kind, target string) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		err := setTokenStatus(db, kind, id, target)
		switch {
		case err == nil:
			respondJSON(w, map[string]any{"status": target})
		case errors.Is(err, errRevokedTerminal):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			respondError(w, http.StatusNotFound, "not found")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

type bulkTokenActionReq struct {
	TokenIDs []string `json:"token_ids"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
}

// bulkTokenAction applies one status action (or delete) to a set of tokens.
// Revoked tokens are skipped by status updates, per the terminal-state rule.
func bulkTokenAction(db *gorm.DB, kind tokenauth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkTokenActionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.TokenIDs) == 0 {
			respondError(w, http.StatusBadRequest, "token_ids required")
			return
		}

		var model any
		if kind == tokenauth.KindMobile {
			model = &models.MobileAppToken{}
		} else {
			model = &models.APIClientToken{}
		}

		var target string
		switch req.Action {
		case "activate":
			target = models.TokenStatusActive
		case "deactivate":
			target = models.TokenStatusInactive
		case "revoke":
			target = models.TokenStatusRevoked
		case "delete":
			if kind == tokenauth.KindAPI {
				_ = db.Where("token_id IN ?", req.TokenIDs).Delete(&models.TokenModelPermission{}).Error
			}
			tx := db.Where("id IN ?", req.TokenIDs).Delete(model)
			if tx.Error != nil {
				respondError(w, http.StatusInternalServerError, tx.Error.Error())
				return
			}
			respondJSON(w, map[string]any{"action": req.Action, "affected": tx.RowsAffected, "reason": req.Reason})
			return
		default:
			respondError(w, http.StatusBadRequest, "unknown action")
			return
		}

		tx := db.Model(model).
			Where("id IN ? AND status <> ?", req.TokenIDs, models.TokenStatusRevoked).
			Updates(map[string]any{"status": target, "updated_at": time.Now()})
		if tx.Error != nil {
			respondError(w, http.StatusInternalServerError, tx.Error.Error())
			return
		}
		respondJSON(w, map[string]any{"action": req.Action, "affected": tx.RowsAffected, "reason": req.Reason})
	}
}

func regenerateHandler(store *tokenauth.Store, kind tokenauth.Kind) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		secret, err := store.RotateSecret(r.Context(), kind, id)
		if err != nil {
			if errors.Is(err, tokenauth.ErrTokenNotFound) {
				respondError(w, http.StatusNotFound, "not found")
				return
			}
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// The full secret is shown exactly once, at rotation time.
		respondJSON(w, map[string]any{"new_token": secret})
	}
}

func parseTimeField(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
