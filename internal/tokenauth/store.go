package tokenauth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"vocacore/internal/models"
)

// Store is the persistence boundary of the pipeline. All token reads, the
// atomic usage increment and every ledger access go through here.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) FindMobileBySecret(ctx context.Context, secret string) (*models.MobileAppToken, error) {
	var t models.MobileAppToken
	err := s.db.WithContext(ctx).Preload("AppVersion").First(&t, "token = ?", secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) FindAPIBySecret(ctx context.Context, secret string) (*models.APIClientToken, error) {
	var t models.APIClientToken
	err := s.db.WithContext(ctx).First(&t, "token = ?", secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// PermissionDecision is the result of a matrix lookup. A missing row is a
// real decision (no access), not an absent value, so callers cannot confuse
// "no rule" with "allowed".
type PermissionDecision struct {
	entry *models.TokenModelPermission
}

func NoAccess() PermissionDecision { return PermissionDecision{} }

func (d PermissionDecision) Granted() bool { return d.entry != nil }

// Entry returns the matched matrix row, or nil when access was denied.
func (d PermissionDecision) Entry() *models.TokenModelPermission { return d.entry }

func (d PermissionDecision) Allows(a Action) bool {
	if d.entry == nil {
		return false
	}
	switch a {
	case ActionList:
		return d.entry.CanList
	case ActionRead:
		return d.entry.CanRead
	case ActionCreate:
		return d.entry.CanCreate
	case ActionUpdate:
		return d.entry.CanUpdate
	case ActionDelete:
		return d.entry.CanDelete
	case ActionBulkCreate:
		return d.entry.CanBulkCreate
	case ActionBulkUpdate:
		return d.entry.CanBulkUpdate
	case ActionBulkDelete:
		return d.entry.CanBulkDelete
	default:
		return false
	}
}

// Permission looks up the matrix row for (token, model). Default-deny: a
// missing row yields the no-access decision and a nil error.
func (s *Store) Permission(ctx context.Context, tokenID, modelName string) (PermissionDecision, error) {
	var p models.TokenModelPermission
	err := s.db.WithContext(ctx).
		First(&p, "token_id = ? AND model_name = ?", tokenID, modelName).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NoAccess(), nil
		}
		return NoAccess(), err
	}
	return PermissionDecision{entry: &p}, nil
}

// IncrementUsage bumps usage_count and last_used_at in a single UPDATE with a
// SQL-side expression, so concurrent requests against the same token never
// lose updates.
func (s *Store) IncrementUsage(ctx context.Context, kind Kind, tokenID string, now time.Time) error {
	updates := map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": now,
	}
	var tx *gorm.DB
	switch kind {
	case KindMobile:
		tx = s.db.WithContext(ctx).Model(&models.MobileAppToken{}).Where("id = ?", tokenID).Updates(updates)
	case KindAPI:
		tx = s.db.WithContext(ctx).Model(&models.APIClientToken{}).Where("id = ?", tokenID).Updates(updates)
	default:
		return ErrTokenNotFound
	}
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RotateSecret replaces the stored secret in one UPDATE; the old value stops
// authenticating the moment the statement commits.
func (s *Store) RotateSecret(ctx context.Context, kind Kind, tokenID string) (string, error) {
	secret, err := GenerateSecret(kind)
	if err != nil {
		return "", err
	}
	updates := map[string]interface{}{
		"token":      secret,
		"updated_at": time.Now(),
	}
	var tx *gorm.DB
	switch kind {
	case KindMobile:
		tx = s.db.WithContext(ctx).Model(&models.MobileAppToken{}).Where("id = ?", tokenID).Updates(updates)
	case KindAPI:
		tx = s.db.WithContext(ctx).Model(&models.APIClientToken{}).Where("id = ?", tokenID).Updates(updates)
	default:
		return "", ErrTokenNotFound
	}
	if tx.Error != nil {
		return "", tx.Error
	}
	if tx.RowsAffected == 0 {
		return "", ErrTokenNotFound
	}
	return secret, nil
}

// AppendLog writes one ledger row. Rows are never updated or deleted here.
func (s *Store) AppendLog(ctx context.Context, entry *models.TokenUsageLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// CountSince counts ledger rows for a token newer than the cutoff. Rows that
// were themselves rate-limit rejections are excluded so a throttled client
// does not keep its own window full.
func (s *Store) CountSince(ctx context.Context, kind Kind, tokenID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.TokenUsageLog{}).
		Where("token_type = ? AND token_id = ? AND timestamp >= ? AND status_code <> ?",
			string(kind), tokenID, since, 429).
		Count(&n).Error
	return n, err
}

// OldestSince returns the timestamp of the oldest counted row in the window,
// used to compute when capacity comes back.
func (s *Store) OldestSince(ctx context.Context, kind Kind, tokenID string, since time.Time) (*time.Time, error) {
	var entry models.TokenUsageLog
	err := s.db.WithContext(ctx).
		Where("token_type = ? AND token_id = ? AND timestamp >= ? AND status_code <> ?",
			string(kind), tokenID, since, 429).
		Order("timestamp asc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry.Timestamp, nil
}
