package tokenauth

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vocacore/internal/models"
)

// LogFilter narrows the audit query surface: by token, time range, status
// class (2/4/5 for 2xx/4xx/5xx) and slow-request threshold.
type LogFilter struct {
	TokenType         string
	TokenID           string
	Endpoint          string
	From              *time.Time
	To                *time.Time
	StatusClass       int
	MinResponseTimeMs int64
	Limit             int
}

// QueryLogs reads ledger rows, newest first. The ledger is append-only; this
// surface never mutates it.
func (s *Store) QueryLogs(ctx context.Context, f LogFilter) ([]models.TokenUsageLog, error) {
	q := s.db.WithContext(ctx).Model(&models.TokenUsageLog{})
	if f.TokenType != "" {
		q = q.Where("token_type = ?", f.TokenType)
	}
	if f.TokenID != "" {
		q = q.Where("token_id = ?", f.TokenID)
	}
	if f.Endpoint != "" {
		q = q.Where("endpoint LIKE ?", "%"+f.Endpoint+"%")
	}
	if f.From != nil {
		q = q.Where("timestamp >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("timestamp <= ?", *f.To)
	}
	if f.StatusClass != 0 {
		q = q.Where("status_code >= ? AND status_code < ?", f.StatusClass*100, (f.StatusClass+1)*100)
	}
	if f.MinResponseTimeMs > 0 {
		q = q.Where("response_time_ms >= ?", f.MinResponseTimeMs)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var logs []models.TokenUsageLog
	err := q.Order("timestamp desc").Limit(limit).Find(&logs).Error
	return logs, err
}

type StatusCodeCount struct {
	StatusCode int   `json:"status_code"`
	Count      int64 `json:"count"`
}

type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// UsageStats is the per-token usage summary exposed on the admin surface.
type UsageStats struct {
	TotalRequests    int64             `json:"total_requests"`
	RequestsToday    int64             `json:"requests_today"`
	RequestsThisWeek int64             `json:"requests_this_week"`
	StatusCodes      []StatusCodeCount `json:"status_codes"`
	TopEndpoints     []EndpointCount   `json:"top_endpoints"`
}

func (s *Store) TokenUsageStats(ctx context.Context, kind Kind, tokenID string, now time.Time) (UsageStats, error) {
	var stats UsageStats
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.TokenUsageLog{}).
			Where("token_type = ? AND token_id = ?", string(kind), tokenID)
	}

	if err := base().Count(&stats.TotalRequests).Error; err != nil {
		return stats, err
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := base().Where("timestamp >= ?", dayStart).Count(&stats.RequestsToday).Error; err != nil {
		return stats, err
	}
	if err := base().Where("timestamp >= ?", dayStart.AddDate(0, 0, -7)).Count(&stats.RequestsThisWeek).Error; err != nil {
		return stats, err
	}
	if err := base().Select("status_code, count(*) as count").
		Group("status_code").Order("count desc").Scan(&stats.StatusCodes).Error; err != nil {
		return stats, err
	}
	if err := base().Select("endpoint, count(*) as count").
		Group("endpoint").Order("count desc").Limit(10).Scan(&stats.TopEndpoints).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// OverviewStats is the aggregate dashboard number set.
type OverviewStats struct {
	TotalMobileTokens   int64           `json:"total_mobile_tokens"`
	ActiveMobileTokens  int64           `json:"active_mobile_tokens"`
	TotalAPITokens      int64           `json:"total_api_tokens"`
	ActiveAPITokens     int64           `json:"active_api_tokens"`
	UsageToday          int64           `json:"total_usage_today"`
	UsageThisWeek       int64           `json:"total_usage_this_week"`
	UsageThisMonth      int64           `json:"total_usage_this_month"`
	MostUsedEndpoints   []EndpointCount `json:"most_used_endpoints"`
}

func (s *Store) Overview(ctx context.Context, now time.Time) (OverviewStats, error) {
	var o OverviewStats
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.MobileAppToken{}).Count(&o.TotalMobileTokens).Error; err != nil {
		return o, err
	}
	if err := db.Model(&models.MobileAppToken{}).
		Where("status = ?", models.TokenStatusActive).Count(&o.ActiveMobileTokens).Error; err != nil {
		return o, err
	}
	if err := db.Model(&models.APIClientToken{}).Count(&o.TotalAPITokens).Error; err != nil {
		return o, err
	}
	if err := db.Model(&models.APIClientToken{}).
		Where("status = ?", models.TokenStatusActive).Count(&o.ActiveAPITokens).Error; err != nil {
		return o, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	logs := func() *gorm.DB { return db.Model(&models.TokenUsageLog{}) }
	if err := logs().Where("timestamp >= ?", dayStart).Count(&o.UsageToday).Error; err != nil {
		return o, err
	}
	if err := logs().Where("timestamp >= ?", dayStart.AddDate(0, 0, -7)).Count(&o.UsageThisWeek).Error; err != nil {
		return o, err
	}
	if err := logs().Where("timestamp >= ?", dayStart.AddDate(0, 0, -30)).Count(&o.UsageThisMonth).Error; err != nil {
		return o, err
	}
	if err := logs().Where("timestamp >= ?", dayStart.AddDate(0, 0, -7)).
		Select("endpoint, count(*) as count").
		Group("endpoint").Order("count desc").Limit(10).Scan(&o.MostUsedEndpoints).Error; err != nil {
		return o, err
	}
	return o, nil
}
