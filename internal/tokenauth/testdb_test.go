package tokenauth

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vocacore/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.AppVersion{}, &models.MobileAppToken{}, &models.APIClientToken{},
		&models.TokenModelPermission{}, &models.TokenUsageLog{},
		&models.Language{}, &models.Word{},
	))
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t))
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func seedMobileToken(t *testing.T, db *gorm.DB, mutate func(*models.MobileAppToken)) (*models.MobileAppToken, string) {
	t.Helper()
	secret, err := GenerateSecret(KindMobile)
	require.NoError(t, err)
	tok := &models.MobileAppToken{
		TokenBase: models.TokenBase{
			Token:  secret,
			Name:   "test mobile",
			Status: models.TokenStatusActive,
		},
		Role: models.TokenRoleUser,
	}
	if mutate != nil {
		mutate(tok)
	}
	require.NoError(t, db.Create(tok).Error)
	return tok, secret
}

func seedAPIToken(t *testing.T, db *gorm.DB, mutate func(*models.APIClientToken)) (*models.APIClientToken, string) {
	t.Helper()
	secret, err := GenerateSecret(KindAPI)
	require.NoError(t, err)
	tok := &models.APIClientToken{
		TokenBase: models.TokenBase{
			Token:  secret,
			Name:   "test api",
			Status: models.TokenStatusActive,
		},
		ClientName:       "acme",
		ClientEmail:      "ops@acme.test",
		RateLimitPerHour: 1000,
		RateLimitPerDay:  10000,
	}
	if mutate != nil {
		mutate(tok)
	}
	require.NoError(t, db.Create(tok).Error)
	return tok, secret
}

func seedLog(t *testing.T, db *gorm.DB, kind Kind, tokenID string, status int, ts time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.TokenUsageLog{
		TokenType:  string(kind),
		TokenID:    tokenID,
		TokenName:  "seeded",
		Endpoint:   "/api/cruds/words",
		Method:     "GET",
		StatusCode: status,
		Timestamp:  ts,
	}).Error)
}
