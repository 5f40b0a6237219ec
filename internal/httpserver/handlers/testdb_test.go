package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vocacore/internal/models"
	"vocacore/internal/tokenauth"
)

func newTestStore(t *testing.T) *tokenauth.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Session{},
		&models.AppVersion{}, &models.MobileAppToken{}, &models.APIClientToken{},
		&models.TokenModelPermission{}, &models.TokenUsageLog{},
	))
	return tokenauth.NewStore(db)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// newTokenAdminRouter mounts both token admin surfaces without the session
// middleware, which has its own tests.
func newTokenAdminRouter(store *tokenauth.Store) chi.Router {
	r := chi.NewRouter()
	r.Route("/mobile", func(tr chi.Router) {
		MountMobileTokenRoutes(tr, store, testLogger())
	})
	r.Route("/api", func(tr chi.Router) {
		MountAPITokenRoutes(tr, store, testLogger())
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}
