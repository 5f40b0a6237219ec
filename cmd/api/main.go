package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vocacore/internal/auth"
	"vocacore/internal/httpserver"
	"vocacore/internal/logger"
	"vocacore/internal/models"
	"vocacore/internal/obs"
)

func main() {
	_ = godotenv.Load()
	lg := logger.New()
	defer lg.Sync()

	db, err := openDB(lg)
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Session{},
		&models.AppVersion{}, &models.Language{}, &models.Word{},
		&models.MobileAppToken{}, &models.APIClientToken{},
		&models.TokenModelPermission{}, &models.TokenUsageLog{},
	); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	seedDefaultAdmin(db, lg)
	obs.Init()

	router := httpserver.NewRouter(db, lg)
	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	lg.Infow("listening", "port", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}

// openDB connects to postgres when DATABASE_URL is set, otherwise falls back
// to a local sqlite file for development.
func openDB(lg *zap.SugaredLogger) (*gorm.DB, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "vocacore.db"
	}
	lg.Infow("DATABASE_URL empty, using sqlite", "path", path)
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

func seedDefaultAdmin(db *gorm.DB, lg *zap.SugaredLogger) {
	for _, name := range []string{"Administrator", "User"} {
		_ = db.Where(models.Role{Name: name}).FirstOrCreate(&models.Role{Name: name}).Error
	}
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@vocacore.local"
	}
	email = strings.ToLower(email)
	var count int64
	db.Model(&models.User{}).Where("LOWER(email) = ?", email).Count(&count)
	if count > 0 {
		return
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "changeme"
	}
	hash, _ := auth.HashPassword(password)
	u := models.User{Email: email, PasswordHash: hash, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := db.Create(&u).Error; err == nil {
		var adminRole models.Role
		if err := db.First(&adminRole, "name = ?", "Administrator").Error; err == nil {
			_ = db.Model(&u).Association("Roles").Append(&adminRole)
		}
	}
	lg.Infow("seeded default admin", "email", email)
}
