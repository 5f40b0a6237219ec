package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vocacore/internal/auth"
	"vocacore/internal/httpserver/handlers"
	"vocacore/internal/obs"
	"vocacore/internal/resource"
	"vocacore/internal/tokenauth"
)

// NewRouter assembles the three surfaces: the token-authenticated CRUD API,
// the service-to-service validate endpoint and the JWT-protected admin plane.
func NewRouter(db *gorm.DB, lg *zap.SugaredLogger) http.Handler {
	store := tokenauth.NewStore(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Post("/api/auth/login", handlers.Login(db, lg))
	r.Post("/api/tokens/validate", handlers.ValidateToken(store, lg))

	// Token-authenticated data surface. Authentication also owns metering, so
	// every request through here lands in the usage ledger.
	r.Route("/api/cruds", func(cr chi.Router) {
		cr.Use(tokenauth.Authenticate(store, lg))
		cr.Use(tokenauth.RateLimit(store, lg))
		resource.Mount(cr, db, store, lg, resource.Resource{Name: "Word", Table: "words", Path: "words"})
		resource.Mount(cr, db, store, lg, resource.Resource{Name: "Language", Table: "languages", Path: "languages"})
	})

	// Operator plane, session-JWT protected.
	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(db))
		protected.Get("/api/me", handlers.Me(db, lg))
		protected.Post("/api/auth/logout", handlers.Logout(db))
		protected.Post("/api/auth/password", handlers.ChangePassword(db, lg))

		protected.Route("/api/admin/tokens/mobile", func(tr chi.Router) {
			handlers.MountMobileTokenRoutes(tr, store, lg)
		})
		protected.Route("/api/admin/tokens/api", func(tr chi.Router) {
			handlers.MountAPITokenRoutes(tr, store, lg)
		})
		protected.Get("/api/admin/tokens/stats", handlers.TokenOverviewHandler(store))
		protected.Get("/api/admin/usage-logs", handlers.ListUsageLogs(store))

		protected.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRole("Administrator"))
			admin.Get("/api/admin/users", handlers.ListUsers(db, lg))
			admin.Post("/api/admin/users", handlers.CreateUser(db, lg))
			admin.Patch("/api/admin/users/{id}", handlers.UpdateUser(db, lg))
			admin.Delete("/api/admin/users/{id}", handlers.DeleteUser(db, lg))
		})
	})

	return r
}
