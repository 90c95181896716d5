package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/config"
	adminHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/admin"
	authHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/auth"
	geoHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/geo"
	"github.com/enesyuzak/locat-web-tracker/internal/middleware"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
)

// Handlers groups everything the router mounts. Built in cmd/server.
type Handlers struct {
	Admin     *adminHandlers.AdminHandler
	Auth      *authHandlers.AuthHandler
	Geo       *geoHandlers.GeoTrackHandler
	Locations *geoHandlers.LocationsHandler
}

// Setup returns the configured router.
func Setup(cfg *config.Config, h Handlers, logger *zap.Logger) *chi.Mux {
	jwtAuth := jwtauth.New("HS256", []byte(cfg.JwtSecret), nil)

	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chiMiddleware.Recoverer)
	// ?jwt= is for browsers opening the websocket
	router.Use(jwtauth.Verify(jwtAuth, jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))
	router.Use(middleware.AddUserIDToContext())

	// Public
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Post("/api/auth/login", h.Auth.LoginHandler)
	router.Post("/api/auth/refresh", h.Auth.RefreshTokenHandler)
	router.Post("/api/auth/password/forgot", h.Auth.ForgotPasswordHandler)
	router.Post("/api/auth/password/reset", h.Auth.ResetPasswordHandler)

	router.Group(func(r chi.Router) {
		r.Use(jwtauth.Authenticator(jwtAuth))

		r.Post("/api/geo", h.Geo.PostGeo)

		r.Post("/api/logout", h.Auth.LogoutHandler)
		r.Get("/api/profile", h.Auth.GetProfile)
		r.Patch("/api/profile", h.Auth.UpdateProfile)
		r.Post("/api/profile/password", h.Auth.ChangePassword)

		// Dashboard, closed to device accounts
		r.Group(func(dr chi.Router) {
			dr.Use(middleware.RoleRequired(models.RoleAdmin, models.RoleViewer))

			dr.Get("/api/locations", h.Locations.List)
			dr.Post("/api/locations/refresh", h.Locations.Refresh)
			dr.Get("/api/locations/export.xlsx", h.Locations.ExportXLSX)
			dr.Get("/api/locations/{userID}/history", h.Geo.GetHistory)
			dr.Get("/api/locations/{userID}/last", h.Geo.GetLast)
			dr.Get("/ws", h.Locations.ServeWS)
		})

		// Admin only
		r.Group(func(ar chi.Router) {
			ar.Use(middleware.AdminOnly())

			ar.Post("/api/locations/request", h.Locations.RequestFresh)
			ar.Post("/api/locations/export/sheets", h.Locations.ExportSheets)

			ar.Get("/api/admin/users", h.Admin.ListUsers)
			ar.Post("/api/admin/users", h.Admin.CreateUser)
			ar.Patch("/api/admin/users/{userID}/role", h.Admin.UpdateUserRole)
			ar.Delete("/api/admin/users/{userID}", h.Admin.DeleteUser)
		})
	})

	return router
}
