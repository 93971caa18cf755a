package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/najdeno/internal/classifier"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/matching"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/photos"
)

// MatchTrigger starts matching runs. *matching.Trigger satisfies it.
type MatchTrigger interface {
	Fire(kind model.ItemKind, itemID string)
	Run(ctx context.Context, kind model.ItemKind, itemID string) (*matching.Result, error)
}

// Deps holds everything the handlers need.
type Deps struct {
	DB                *sql.DB
	JWTSecret         string
	TokenTTL          time.Duration
	AllowRegistration bool
	Trigger           MatchTrigger
	Classifier        classifier.Classifier
	Photos            photos.Store
	Imaging           imaging.Options
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret, TokenTTL: d.TokenTTL, AllowRegistration: d.AllowRegistration}
	usersHandler := &UsersHandler{DB: d.DB}
	itemsHandler := &ItemsHandler{DB: d.DB, Trigger: d.Trigger, Photos: d.Photos, Imaging: d.Imaging}
	matchHandler := &MatchHandler{DB: d.DB, Trigger: d.Trigger, Classifier: d.Classifier}
	notificationsHandler := &NotificationsHandler{DB: d.DB}
	metaHandler := &MetaHandler{DB: d.DB}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/meta", metaHandler.Meta)
	mux.HandleFunc("GET /api/returned", metaHandler.Returned)
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.HandleFunc("GET /api/items/{id}/image", itemsHandler.GetImage)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: reporters edit their own, staff edit any.
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("POST /api/items/{id}/conclude", authMW(http.HandlerFunc(itemsHandler.Conclude)))
	mux.Handle("PUT /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.UploadImage)))
	mux.Handle("GET /api/items/{id}/matches", authMW(http.HandlerFunc(matchHandler.ItemMatches)))
	mux.Handle("POST /api/items/purge", authMW(requireAdmin(http.HandlerFunc(itemsHandler.Purge))))

	// Matching.
	mux.Handle("POST /api/match", authMW(http.HandlerFunc(matchHandler.Match)))
	mux.Handle("POST /api/classify", authMW(http.HandlerFunc(matchHandler.Classify)))
	mux.Handle("GET /api/matches", authMW(http.HandlerFunc(matchHandler.List)))
	mux.Handle("GET /api/matches/{id}", authMW(http.HandlerFunc(matchHandler.Get)))
	mux.Handle("POST /api/matches/{id}/confirm", authMW(http.HandlerFunc(matchHandler.Confirm)))
	mux.Handle("POST /api/matches/{id}/reject", authMW(http.HandlerFunc(matchHandler.Reject)))

	// Notifications.
	mux.Handle("GET /api/notifications", authMW(http.HandlerFunc(notificationsHandler.List)))
	mux.Handle("POST /api/notifications/{id}/read", authMW(http.HandlerFunc(notificationsHandler.MarkRead)))

	return CORSMiddleware(mux)
}
