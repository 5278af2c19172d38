package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/larder-app/larder/internal/backup"
	"github.com/larder-app/larder/internal/email"
	"github.com/larder-app/larder/internal/handler"
	"github.com/larder-app/larder/internal/middleware"
	"github.com/larder-app/larder/internal/push"
	"github.com/larder-app/larder/internal/reconcile"
	"github.com/larder-app/larder/internal/store"
	ws "github.com/larder-app/larder/internal/websocket"
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	authH          *handler.AuthHandler
	householdH     *handler.HouseholdHandler
	categoryH      *handler.CategoryHandler
	inventoryH     *handler.InventoryHandler
	shoppingListH  *handler.ShoppingListHandler
	pushH          *handler.PushHandler
	backupH        *handler.BackupHandler
	sessionStore   *store.SessionStore
	tokenStore     *store.TokenStore
	householdStore *store.HouseholdStore
	rateLimiter    *middleware.RateLimiter
	backupManager  *backup.Manager
	pushScheduler  *push.Scheduler
	logger         *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, secureCookies bool, backupCfg backup.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	tokenStore := store.NewTokenStore(db)
	householdStore := store.NewHouseholdStore(db)
	categoryStore := store.NewCategoryStore(db)
	inventoryStore := store.NewInventoryStore(db)
	shoppingListStore := store.NewShoppingListStore(db)
	pushStore := store.NewPushStore(db)

	engine := reconcile.NewEngine(db, logger.With("component", "reconcile"))

	backupMgr := backup.NewManager(backupCfg, db, logger.With("component", "backup"))

	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg)
		pushSched = push.NewScheduler(pushSvc, pushStore, inventoryStore, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:             db,
		hub:            hub,
		authH:          handler.NewAuthHandler(userStore, sessionStore, tokenStore, householdStore, emailClient, secureCookies, logger.With("component", "auth")),
		householdH:     handler.NewHouseholdHandler(householdStore, categoryStore, userStore, emailClient, logger.With("component", "household")),
		categoryH:      handler.NewCategoryHandler(categoryStore, logger.With("component", "category")),
		inventoryH:     handler.NewInventoryHandler(inventoryStore, engine, hub, logger.With("component", "inventory")),
		shoppingListH:  handler.NewShoppingListHandler(shoppingListStore, engine, hub, logger.With("component", "shopping_list")),
		pushH:          pushH,
		backupH:        handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		sessionStore:   sessionStore,
		tokenStore:     tokenStore,
		householdStore: householdStore,
		rateLimiter:    middleware.NewRateLimiter(),
		backupManager:  backupMgr,
		pushScheduler:  pushSched,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// TokenStore returns the auth token store for cleanup tasks.
func (s *Server) TokenStore() *store.TokenStore {
	return s.tokenStore
}

// HouseholdStore returns the household store for cleanup tasks.
func (s *Server) HouseholdStore() *store.HouseholdStore {
	return s.householdStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the push notification scheduler, nil when push is not
// configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /auth/verify-email", s.authH.VerifyEmail)
	outerMux.HandleFunc("POST /auth/request-password-reset", s.rateLimitedHandler(s.authH.RequestPasswordReset))
	outerMux.HandleFunc("POST /auth/reset-password", s.rateLimitedHandler(s.authH.ResetPassword))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Authenticated routes that work without a household
	authedMux := http.NewServeMux()
	authedMux.HandleFunc("POST /auth/logout", s.authH.Logout)
	authedMux.HandleFunc("GET /auth/me", s.authH.Me)
	authedMux.HandleFunc("POST /api/households", s.householdH.Create)
	authedMux.HandleFunc("POST /api/households/join", s.householdH.Join)

	// Routes that require household membership
	householdMux := http.NewServeMux()
	s.registerHouseholdRoutes(householdMux)
	authedMux.Handle("/", middleware.RequireHousehold(householdMux))

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(authedMux))

	h := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerHouseholdRoutes(mux *http.ServeMux) {
	// Household management
	mux.HandleFunc("GET /api/households/current", s.householdH.Get)
	mux.HandleFunc("PUT /api/households/current", s.householdH.Update)
	mux.HandleFunc("DELETE /api/households/current", s.householdH.Delete)
	mux.HandleFunc("GET /api/households/members", s.householdH.ListMembers)
	mux.HandleFunc("DELETE /api/households/members/{id}", s.householdH.RemoveMember)
	mux.HandleFunc("GET /api/households/invite", s.householdH.GetInvite)
	mux.HandleFunc("POST /api/households/invite/send", s.householdH.SendInvite)

	// Categories
	mux.HandleFunc("GET /api/categories", s.categoryH.List)
	mux.HandleFunc("POST /api/categories", s.categoryH.Create)
	mux.HandleFunc("PUT /api/categories/{id}", s.categoryH.Update)
	mux.HandleFunc("DELETE /api/categories/{id}", s.categoryH.Delete)

	// Inventory
	mux.HandleFunc("GET /api/inventory", s.inventoryH.List)
	mux.HandleFunc("POST /api/inventory", s.inventoryH.Create)
	mux.HandleFunc("GET /api/inventory/low-stock", s.inventoryH.ListLowStock)
	mux.HandleFunc("GET /api/inventory/expiring", s.inventoryH.ListExpiringSoon)
	mux.HandleFunc("GET /api/inventory/{id}", s.inventoryH.Get)
	mux.HandleFunc("PUT /api/inventory/{id}", s.inventoryH.Update)
	mux.HandleFunc("DELETE /api/inventory/{id}", s.inventoryH.Delete)
	mux.HandleFunc("POST /api/inventory/{id}/add-to-shopping-list", s.inventoryH.AddToShoppingList)

	// Shopping list
	mux.HandleFunc("GET /api/shopping-list", s.shoppingListH.List)
	mux.HandleFunc("POST /api/shopping-list", s.shoppingListH.Create)
	mux.HandleFunc("GET /api/shopping-list/{id}", s.shoppingListH.Get)
	mux.HandleFunc("PUT /api/shopping-list/{id}", s.shoppingListH.Update)
	mux.HandleFunc("DELETE /api/shopping-list/{id}", s.shoppingListH.Delete)
	mux.HandleFunc("POST /api/shopping-list/{id}/bought", s.shoppingListH.MarkBought)
	mux.HandleFunc("POST /api/shopping-list/{id}/added-to-inventory", s.shoppingListH.MarkAddedToInventory)

	// Backups
	mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
	mux.HandleFunc("POST /api/backup/run", s.backupH.RunNow)

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
		mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
	}

	// Real-time sync
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
