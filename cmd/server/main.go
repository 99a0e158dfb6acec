package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"exam-portal/internal/auth"
	"exam-portal/internal/backend"
	"exam-portal/internal/config"
	"exam-portal/internal/httpx"
	"exam-portal/internal/logger"
	"exam-portal/internal/mcq"
	"exam-portal/internal/models"
	"exam-portal/internal/templates"
	"exam-portal/pkg/cache"
	"exam-portal/pkg/database"
	"exam-portal/pkg/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logg.Sync()

	if err := run(cfg, logg); err != nil {
		logg.Fatal("server stopped", "error", err)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(&cfg.DB)
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	if err := db.AutoMigrate(&models.User{}, &models.Attempt{}); err != nil {
		return errors.Wrap(err, "migrate database")
	}

	// Initialize Redis cache
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logg.Warn("redis unreachable, question cache and leaderboard degraded", "addr", cfg.RedisAddr, "error", err)
	}

	backendClient := backend.NewClient(backend.Options{
		BaseURL:            cfg.Backend.BaseURL,
		Token:              cfg.Backend.Token,
		Timeout:            cfg.Backend.Timeout,
		TemplatesFetchPath: cfg.Backend.TemplatesFetchPath,
		TemplatesSavePath:  cfg.Backend.TemplatesSavePath,
	}, logg)

	// Initialize services
	authService := auth.NewService(auth.NewRepository(db), cfg.JWTSecret, cfg.TokenTTL, logg)
	if cfg.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return errors.Wrap(err, "bootstrap admin")
		}
	}

	var mcqService *mcq.Service
	wsHub := websocket.NewHub(func(r *http.Request, room string) error {
		claims, err := authService.ParseToken(r.URL.Query().Get("token"))
		if err != nil {
			return auth.ErrInvalidToken
		}
		if !mcqService.Owns(room, claims.UserID) {
			return mcq.ErrSessionNotFound
		}
		return nil
	}, cfg.AllowedOrigins, logg)

	mcqService = mcq.NewService(backendClient, redisCache, mcq.NewRepository(db), wsHub, mcq.Options{
		PathPrefix:  cfg.TestPathPrefix,
		ReturnTo:    cfg.StudyListURL,
		Clock:       clock.New(),
		IdleTimeout: cfg.SessionIdleTimeout,
		Retention:   cfg.SessionRetention,
	}, logg)
	defer mcqService.Shutdown()
	templateService := templates.NewService(backendClient, clock.New(), logg)

	// Setup router
	router := mux.NewRouter()
	router.Use(httpx.RequestLogger(logg))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	auth.NewHandler(authService).Register(api)

	// Test routes - JWT required
	secured := api.NewRoute().Subrouter()
	secured.Use(auth.JWTMiddleware(authService))
	mcq.NewHandler(mcqService).Register(secured)

	// Template editor - admins only
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(auth.JWTMiddleware(authService), auth.RequireRole(models.RoleAdmin))
	templates.NewHandler(templateService).Register(admin)

	// WebSocket endpoint
	router.HandleFunc("/ws/sessions/{sessionID}", wsHub.HandleWebSocket)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := newServer(cfg, corsMiddleware.Handler(router))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		mcqService.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logg.Info("server starting", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logg.Warn("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logg.Info("server shutdown gracefully")
	return nil
}

// newServer sizes the write timeout past the backend timeout; confirm and save block on the backend.
func newServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 15*time.Second,
	}
}
