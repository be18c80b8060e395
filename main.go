package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"main/authclient"
	"main/config"
	"main/handler"
	"main/middleware"
	"main/services"
	"main/storage"
	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && os.Getenv("GO_ENV") != "test" {
		log.Printf("No .env file loaded: %v", err)
	}

	utils.InitValidator()
}

// openBackend connects the configured shared medium. When it is unreachable
// the agent degrades to in-memory storage and keeps running single-instance.
func openBackend(storageCfg config.StorageConfig, namespace string) storage.Backend {
	switch storageCfg.Backend {
	case "redis":
		backend, err := storage.NewRedisBackend(storageCfg.RedisURL, namespace)
		if err == nil {
			return backend
		}
		log.Printf("Warning: redis unavailable, coordination degraded to in-memory: %v", err)
	case "mongo":
		backend, err := storage.NewMongoBackend(config.LoadDatabaseConfig(), namespace)
		if err == nil {
			return backend
		}
		log.Printf("Warning: mongodb unavailable, coordination degraded to in-memory: %v", err)
	case "memory":
		log.Printf("Using in-memory storage, cross-instance coordination disabled")
	default:
		log.Printf("Warning: unknown storage backend %q, using in-memory", storageCfg.Backend)
	}
	return storage.NewMemoryBackend()
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sessioncoord", "auth_token")
}

func setupRouter(svc *usecase.AuthSessionService, auth *handler.EmbeddedAuth,
	blacklist *services.TokenBlacklist) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	status := router.Group("/status")
	{
		status.GET("/health", func(c *gin.Context) {
			handler.HealthStatusHandler(c, svc)
		})
		status.GET("/tabs", func(c *gin.Context) {
			handler.TabsHandler(c, svc)
		})
		status.GET("/session", func(c *gin.Context) {
			handler.SessionStatusHandler(c, svc)
		})
	}

	if auth != nil {
		public := router.Group("/api/auth")
		{
			public.POST("/login", func(c *gin.Context) {
				handler.LoginHandler(c, auth)
			})
			public.POST("/token/refresh", func(c *gin.Context) {
				handler.RefreshHandler(c, auth)
			})
		}

		protected := router.Group("/api/auth")
		protected.Use(middleware.AuthMiddleware(blacklist))
		{
			protected.POST("/logout", func(c *gin.Context) {
				handler.LogoutHandler(c, auth)
			})
			protected.GET("/user", func(c *gin.Context) {
				handler.UserHandler(c, auth)
			})
			protected.GET("/session/validate", handler.ValidateSessionHandler)
			protected.POST("/session/extend", handler.ExtendSessionHandler)
		}
	}

	return router
}

func main() {
	serverCfg := config.LoadServerConfig()
	coordCfg := config.LoadCoordinatorConfig()
	storageCfg := config.LoadStorageConfig()
	apiCfg := config.LoadAuthAPIConfig()

	tabID := uuid.New().String()
	log.Printf("Starting session coordination agent, instance %s", tabID)

	backend := openBackend(storageCfg, coordCfg.Namespace)
	defer backend.Close()

	store := services.NewSessionStore(backend, coordCfg.Namespace, tabID)
	registry := services.NewTabRegistry(backend, coordCfg, tabID)
	locks := services.NewLockCoordinator(backend, coordCfg, tabID)
	tokens := services.NewLocalTokenStore(utils.GetEnvAsString("AUTH_TOKEN_FILE", defaultTokenPath()))
	client := authclient.NewClient(apiCfg)

	svc := usecase.NewAuthSessionService(client, store, registry, locks, tokens, apiCfg, coordCfg)
	svc.OnLoggedOut = func(reason string) {
		log.Printf("Session ended (%s)", reason)
	}
	defer svc.Dispose()

	var embedded *handler.EmbeddedAuth
	var blacklist *services.TokenBlacklist
	if serverCfg.AuthEmbedded {
		utils.InitJWT()
		blacklist = services.NewTokenBlacklist(backend, coordCfg.Namespace)
		var err error
		embedded, err = handler.NewEmbeddedAuth(blacklist)
		if err != nil {
			log.Fatalf("Failed to start embedded auth backend: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if resumed, err := svc.Resume(ctx); err != nil {
		log.Printf("Warning: could not resume previous session: %v", err)
	} else if resumed {
		log.Printf("Resumed previous session")
	}
	cancel()

	// Optional unattended login for headless deployments
	if utils.GetEnvAsBool("AUTH_AUTO_LOGIN", false) && !svc.IsAuthenticated() {
		creds := authclient.Credentials{
			Email:         os.Getenv("AUTH_EMAIL"),
			Password:      os.Getenv("AUTH_PASSWORD"),
			TwoFactorCode: os.Getenv("AUTH_TWO_FACTOR_CODE"),
		}
		loginCtx, loginCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := svc.Login(loginCtx, creds); err != nil {
			log.Printf("Warning: auto-login failed: %v", err)
		}
		loginCancel()
	}

	router := setupRouter(svc, embedded, blacklist)
	server := &http.Server{
		Addr:    serverCfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", serverCfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	sig := <-signalChan
	log.Printf("Caught signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
	svc.Dispose()
	log.Printf("Server shutdown complete")
}
