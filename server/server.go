package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"artistsfirst/catalog"
	"artistsfirst/config"
	"artistsfirst/core/auth"
	"artistsfirst/db"
	"artistsfirst/identity"
	"artistsfirst/logger"
	"artistsfirst/model"
	"artistsfirst/playback"
	"artistsfirst/repository"
	"artistsfirst/storage"
	"artistsfirst/store"
	"artistsfirst/wallet"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// memoryStoreCap bounds the in-memory fallback store at 32 MB.
const memoryStoreCap = 32 << 20

func policyFromConfig(cfg *config.Config) playback.Policy {
	return playback.Policy{
		Mode:          cfg.PlaybackPolicy,
		UnitPrice:     model.AF(cfg.StreamUnitPrice),
		PreviewBudget: time.Duration(cfg.PreviewBudgetSecs) * time.Second,
	}
}

func floorsFromConfig(cfg *config.Config) wallet.Floors {
	return wallet.Floors{
		WithdrawMin: model.AF(cfg.WithdrawMinAF),
		TopUpMin:    model.AF(cfg.TopUpMinAF),
	}
}

// Start initializes and starts the HTTP server.
func Start() {
	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/artistsfirst.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	cfg := config.Load()
	auth.Init(cfg.JWTSecret)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Entitlement{}, &model.Withdrawal{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	// The snapshot store prefers Redis. If Redis is down the service still
	// runs with in-memory state as the authority; snapshots are simply lost
	// on restart.
	var kv store.Store
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, wallet and catalog snapshots are in-memory only", logger.ErrorField(err))
		kv = store.NewMemoryStore(memoryStoreCap)
	} else {
		defer db.CloseRedis()
		kv = store.NewRedisStore(db.RedisClient, "af")
	}

	ctx := context.Background()

	wallets := wallet.NewService(kv, floorsFromConfig(cfg), model.AF(cfg.StartingCreditAF))

	cat, err := catalog.NewStore(ctx, kv)
	if err != nil {
		logger.Fatal("Failed to load catalog snapshot", logger.ErrorField(err))
	}

	userRepo := repository.NewMySQLUserRepository(db.DB)
	entRepo := repository.NewGormEntitlementRepository(db.GormDB)

	ents, err := playback.NewEntitlementCache(ctx, entRepo)
	if err != nil {
		logger.Fatal("Failed to load entitlements", logger.ErrorField(err))
	}

	gate := playback.NewGate(cat, wallets, ents, policyFromConfig(cfg))

	resolver := identity.NewAccountResolver(userRepo)
	fallback := identity.NewGuestResolver()

	apiHandler := NewAPIHandler(userRepo, entRepo, wallets, cat, gate, resolver, fallback, cfg)

	// Pricing and policy follow .env edits without a restart.
	stopWatch, err := config.Watch(".env", func(next *config.Config) {
		gate.SetPolicy(policyFromConfig(next))
		wallets.SetFloors(floorsFromConfig(next))
		logger.Info("Reloaded pricing configuration",
			logger.String("policy", next.PlaybackPolicy),
			logger.Int64("unitPrice", next.StreamUnitPrice))
	})
	if err != nil {
		logger.Warn("Config watch unavailable", logger.ErrorField(err))
	} else {
		defer stopWatch()
	}

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Auth
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// Catalog
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.CreateTrackHandler))).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.UpdateTrackHandler))).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.DeleteTrackHandler))).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}/cover", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.UploadCoverHandler))).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/audio", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.UploadAudioHandler))).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/purchase", apiHandler.AuthMiddleware(apiHandler.PurchaseTrackHandler)).Methods(http.MethodPost)

	// Wallet
	router.HandleFunc("/api/wallet", apiHandler.AuthMiddleware(apiHandler.GetWalletHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/wallet/topup", apiHandler.AuthMiddleware(apiHandler.TopUpHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/wallet/withdraw", apiHandler.AuthMiddleware(apiHandler.WithdrawHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/wallet/withdrawals", apiHandler.AuthMiddleware(apiHandler.ArtistOnly(apiHandler.GetWithdrawalsHandler))).Methods(http.MethodGet)
	router.HandleFunc("/api/artists/{id}/tip", apiHandler.AuthMiddleware(apiHandler.TipHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/library", apiHandler.AuthMiddleware(apiHandler.GetLibraryHandler)).Methods(http.MethodGet)

	// Playback
	router.HandleFunc("/api/playback/request", apiHandler.AuthMiddleware(apiHandler.RequestPlaybackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/toggle", apiHandler.AuthMiddleware(apiHandler.TogglePlaybackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/stop", apiHandler.AuthMiddleware(apiHandler.StopPlaybackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/session", apiHandler.AuthMiddleware(apiHandler.GetPlaybackSessionHandler)).Methods(http.MethodGet)
	router.HandleFunc("/ws/playback", apiHandler.WebSocketPlaybackHandler)

	// Covers and audio served straight from MinIO.
	router.PathPrefix("/static/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/static/")
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "MinIO client not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		if strings.HasPrefix(objectPath, "covers/") {
			contentType = "image/jpeg"
		} else if strings.HasPrefix(objectPath, "audio/") {
			contentType = "audio/mpeg"
		} else {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("Failed to serve object", logger.String("object", objectPath), logger.ErrorField(err))
		}
	})

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
