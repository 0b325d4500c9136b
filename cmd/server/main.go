package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/config"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/diff"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/handler"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/metrics"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/registry"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/service"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/websocket"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/logger"
)

const purgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		log.Fatal("failed to connect to CouchDB", zap.Error(err))
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatal("failed to check database existence", zap.Error(err))
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatal("failed to create database", zap.Error(err))
		}
		log.Info("created database", zap.String("name", cfg.Database.Name))
	}

	if err := repository.EnsureIndexes(context.Background(), client, cfg.Database.Name); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}

	reg := registry.New(cfg.Registry.TrackedDocumentTypes...)
	if cfg.Registry.Path != "" {
		if err := reg.LoadFile(cfg.Registry.Path); err != nil {
			log.Fatal("failed to load field registry", zap.String("path", cfg.Registry.Path), zap.Error(err))
		}
	}

	conflictRepo, closeStore, err := openConflictRepository(cfg, client)
	if err != nil {
		log.Fatal("failed to open conflict store", zap.String("store", cfg.Conflict.Store), zap.Error(err))
	}
	defer closeStore()

	m := metrics.New()

	revisionRepo := repository.NewRevisionRepository(client, cfg.Database.Name)
	documentRepo := repository.NewDocumentRepository(client, cfg.Database.Name, revisionRepo)

	versions := service.NewVersionTracker(revisionRepo)
	store := service.NewConflictStore(conflictRepo, cfg.Conflict.TTL, m, log)
	detector := service.NewConflictDetector(versions, documentRepo, store, reg, log)
	presence := service.NewPresenceTracker(cfg.Presence.StaleAfter)

	documentService := service.NewDocumentService(
		documentRepo,
		revisionRepo,
		versions,
		detector,
		store,
		presence,
		reg,
		diff.NewEngine(),
		m,
		service.DocumentServiceConfig{
			PollInterval:    cfg.Presence.PollInterval,
			SaveGuardWindow: cfg.Presence.SaveGuardWindow,
		},
		log,
	)

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerEditor: cfg.WebSocket.MaxConnPerEditor,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
	}, log)
	limiter := middleware.NewEditorLimiter(cfg.RateLimit.RequestsPerMinute)

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(documentService, wsManager, limiter, log))
	documentService.SetNotifier(wsManager)
	go wsManager.Run()

	documentHandler := handler.NewDocumentHandler(documentService, log)
	conflictHandler := handler.NewConflictHandler(documentService, log)
	presenceHandler := handler.NewPresenceHandler(documentService, log)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, splitOrigins(cfg.CORS.AllowedOrigins), log)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(log, m))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/documents", documentHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/documents/{id}", documentHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}", documentHandler.Save).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/documents/{id}/edit", documentHandler.OpenForEdit).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}/save-check", documentHandler.SaveCheck).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}/conflict", conflictHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/documents/{id}/presence", presenceHandler.Leave).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/diff", conflictHandler.RenderDiff).Methods("POST", "OPTIONS")

	heartbeat := protected.PathPrefix("/documents/{id}/heartbeat").Subrouter()
	if cfg.RateLimit.Enabled {
		heartbeat.Use(middleware.RateLimitMiddleware(limiter, "heartbeat", m))
	}
	heartbeat.HandleFunc("", presenceHandler.Heartbeat).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.Handle("/metrics", m.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler).Methods("GET")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go runMaintenance(ctx, documentService, limiter, log)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("conflict_store", cfg.Conflict.Store),
			zap.Strings("tracked_types", reg.DocumentTypes()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func openConflictRepository(cfg *config.Config, client *kivik.Client) (repository.ConflictRepository, func() error, error) {
	switch cfg.Conflict.Store {
	case config.StoreSQLite:
		return repository.OpenSQLiteConflictRepository(cfg.Conflict.SQLitePath)
	case config.StoreMemory:
		return repository.NewMemoryConflictRepository(), func() error { return nil }, nil
	default:
		return repository.NewCouchConflictRepository(client, cfg.Database.Name), func() error { return nil }, nil
	}
}

// runMaintenance purges expired conflicts, idle rate limiters and abandoned
// presence baselines.
func runMaintenance(ctx context.Context, documents *service.DocumentService, limiter *middleware.EditorLimiter, log *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := documents.PurgeExpiredConflicts(ctx)
			if err != nil {
				log.Warn("conflict purge failed", zap.Error(err))
			} else if purged > 0 {
				log.Info("purged expired conflicts", zap.Int("count", purged))
			}
			if n := limiter.Sweep(); n > 0 {
				log.Debug("swept idle rate limiters", zap.Int("count", n), zap.Int("live", limiter.Len()))
			}
			if n := documents.PrunePresence(); n > 0 {
				log.Debug("pruned abandoned presence baselines", zap.Int("count", n))
			}
		}
	}
}

func splitOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"fabrica-collaborative-editing"}`))
}
