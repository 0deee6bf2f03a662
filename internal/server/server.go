package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"focus-walker/internal/clock"
	"focus-walker/internal/config"
	"focus-walker/internal/database"
	"focus-walker/internal/engine"
	"focus-walker/internal/geocoding"
	"focus-walker/internal/handlers"
	"focus-walker/internal/mission"
	"focus-walker/internal/redisstore"
	"focus-walker/internal/routing"
	"focus-walker/internal/sqlite"
	"focus-walker/internal/stream"
	"focus-walker/web"
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer  *http.Server
	handler     *handlers.Handler
	db          database.DataStore
	session     *mission.Session
	unsubscribe func()
	listener    net.Listener
	addr        string
}

// New creates and initializes a new server (does not start it). An
// in-progress mission from a previous run is restored paused.
func New(cfg config.Config) (*Server, error) {
	log.Printf("Initializing data store...")
	db, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	sysClock := clock.NewSystemClock()
	geocoder := geocoding.NewNominatimGeocoder(cfg.NominatimBaseURL)

	session, err := mission.NewSession(context.Background(), mission.Deps{
		Scheduler:       engine.NewTimerScheduler(cfg.FrameInterval, sysClock),
		Router:          routing.NewOSRMRouter(cfg.OSRMBaseURL, cfg.RouteTimeout),
		Geocoder:        geocoder,
		Store:           db,
		Clock:           sysClock,
		PersistInterval: cfg.PersistInterval,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create mission session: %w", err)
	}

	if _, err := session.Recover(context.Background()); err != nil {
		log.Printf("[ERROR] Mission recovery failed, starting fresh: err=%v", err)
	}

	hub := stream.NewHub()
	unsubscribe := hub.Attach(session.Engine())

	handler := &handlers.Handler{
		DB:       db,
		Geocoder: geocoder,
		Session:  session,
		Hub:      hub,
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      setupRoutes(handler, web.Static),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		handler:     handler,
		db:          db,
		session:     session,
		unsubscribe: unsubscribe,
		addr:        cfg.ServerAddr,
	}, nil
}

// openStore selects the storage backend. Unset values fall back to the
// app config file, and an explicit file-based backend choice is remembered
// there. Redis is never remembered because its address only comes from the
// environment.
func openStore(cfg config.Config) (database.DataStore, error) {
	appCfg, err := database.LoadConfig()
	if err != nil {
		return nil, err
	}

	backend := cfg.StorageBackend
	if backend == "" {
		backend = appCfg.StorageBackend
	}
	path := cfg.DatabasePath

	var db database.DataStore
	switch backend {
	case "json":
		if path == "" {
			if path, err = database.GetDataDir(); err != nil {
				return nil, err
			}
		}
		db, err = database.NewJSONStore(path)
	case "sqlite":
		if path == "" {
			path = appCfg.DatabasePath
		}
		db, err = sqlite.New(path)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("storage backend redis requires REDIS_ADDR")
		}
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db, err = redisstore.New(ctx, client, redisstore.DefaultPrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	if backend != appCfg.StorageBackend && backend != "redis" {
		appCfg.StorageBackend = backend
		if backend == "sqlite" {
			appCfg.DatabasePath = path
		}
		if err := database.SaveConfig(appCfg); err != nil {
			log.Printf("[ERROR] Failed to remember storage backend: backend=%s err=%v", backend, err)
		}
	}

	return db, nil
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server. A running mission stays
// stored as in progress so the next start can recover it.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.unsubscribe()
	s.session.Close()
	return s.db.Close()
}

// setupRoutes configures all HTTP routes
func setupRoutes(handler *handlers.Handler, staticFS fs.FS) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	// Only allow localhost origins (Wails webview and local development)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:") ||
				strings.HasPrefix(origin, "wails://")
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-filesystem: %v", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSubFS))))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticSubFS, "index.html")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HandleHealthCheck)
		r.Post("/open-url", handleOpenURL)

		r.Get("/settings", handler.HandleGetSettings)
		r.Put("/settings", handler.HandleUpdateSettings)

		r.Post("/route", handler.HandlePlanRoute)

		r.Get("/mission", handler.HandleGetMission)
		r.Post("/mission/start", handler.HandleStartMission)
		r.Post("/mission/resume", handler.HandleResumeMission)
		r.Post("/mission/end", handler.HandleEndMission)
		r.Post("/mission/reset", handler.HandleResetMission)
		r.Get("/mission/stream", stream.HandleWebSocket(handler.Hub))

		r.Get("/missions", handler.HandleListMissions)
		r.Get("/missions/{id}", handler.HandleGetMissionByID)
		r.Delete("/missions/{id}", handler.HandleDeleteMission)
		r.Get("/missions/{id}/logs", handler.HandleGetLogs)

		r.Get("/geocoding/reverse", handler.HandleReverseGeocode)
		r.Get("/geocoding/search", handler.HandlePlaceSearch)
	})

	return r
}

// handleOpenURL opens a URL in the system's default browser
func handleOpenURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	// Only allow http/https URLs for security
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		http.Error(w, "Only HTTP/HTTPS URLs are allowed", http.StatusBadRequest)
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", req.URL)
	case "darwin":
		cmd = exec.Command("open", req.URL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", req.URL)
	default:
		http.Error(w, "Unsupported platform", http.StatusInternalServerError)
		return
	}

	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open URL: %v", err)
		http.Error(w, "Failed to open URL", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// loggingMiddleware logs each request except the snapshot stream
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/api/v1/mission/stream" {
			return
		}
		log.Printf("[HTTP] %s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
