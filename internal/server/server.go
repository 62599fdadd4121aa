// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/evalstudio/eval-studio/internal/bus"
	"github.com/evalstudio/eval-studio/internal/config"
	"github.com/evalstudio/eval-studio/internal/docs"
	"github.com/evalstudio/eval-studio/internal/evaluation"
	"github.com/evalstudio/eval-studio/internal/generator"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/pkg/middleware"
	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/store"
)

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// RateLimit is requests per second per client, 0 to disable.
	RateLimit int

	// CORSOrigins is the allowed origin list ("*" for any).
	CORSOrigins string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     "*",
	}
}

// Services are the collaborators the server exposes over HTTP.
type Services struct {
	Store     *store.Service
	Providers scoring.Pair
	Catalog   *docs.Catalog
	Generator *generator.Generator
	Executor  *evaluation.Executor
	Bus       bus.Bus
}

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	store     *store.Service
	providers scoring.Pair
	catalog   *docs.Catalog
	generator *generator.Generator
	executor  *evaluation.Executor
	bus       bus.Bus

	// Handlers
	suiteHandler *SuiteHandler
	runHandler   *RunHandler
	docsHandler  *DocsHandler

	// closers are connections owned by the server, closed on Stop.
	closers []io.Closer

	mu      sync.RWMutex
	started bool
}

// New creates a server with all dependencies built from the application
// config.
func New(appCfg *config.Config, log *logger.Logger) (*Server, error) {
	cfg := DefaultConfig()
	cfg.Host = appCfg.Host
	cfg.Port = appCfg.Port
	cfg.RateLimit = appCfg.Security.RateLimit
	cfg.CORSOrigins = appCfg.Security.CORSOrigins

	s := &Server{
		cfg: cfg,
		log: log,
	}

	// Event bus
	eventBus, err := bus.NewBus(bus.Options{
		Type:         appCfg.Bus.Type,
		KafkaBrokers: appCfg.Bus.KafkaBrokers,
		KafkaGroup:   appCfg.Bus.KafkaGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = eventBus

	// Store service
	s.store = store.NewService(store.ServiceConfig{
		StoragePath: appCfg.Store.Path,
	})

	// Scoring providers
	bm25 := scoring.NewBM25Provider(scoring.BM25Config{
		BaseURL: appCfg.Providers.BM25URL,
	})
	embedder := scoring.NewHTTPEmbedder(scoring.HTTPEmbedderConfig{
		BaseURL: appCfg.Providers.EmbedURL,
	})
	searcher, err := scoring.NewQdrantSearcher(scoring.QdrantConfig{
		Host:       appCfg.Qdrant.Host,
		Port:       appCfg.Qdrant.Port,
		APIKey:     appCfg.Qdrant.APIKey,
		UseTLS:     appCfg.Qdrant.UseTLS,
		Collection: appCfg.Qdrant.Collection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant searcher: %w", err)
	}
	s.closers = append(s.closers, searcher)
	s.providers = scoring.Pair{
		BM25: bm25,
		Hier: scoring.NewHierProvider(embedder, searcher),
	}

	// Document catalog
	var cache docs.Cache
	if appCfg.Catalog.CacheType == "redis" {
		redisCache := docs.NewRedisCache(docs.RedisCacheConfig{
			Addr:     appCfg.Catalog.RedisAddr,
			Password: appCfg.Catalog.RedisPassword,
			DB:       appCfg.Catalog.RedisDB,
		})
		s.closers = append(s.closers, redisCache)
		cache = redisCache
	} else {
		cache = docs.NewMemoryCache()
	}
	s.catalog = docs.NewCatalog(docs.NewHTTPSource(docs.HTTPSourceConfig{
		BaseURL: appCfg.Catalog.URL,
	}), cache)

	// Question generator
	evidence, err := generator.NewQdrantEvidence(generator.QdrantEvidenceConfig{
		Host:       appCfg.Qdrant.Host,
		Port:       appCfg.Qdrant.Port,
		APIKey:     appCfg.Qdrant.APIKey,
		UseTLS:     appCfg.Qdrant.UseTLS,
		Collection: appCfg.Qdrant.Collection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence source: %w", err)
	}
	s.closers = append(s.closers, evidence)
	llm := generator.NewHTTPLLM(generator.HTTPLLMConfig{
		BaseURL:     appCfg.Generator.LLMURL,
		Model:       appCfg.Generator.Model,
		Temperature: appCfg.Generator.Temperature,
	})
	s.generator = generator.New(s.store, evidence, llm, log)

	// Run executor
	s.executor = evaluation.NewExecutor(s.store, s.providers, s.bus, log, evaluation.ExecutorConfig{
		Concurrency: appCfg.Eval.Concurrency,
	})

	s.initHandlers()
	return s, nil
}

// NewWithServices creates a server over pre-built services, used by tests.
func NewWithServices(cfg Config, log *logger.Logger, svcs Services) *Server {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:       cfg,
		log:       log,
		store:     svcs.Store,
		providers: svcs.Providers,
		catalog:   svcs.Catalog,
		generator: svcs.Generator,
		executor:  svcs.Executor,
		bus:       svcs.Bus,
	}
	s.initHandlers()
	return s
}

func (s *Server) initHandlers() {
	s.suiteHandler = NewSuiteHandler(s.store, s.generator, s.executor, s.bus, s.log)
	s.runHandler = NewRunHandler(s.store)
	s.docsHandler = NewDocsHandler(s.catalog)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	handler := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.Error("bus close error", "error", err)
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Error("close error", "error", err)
		}
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// Handler builds the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	s.docsHandler.RegisterRoutes(mux)
	s.suiteHandler.RegisterRoutes(mux)
	s.runHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = corsMiddleware(handler, s.cfg.CORSOrigins)
	if s.cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.RateLimit),
			Burst:             s.cfg.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = limiter.Middleware(handler)
	}
	return wrapWithLogging(handler, s.log)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

// corsMiddleware applies CORS headers and answers preflight requests.
func corsMiddleware(next http.Handler, origins string) http.Handler {
	if origins == "" {
		origins = "*"
	}
	allowed := strings.Split(origins, ",")
	for i := range allowed {
		allowed[i] = strings.TrimSpace(allowed[i])
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, o := range allowed {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wrapWithLogging wraps a handler with request logging.
func wrapWithLogging(handler http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
