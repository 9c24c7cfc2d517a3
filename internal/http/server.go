package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"spesen/internal/cache"
	"spesen/internal/services"
	"spesen/internal/taxcalc"
	appweb "spesen/web"
)

type Server struct {
	http.Server
	templates   *template.Template
	trips       *services.TripService
	entries     *services.EntryService
	reports     *services.ReportService
	rateLimiter *rateLimiter
	feedLimit   int

	// Year-keyed caches for the dashboard aggregates.
	kpisCache    *cache.LRUCache[taxcalc.YearKpis]
	seriesCache  *cache.LRUCache[[12]taxcalc.MonthPoint]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(addr string, trips *services.TripService, entries *services.EntryService, reports *services.ReportService, feedLimit int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		trips:        trips,
		entries:      entries,
		reports:      reports,
		rateLimiter:  newRateLimiter(),
		feedLimit:    feedLimit,
		kpisCache:    cache.NewLRUCache[taxcalc.YearKpis](50, 5*time.Minute),
		seriesCache:  cache.NewLRUCache[[12]taxcalc.MonthPoint](50, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.kpisCache)
	s.cacheManager.Register(s.seriesCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	// UI partials and JSON series
	mux.HandleFunc("/ui/kpis", s.withSecurityHeaders(s.handleKpis))
	mux.HandleFunc("/ui/recent", s.withSecurityHeaders(s.handleRecent))
	mux.HandleFunc("/ui/schedule", s.withSecurityHeaders(s.handleSchedule))
	mux.HandleFunc("/api/monthly-series", s.withSecurityHeaders(s.handleMonthlySeries))

	// Entry forms
	mux.HandleFunc("/trips", s.withSecurityHeaders(s.handleTrips))
	mux.HandleFunc("/trips/finish", s.withSecurityHeaders(s.handleFinishTrip))
	mux.HandleFunc("/equipment", s.withSecurityHeaders(s.handleEquipment))
	mux.HandleFunc("/reimbursements", s.withSecurityHeaders(s.handleReimbursements))
	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.handleExpenses))
	mux.HandleFunc("/rates", s.withSecurityHeaders(s.handleRates))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutating requests only
		if (r.Method == http.MethodPost || r.Method == http.MethodDelete) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) cacheKey(year int) string {
	return strconv.Itoa(year)
}

// invalidateYear drops cached aggregates after a write touching the year.
func (s *Server) invalidateYear(year int) {
	key := s.cacheKey(year)
	s.kpisCache.Delete(key)
	s.seriesCache.Delete(key)
}

func (s *Server) getKpis(ctx context.Context, year int) (taxcalc.YearKpis, error) {
	key := s.cacheKey(year)
	if data, found := s.kpisCache.Get(key); found {
		slog.DebugContext(ctx, "KPI cache hit", "year", year)
		return data, nil
	}

	data, err := s.reports.Kpis(ctx, year)
	if err != nil {
		return taxcalc.YearKpis{}, fmt.Errorf("compute kpis (year=%d): %w", year, err)
	}
	s.kpisCache.Set(key, data)
	return data, nil
}

func (s *Server) getSeries(ctx context.Context, year int) ([12]taxcalc.MonthPoint, error) {
	key := s.cacheKey(year)
	if data, found := s.seriesCache.Get(key); found {
		slog.DebugContext(ctx, "Series cache hit", "year", year)
		return data, nil
	}

	data, err := s.reports.Series(ctx, year)
	if err != nil {
		return [12]taxcalc.MonthPoint{}, fmt.Errorf("compute monthly series (year=%d): %w", year, err)
	}
	s.seriesCache.Set(key, data)
	return data, nil
}
