package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/lookup"
	"github.com/sells-group/utility-lookup/internal/service"
)

var servePort int

// lookupSemSize bounds concurrent in-flight lookups so a burst of slow
// geocoder/state-GIS calls can't exhaust the process.
const lookupSemSize = 64

const maxBatchAddresses = 100

// serverState is shared, read-mostly state the router closes over. The
// in-memory spatial backend can take up to ~90s to load its shapefiles
// so the server accepts /health traffic immediately and reports
// engine_loaded=false until setService installs the ready engine.
type serverState struct {
	svc       *service.Service
	env       *engineEnv
	apiKeys   map[string]bool
	startedAt time.Time
	mu        sync.RWMutex
}

func (s *serverState) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc != nil
}

func (s *serverState) service() *service.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc
}

func (s *serverState) setService(svc *service.Service, env *engineEnv) {
	s.mu.Lock()
	s.svc = svc
	s.env = env
	s.mu.Unlock()
}

func (s *serverState) engine() *engineEnv {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

func (s *serverState) authenticate(r *http.Request) bool {
	if len(s.apiKeys) == 0 {
		return true // auth disabled, warned about at startup
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return s.apiKeys[key]
}

// buildRouter constructs the HTTP handler for the lookup server. It returns
// the router and a drain function the caller invokes after the HTTP server
// stops accepting new requests, to let in-flight lookups finish.
func buildRouter(state *serverState) (*chi.Mux, func()) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second))
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"X-API-Key", "Content-Type"},
	}))

	sem := make(chan struct{}, lookupSemSize)
	var wg sync.WaitGroup

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := "ok"
		if !state.ready() {
			status = "loading"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         status,
			"engine_loaded":  state.ready(),
			"uptime_seconds": int(time.Since(state.startedAt).Seconds()),
		})
	})

	r.Get("/lookup", handleLookup(state, &wg, sem))
	r.Post("/lookup", handleLookup(state, &wg, sem))
	r.Post("/lookup/batch", handleLookupBatch(state))
	r.Delete("/cache", handleClearCache(state))
	r.Get("/api/lookup/stream", handleLookupStream(state))

	return r, func() { wg.Wait() }
}

func handleLookup(state *serverState, wg *sync.WaitGroup, sem chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.authenticate(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid API key"})
			return
		}
		if !state.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine still loading"})
			return
		}

		address := strings.TrimSpace(r.URL.Query().Get("address"))
		if address == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
			return
		}
		noCache := r.URL.Query().Get("no_cache") == "1"

		select {
		case sem <- struct{}{}:
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "too many concurrent lookups"})
			return
		}
		wg.Add(1)
		defer func() { <-sem; wg.Done() }()

		result, err := state.service().Lookup(r.Context(), address, noCache)
		if err != nil {
			zap.L().Error("lookup failed", zap.String("address", address), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
}

type batchRowResult struct {
	*lookup.LookupResult
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

func handleLookupBatch(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.authenticate(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid API key"})
			return
		}
		if !state.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine still loading"})
			return
		}

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if len(req.Addresses) > maxBatchAddresses {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("max %d addresses per batch", maxBatchAddresses)})
			return
		}

		start := time.Now()
		results := make([]batchRowResult, len(req.Addresses))
		for i, addr := range req.Addresses {
			res, err := state.service().Lookup(r.Context(), addr, false)
			if err != nil {
				results[i] = batchRowResult{Address: addr, Error: err.Error()}
				continue
			}
			results[i] = batchRowResult{LookupResult: res}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"results":        results,
			"total":          len(results),
			"lookup_time_ms": time.Since(start).Milliseconds(),
		})
	}
}

func handleClearCache(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.authenticate(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid API key"})
			return
		}
		if !state.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine still loading"})
			return
		}
		n, err := state.service().ClearCache(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
	}
}

// handleLookupStream runs the full lookup, then emits one SSE event per
// utility type followed by a final "complete" event. Events are not sent
// incrementally: nothing is written until every utility type has resolved.
func handleLookupStream(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.authenticate(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid API key"})
			return
		}
		if !state.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine still loading"})
			return
		}
		address := strings.TrimSpace(r.URL.Query().Get("address"))
		if address == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		result, err := state.service().Lookup(r.Context(), address, false)
		if err != nil {
			writeSSE(w, "error", map[string]string{"error": "internal error"})
			flusher.Flush()
			return
		}

		for _, entry := range []struct {
			utilityType lookup.UtilityType
			value       *lookup.ProviderResult
		}{
			{lookup.UtilityElectric, result.Electric},
			{lookup.UtilityGas, result.Gas},
			{lookup.UtilityWater, result.Water},
			{lookup.UtilitySewer, result.Sewer},
			{lookup.UtilityTrash, result.Trash},
			{lookup.UtilityInternet, result.Internet},
		} {
			writeSSE(w, string(entry.utilityType), entry.value)
			flusher.Flush()
		}
		writeSSE(w, "complete", result)
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the utility lookup HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state := &serverState{
			apiKeys:   apiKeySet(cfg.Auth.APIKeys),
			startedAt: time.Now(),
		}
		if len(state.apiKeys) == 0 {
			zap.L().Warn("auth disabled: no API keys configured")
		}

		// Loading the in-memory spatial backend can take up to ~90s, so the
		// engine is built in the background and /health reports
		// engine_loaded=false until it's ready, rather than blocking the
		// listener from coming up at all.
		go func() {
			built, err := initEngine(ctx, "serve")
			if err != nil {
				zap.L().Error("engine init failed", zap.Error(err))
				stop()
				return
			}
			svc := service.New(built.Geocoder, built.Pipeline, built.Store, time.Duration(cfg.Cache.TTLDays)*24*time.Hour)
			svc.SkipWater = cfg.Store.SkipWater
			state.setService(svc, built)
			zap.L().Info("engine ready")
		}()

		router, drain := buildRouter(state)
		port := resolvePort(servePort, cfg.Server.Port)
		srvErr := startServer(ctx, router, port)
		drain()
		if env := state.engine(); env != nil {
			env.Close()
		}
		return srvErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = true
		}
	}
	return set
}

// startServer creates and runs the HTTP server with graceful shutdown.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// resolvePort returns the port flag value if non-zero, otherwise the config default.
func resolvePort(flagPort, configPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	if configPort != 0 {
		return configPort
	}
	return 8080
}
