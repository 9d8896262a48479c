package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketlens/cache"
	"marketlens/config"
	"marketlens/logger"
	"marketlens/types"
	"marketlens/utils"

	"github.com/gorilla/mux"
)

// MarketData is the query surface the handlers need from the store
type MarketData interface {
	ETFDaily(ctx context.Context, start time.Time, excluded []string) ([]types.Row, error)
	ETFHoldings(ctx context.Context, etfSymbol string, start time.Time) ([]types.Row, error)
	ETFInfo(ctx context.Context, etfSymbol string) ([]types.Row, error)
	ETFList(ctx context.Context, excluded []string) ([]string, error)
	Bonds(ctx context.Context, country string, start time.Time) ([]types.Row, error)
	USBonds(ctx context.Context, start time.Time) ([]types.Row, error)
	ShortSellLatest(ctx context.Context) ([]types.Row, error)
	ShortSellHistory(ctx context.Context, stockCode int64, days int) ([]types.Row, error)
	OptionsSnapshot(ctx context.Context, symbol string) ([]types.Row, error)
	SnapshotSpot(ctx context.Context, symbol string) ([]types.Row, error)
}

// Server represents the HTTP API server
type Server struct {
	router *mux.Router
	server *http.Server
	cfg    *config.Config
	store  MarketData
	cache  *cache.ResponseCache
	loc    *time.Location
	now    func() time.Time
	log    *logger.Logger
}

// NewServer wires the routes; a nil cache disables response caching
func NewServer(cfg *config.Config, store MarketData, responseCache *cache.ResponseCache) *Server {
	if responseCache == nil {
		responseCache = cache.Disabled()
	}

	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		store:  store,
		cache:  responseCache,
		loc:    utils.LoadLocation(cfg.Market.Timezone),
		now:    time.Now,
		log:    logger.L(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler including response compression
func (s *Server) Handler() http.Handler {
	if s.cfg.Server.Compression {
		return ZstdMiddleware(s.router)
	}
	return s.router
}

// setupRoutes initializes all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.RequestMiddleware)
	s.router.Use(s.CORSMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET", "OPTIONS")

	// Dataset routes are cached when redis is configured
	data := api.NewRoute().Subrouter()
	data.Use(s.cache.Middleware)

	etf := data.PathPrefix("/etf").Subrouter()
	etf.HandleFunc("/daily", s.handleETFDaily).Methods("GET", "OPTIONS")
	etf.HandleFunc("/daily/export", s.handleETFDailyExport).Methods("GET", "OPTIONS")
	etf.HandleFunc("/holdings/{etf_symbol}", s.handleETFHoldings).Methods("GET", "OPTIONS")
	etf.HandleFunc("/info/{etf_symbol}", s.handleETFInfo).Methods("GET", "OPTIONS")
	etf.HandleFunc("/list", s.handleETFList).Methods("GET", "OPTIONS")

	data.HandleFunc("/bonds/{country}", s.handleBonds).Methods("GET", "OPTIONS")
	data.HandleFunc("/us_bonds", s.handleUSBonds).Methods("GET", "OPTIONS")

	shortsell := data.PathPrefix("/shortsell").Subrouter()
	shortsell.HandleFunc("/latest", s.handleShortSellLatest).Methods("GET", "OPTIONS")
	shortsell.HandleFunc("/history/{stock_code}", s.handleShortSellHistory).Methods("GET", "OPTIONS")

	// Option terms depend on the processing date, so their cache entries do too
	dated := api.NewRoute().Subrouter()
	dated.Use(s.cache.KeyedMiddleware(s.datedCacheKey))

	options := dated.PathPrefix("/options").Subrouter()
	options.HandleFunc("/data/{symbol}", s.handleOptionsData).Methods("GET", "OPTIONS")
	options.HandleFunc("/position_value/{symbol}", s.handleOptionsPositionValue).Methods("GET", "OPTIONS")
}

// Start starts the HTTP server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.GetReadTimeout(),
		WriteTimeout: s.cfg.Server.GetWriteTimeout(),
		IdleTimeout:  s.cfg.Server.GetIdleTimeout(),
	}

	go func() {
		s.log.Info("Starting API server", map[string]interface{}{
			"port":        s.cfg.Server.Port,
			"compression": s.cfg.Server.Compression,
			"cache":       s.cache.Enabled(),
		})

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			s.log.Error("API server shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.log.Info("Shutting down API server", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return nil
}

// datedCacheKey scopes a cached response to the current processing date
func (s *Server) datedCacheKey(r *http.Request) string {
	return s.today().String() + ":" + cache.Key(r)
}

// today is the processing date used for option term buckets
func (s *Server) today() types.Date {
	return types.NewDate(s.now().In(s.loc))
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	SendSuccess(w, map[string]interface{}{
		"status": "ok",
		"time":   s.now().Format(time.RFC3339),
	}, "API server is running")
}

// parseStartDate reads ?start_date=YYYY-MM-DD, falling back to def
func parseStartDate(r *http.Request, def string) (types.Date, error) {
	raw := r.URL.Query().Get("start_date")
	if raw == "" {
		raw = def
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return types.Date{}, fmt.Errorf("invalid start_date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// serverError logs err against the request and sends a generic 500
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.WithContext(r.Context()).Error(msg, map[string]interface{}{
		"error": err.Error(),
		"path":  r.URL.Path,
	})
	SendInternalServerError(w)
}
