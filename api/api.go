// Package api serves stored crawl runs and their records over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/newscrawl/config"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/newsfeed"
	"github.com/pevans/newscrawl/runs"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// RunStore is the read side of runs.Store.
type RunStore interface {
	GetRun(runID uuid.UUID) (*runs.Run, error)
	ListRuns(filter runs.RunFilter) ([]runs.Run, error)
	ListRecords(runID uuid.UUID) ([]newsfeed.NewsRecord, error)
}

// Server is the HTTP API server.
type Server struct {
	store   RunStore
	config  *config.Config
	metrics http.Handler
	log     logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConfig exposes cfg at GET /api/v1/config.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.config = cfg }
}

// WithMetrics serves h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates an API server reading from store.
func NewServer(store RunStore, opts ...Option) *Server {
	s := &Server{store: store, log: logger.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRouter configures the Gin router with every route.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/runs", s.HandleListRuns)
	api.GET("/runs/:id", s.HandleGetRun)
	api.GET("/runs/:id/records", s.HandleListRecords)
	if s.config != nil {
		api.GET("/config", s.HandleGetConfig)
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	return router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting API server", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Handled request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// ListRunsResponse represents the response for GET /api/v1/runs.
type ListRunsResponse struct {
	Runs   []runs.Run `json:"runs"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ListRecordsResponse represents the response for GET
// /api/v1/runs/{id}/records.
type ListRecordsResponse struct {
	Records []newsfeed.NewsRecord `json:"records"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// HandleListRuns handles GET /api/v1/runs.
func (s *Server) HandleListRuns(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	filter := runs.RunFilter{Limit: limit, Offset: offset}
	if status := c.Query("status"); status != "" {
		switch status {
		case runs.StatusRunning, runs.StatusCompleted, runs.StatusFailed:
			filter.Status = &status
		default:
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid status parameter")
			return
		}
	}
	if keyword := c.Query("keyword"); keyword != "" {
		filter.Keyword = &keyword
	}

	list, err := s.store.ListRuns(filter)
	if err != nil {
		s.log.Error("Failed to list runs", logger.Error(err))
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: list, Limit: limit, Offset: offset})
}

// HandleGetRun handles GET /api/v1/runs/{id}.
func (s *Server) HandleGetRun(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := s.store.GetRun(id)
	if errors.Is(err, runs.ErrRunNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Run with ID "+id.String()+" not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to get run", logger.String("run_id", id.String()), logger.Error(err))
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to get run")
		return
	}

	c.JSON(http.StatusOK, run)
}

// HandleListRecords handles GET /api/v1/runs/{id}/records. The optional
// money and min_matches parameters filter on text features.
func (s *Server) HandleListRecords(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	var money *bool
	if param := c.Query("money"); param != "" {
		b, err := strconv.ParseBool(param)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid money parameter")
			return
		}
		money = &b
	}
	minMatches := 0
	if param := c.Query("min_matches"); param != "" {
		n, err := strconv.Atoi(param)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid min_matches parameter")
			return
		}
		minMatches = n
	}

	records, err := s.store.ListRecords(id)
	if errors.Is(err, runs.ErrRunNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Run with ID "+id.String()+" not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to list records", logger.String("run_id", id.String()), logger.Error(err))
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to list records")
		return
	}

	filtered := filterRecords(records, money, minMatches)
	c.JSON(http.StatusOK, ListRecordsResponse{
		Records: paginate(filtered, offset, limit),
		Total:   len(filtered),
		Limit:   limit,
		Offset:  offset,
	})
}

// HandleGetConfig handles GET /api/v1/config.
func (s *Server) HandleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.config)
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_id", "Invalid run ID: "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads limit and offset, writing a 400 on bad input.
func parsePagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = defaultLimit
	if param := c.Query("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return 0, 0, false
		}
		limit = min(parsed, maxLimit)
	}

	if param := c.Query("offset"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 0 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid offset parameter")
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}

func filterRecords(records []newsfeed.NewsRecord, money *bool, minMatches int) []newsfeed.NewsRecord {
	if money == nil && minMatches == 0 {
		return records
	}

	filtered := []newsfeed.NewsRecord{}
	for _, r := range records {
		if r.Features == nil {
			continue
		}
		if money != nil && r.Features.ContainsMoney != *money {
			continue
		}
		if r.Features.SearchPhraseMatches < minMatches {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func paginate(records []newsfeed.NewsRecord, offset, limit int) []newsfeed.NewsRecord {
	if offset >= len(records) {
		return []newsfeed.NewsRecord{}
	}
	end := min(offset+limit, len(records))
	return records[offset:end]
}
