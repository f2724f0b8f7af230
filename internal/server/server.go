package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// Config holds server configuration
type Config struct {
	Address        string
	APIKey         string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	Debug          bool
}

// Fiscal is the set of caller operations the API exposes
type Fiscal interface {
	Fiscalize(ctx context.Context, draft model.InvoiceDraft) (*model.AuthorizationOutcome, error)
	Validate(draft model.InvoiceDraft) (*model.InvoiceRequest, error)
	LastAuthorized(ctx context.Context, pointOfSale, documentType int) (*model.LastAuthorized, error)
	TicketStatus(ctx context.Context, service model.Service) model.TicketStatus
	ForceRenewTicket(ctx context.Context, service model.Service) (*model.AccessTicket, error)
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	router *gin.Engine
	fiscal Fiscal
	logger logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(config *Config, fiscal Fiscal, logger logrus.FieldLogger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 2 * time.Minute
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config: config,
		router: router,
		fiscal: fiscal,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.apiKeyMiddleware())
	{
		v1.POST("/fiscalize", s.handleFiscalize)
		v1.POST("/validate", s.handleValidate)
		v1.GET("/last-authorized", s.handleLastAuthorized)

		v1.GET("/ticket/:service", s.handleTicketStatus)
		v1.POST("/ticket/:service/renew", s.handleTicketRenew)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.httpServer().ListenAndServe()
}

// RunContext serves until ctx is cancelled, then shuts down gracefully
func (s *Server) RunContext(ctx context.Context) error {
	srv := s.httpServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyMiddleware enforces X-API-Key when an API key is configured
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APIKey == "" {
			c.Next()
			return
		}
		given := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.config.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFiscalize(c *gin.Context) {
	draft, ok := s.readDraft(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	outcome, err := s.fiscal.Fiscalize(ctx, draft)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !outcome.Approved() {
		c.JSON(http.StatusUnprocessableEntity, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleValidate(c *gin.Context) {
	draft, ok := s.readDraft(c)
	if !ok {
		return
	}
	req, err := s.fiscal.Validate(draft)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ValidationResponse{Valid: true, Request: req})
}

func (s *Server) handleLastAuthorized(c *gin.Context) {
	pos, err := strconv.Atoi(c.Query("pos"))
	if err != nil {
		s.writeError(c, model.NewValidationError("pos", c.Query("pos"), "type", "pos must be an integer"))
		return
	}
	docType, err := strconv.Atoi(c.Query("type"))
	if err != nil {
		s.writeError(c, model.NewValidationError("type", c.Query("type"), "type", "type must be an integer"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	last, err := s.fiscal.LastAuthorized(ctx, pos, docType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, last)
}

func (s *Server) handleTicketStatus(c *gin.Context) {
	service, err := model.ParseService(c.Param("service"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.fiscal.TicketStatus(c.Request.Context(), service))
}

func (s *Server) handleTicketRenew(c *gin.Context) {
	service, err := model.ParseService(c.Param("service"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	if _, err := s.fiscal.ForceRenewTicket(ctx, service); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.fiscal.TicketStatus(ctx, service))
}

// readDraft decodes the request body as a JSON object, keeping numbers exact
func (s *Server) readDraft(c *gin.Context) (model.InvoiceDraft, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var draft model.InvoiceDraft
	if err := dec.Decode(&draft); err != nil || draft == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must be a JSON object"})
		return nil, false
	}
	return draft, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	entry := s.logger.WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"status": status,
	})
	if resp.AttemptID != "" {
		entry = entry.WithField("attempt", resp.AttemptID)
	}
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithError(err).Debug("Request rejected")
	}
	c.JSON(status, resp)
}
