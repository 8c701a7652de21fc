package server

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geosync/internal/config"
	"geosync/internal/handler"
	"geosync/internal/middleware"
	"geosync/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// MonitorInterface is the lifecycle surface of the geofence monitor
type MonitorInterface interface {
	Start() error
	Stop()
}

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	config    *config.Config
	db        *gorm.DB
	redis     *redis.Client
	nats      *nats.Conn
	jetstream *service.JetStreamService

	wsHub        *handler.WSHub
	wsHandler    *handler.WSHandler
	zoneService  *service.ZoneService
	alertService *service.AlertService
	monitor      MonitorInterface
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, jetstream *service.JetStreamService) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		redis:     redisClient,
		nats:      natsConn,
		jetstream: jetstream,
	}
}

// Setup initializes routes and handlers
func (s *Server) Setup() {
	// Initialize WebSocket hub first (needed by the alert service)
	s.wsHub = handler.NewWSHub(s.nats)
	s.wsHandler = handler.NewWSHandler(s.wsHub)

	// Initialize services
	authService := service.NewAuthService(s.db)
	childService := service.NewChildService(s.db)
	backpackService := service.NewBackpackService(s.db, s.redis)
	zoneService := service.NewZoneService(s.db, s.redis)
	positionService := service.NewPositionService(s.db, s.redis, s.nats, s.jetstream)
	alertService := service.NewAlertService(s.db, s.nats, s.wsHub, s.jetstream)
	reportService := service.NewReportService(s.db)
	s.zoneService = zoneService
	s.alertService = alertService

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, s.config)
	childHandler := handler.NewChildHandler(childService)
	backpackHandler := handler.NewBackpackHandler(backpackService, positionService, childService)
	zoneHandler := handler.NewZoneHandler(zoneService, childService)
	positionHandler := handler.NewPositionHandler(positionService, childService, s.config)
	alertHandler := handler.NewAlertHandler(alertService, childService)
	reportHandler := handler.NewReportHandler(reportService, childService)

	// Start WebSocket hub in background
	go s.wsHub.Run()
	log.Println("[Server] WebSocket hub started")

	// Setup Gin router
	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Rate limits
	var loginLimit, ingestLimit gin.HandlerFunc
	if s.config.RateLimit.Enabled {
		limiter := middleware.NewRedisRateLimiter(s.redis)
		loginLimit = middleware.RateLimit(limiter, &s.config.RateLimit.Login)
		ingestLimit = middleware.RateLimit(limiter, &s.config.RateLimit.Ingest)
	} else {
		passthrough := func(c *gin.Context) { c.Next() }
		loginLimit, ingestLimit = passthrough, passthrough
	}

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Public routes
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/v1/auth/register", authHandler.Register)
	s.router.POST("/api/v1/auth/login", loginLimit, authHandler.Login)
	s.router.POST("/api/v1/ingest/positions", ingestLimit, positionHandler.Ingest)

	// WebSocket routes
	s.router.GET("/ws/live", s.wsHandler.HandleLive)
	s.router.GET("/ws/stats", s.wsHandler.GetStats)

	// Protected routes
	api := s.router.Group("/api/v1")
	api.Use(authHandler.AuthMiddleware())
	{
		// Auth
		api.GET("/auth/me", authHandler.GetMe)
		api.PUT("/auth/profile", authHandler.UpdateProfile)

		// Children
		api.GET("/children", childHandler.List)
		api.POST("/children", childHandler.Create)
		api.GET("/children/:id", childHandler.Get)
		api.PUT("/children/:id", childHandler.Update)
		api.DELETE("/children/:id", childHandler.Delete)
		api.POST("/children/:id/backpack", childHandler.BindBackpack)
		api.DELETE("/children/:id/backpack", childHandler.UnbindBackpack)

		// Backpacks
		api.GET("/backpacks", backpackHandler.List)
		api.POST("/backpacks", backpackHandler.Create)
		api.GET("/backpacks/import-template", backpackHandler.DownloadImportTemplate)
		api.POST("/backpacks/import", backpackHandler.Import)
		api.GET("/backpacks/:serial", backpackHandler.Get)
		api.GET("/backpacks/:serial/shadow", backpackHandler.GetShadow)

		// Safe zones
		api.GET("/backpacks/:serial/zones", zoneHandler.List)
		api.POST("/backpacks/:serial/zones", zoneHandler.Create)
		api.GET("/backpacks/:serial/zones/:id", zoneHandler.Get)
		api.PUT("/backpacks/:serial/zones/:id", zoneHandler.Update)
		api.DELETE("/backpacks/:serial/zones/:id", zoneHandler.Delete)

		// Positions
		api.GET("/backpacks/:serial/positions", positionHandler.GetHistory)
		api.GET("/backpacks/:serial/positions/latest", positionHandler.GetLatest)
		api.POST("/backpacks/:serial/positions/replay", positionHandler.Replay)

		// Alerts
		api.GET("/alerts", alertHandler.List)
		api.DELETE("/alerts", alertHandler.Clear)
		api.GET("/alerts/unread-count", alertHandler.GetUnreadCount)
		api.POST("/alerts/batch-read", alertHandler.BatchRead)
		api.POST("/alerts/:id/read", alertHandler.MarkAsRead)

		// Reports
		api.GET("/reports/backpacks/:serial/positions", reportHandler.PositionReport)
		api.GET("/reports/alerts", reportHandler.AlertReport)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{"status": "ok"}

	if s.jetstream != nil {
		health["jetstream"] = "enabled"
		if posInfo, err := s.jetstream.GetStreamInfo(service.StreamPositions); err == nil {
			health["jetstream_positions"] = gin.H{
				"messages": posInfo.State.Msgs,
				"bytes":    posInfo.State.Bytes,
			}
		}
		if alertInfo, err := s.jetstream.GetStreamInfo(service.StreamAlerts); err == nil {
			health["jetstream_alerts"] = gin.H{
				"messages": alertInfo.State.Msgs,
				"bytes":    alertInfo.State.Bytes,
			}
		}
	} else {
		health["jetstream"] = "disabled"
	}

	c.JSON(200, health)
}

// SetMonitor sets the geofence monitor
func (s *Server) SetMonitor(monitor MonitorInterface) {
	s.monitor = monitor
}

// GetWSHub returns the WebSocket hub for external use
func (s *Server) GetWSHub() *handler.WSHub {
	return s.wsHub
}

// GetZoneService returns the zone service (the monitor's zone provider)
func (s *Server) GetZoneService() *service.ZoneService {
	return s.zoneService
}

// GetAlertService returns the alert service (the monitor's alert sink)
func (s *Server) GetAlertService() *service.AlertService {
	return s.alertService
}

// GetRouter returns the gin router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	log.Printf("[Server] HTTP server listening on %s", addr)
	return s.router.Run(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	if s.monitor != nil {
		s.monitor.Stop()
		log.Println("[Server] Geofence monitor stopped")
	}
	if s.alertService != nil {
		s.alertService.Stop()
		log.Println("[Server] Alert service stopped")
	}
	if s.wsHub != nil {
		s.wsHub.Stop()
		log.Println("[Server] WebSocket hub stopped")
	}
	if s.jetstream != nil {
		s.jetstream.Close()
		log.Println("[Server] JetStream service stopped")
	}
}
