package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"codform/internal/api/handlers"
	"codform/internal/api/middleware"
	"codform/internal/config"
	"codform/internal/database"
	"codform/internal/events"
	"codform/internal/logger"
	"codform/internal/services/fraud"
	"codform/internal/services/orders"
	"codform/internal/storefront/formconfig"
	"codform/internal/widget"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config  *config.Config
	logger  *logger.Logger
	db      *database.Database
	router  *gin.Engine
	server  *http.Server
	widgets *widget.Store
	stop    context.CancelFunc
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database, publisher events.Publisher) (*Server, error) {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var fallback *formconfig.Response
	if cfg.DefaultFormPath != "" {
		resp, err := formconfig.LoadFile(cfg.DefaultFormPath)
		if err != nil {
			return nil, err
		}
		fallback = resp
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	checker := fraud.NewChecker(db.DB, logger)
	syncer := orders.NewSyncer(db.DB, orders.DefaultClientFactory(logger), logger)
	widgets := widget.NewStore(widget.Options{
		BackendURL:        cfg.BackendURL,
		StorefrontScheme:  cfg.StorefrontScheme,
		SettleDelay:       cfg.VariantSettleDelay,
		BlockedResetDelay: cfg.BlockedResetDelay,
		TTL:               cfg.WidgetSessionTTL,
		SyncCart:          cfg.SyncCart,
		Fallback:          fallback,
		Logger:            logger,
		Shops:             widget.NewDBShops(db.DB),
	})
	pricer := orders.NewPricer(orders.StorefrontCatalogs(cfg.StorefrontScheme, logger))

	// Initialize handlers
	publicHandler := handlers.NewPublicHandler(db.DB, logger, checker, publisher, syncer, pricer)
	widgetHandler := handlers.NewWidgetHandler(widgets, logger)
	formHandler := handlers.NewFormHandler(db.DB, logger)
	blocklistHandler := handlers.NewBlocklistHandler(checker, logger)
	shopifyHandler := handlers.NewShopifyHandler(db.DB, logger, cfg)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Storefront runtime
	public := router.Group("/api")
	{
		public.GET("/public-form-config", publicHandler.FormConfig)
		public.POST("/create-order", publicHandler.CreateOrder)
	}

	sessions := router.Group("/widget/sessions")
	{
		sessions.POST("", widgetHandler.Create)
		sessions.POST("/:id/events", widgetHandler.Event)
		sessions.POST("/:id/submit", widgetHandler.Submit)
		sessions.DELETE("/:id", widgetHandler.Delete)
	}

	// Routes
	v1 := router.Group("/api/v1")
	{
		admin := v1.Group("", middleware.AdminToken(cfg.AdminToken))

		// Forms
		forms := admin.Group("/forms")
		{
			forms.GET("/:shop", formHandler.Get)
			forms.PUT("/:shop", formHandler.Put)
		}

		// Shops
		admin.PUT("/shops/:shop", formHandler.PutShop)

		// Block list
		blocklist := admin.Group("/blocklist")
		{
			blocklist.GET("", blocklistHandler.List)
			blocklist.POST("", blocklistHandler.Create)
			blocklist.DELETE("/:id", blocklistHandler.Delete)
		}

		// Shopify Integration
		v1.POST("/shopify/webhook", shopifyHandler.Webhook)
	}

	return &Server{
		config:  cfg,
		logger:  logger,
		db:      db,
		router:  router,
		widgets: widgets,
	}, nil
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.RunSessions(ctx)

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.stop != nil {
		s.stop()
	}
	return s.server.Shutdown(ctx)
}

// RunSessions evicts idle widget sessions until ctx ends.
func (s *Server) RunSessions(ctx context.Context) {
	s.widgets.Run(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}
