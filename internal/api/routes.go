package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/api/handlers"
	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/middleware"
)

// RouterDeps are the collaborators the HTTP surface needs.
type RouterDeps struct {
	Engine         handlers.Engine
	Collector      *metrics.Collector
	HealthChecks   map[string]handlers.HealthChecker
	Version        string
	AllowedOrigins []string
	Logger         *logrus.Logger
}

// NewRouter builds a gin engine with the standard middleware chain and all
// routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.TelemetryMiddleware())
	router.Use(middleware.RequestLogger(deps.Logger))
	SetupRoutes(router, deps)
	return router
}

func SetupRoutes(router *gin.Engine, deps RouterDeps) {
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks, deps.Version)
	arbitrageHandler := handlers.NewArbitrageHandler(deps.Engine)

	router.GET("/health", healthHandler.HealthCheck)
	if deps.Collector != nil {
		router.GET("/metrics", gin.WrapH(deps.Collector.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", arbitrageHandler.GetStats)

		opportunities := v1.Group("/opportunities")
		{
			opportunities.POST("/detect", arbitrageHandler.DetectOpportunity)
			opportunities.GET("", arbitrageHandler.GetOpportunityHistory)
		}

		routes := v1.Group("/routes")
		{
			routes.GET("/optimal", arbitrageHandler.GetOptimalRoute)
			routes.GET("/arbitrage", arbitrageHandler.GetArbitrageRoutes)
		}

		v1.POST("/fees/predict", arbitrageHandler.PredictFees)
		v1.POST("/optimize", arbitrageHandler.OptimizeTransaction)
	}
}
