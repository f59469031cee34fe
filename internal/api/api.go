package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/api/handlers"
	"github.com/andresuchdata/pricing-model/backend-go/internal/api/middleware"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Pricing handlers.PricingService
	// Drive serves /api/drive/*; usually a gorilla/mux router from the drive package.
	Drive    http.Handler
	Defaults domain.RunOptions
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Pricing != nil {
		h := handlers.NewPricingHandler(services.Pricing, services.Defaults)
		pricingGroup := router.Group("/api/v1/pricing")
		{
			pricingGroup.POST("/runs", h.CreateRun)
			pricingGroup.GET("/runs", h.ListRuns)
			pricingGroup.GET("/runs/:id", h.GetRun)
			pricingGroup.GET("/runs/:id/items", h.ListItems)
			pricingGroup.GET("/runs/:id/export", h.Export)
			pricingGroup.DELETE("/cache", h.InvalidateCache)
		}
	}

	if services.Drive != nil {
		router.Any("/api/drive/*path", gin.WrapH(services.Drive))
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins, allowAll := normalizeAllowedOrigins(allowedOrigins)
	switch {
	case allowAll:
		cfg.AllowOrigins = nil
		cfg.AllowOriginFunc = func(string) bool { return true }
	case len(origins) > 0:
		cfg.AllowOrigins = origins
	}
	return cfg
}

// normalizeAllowedOrigins accepts repeated values and comma-separated lists.
func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			switch trimmed {
			case "":
			case "*":
				allowAll = true
			default:
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed, allowAll
}
