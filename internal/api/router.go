package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(mw.Logger(h.log), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	h.upgrader.CheckOrigin = originAllowed(cfg.AllowedOrigins)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Reference data is seeded once, so its responses can be cached.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	api := r.Group("/api")
	{
		api.GET("/models", caching, h.GetModels)
		api.GET("/categories", caching, h.GetCategories)
		api.GET("/questions", caching, h.GetQuestions)

		api.GET("/equipment", h.ListEquipment)
		api.POST("/equipment", rateLimiter, h.CreateEquipment)
		api.GET("/equipment/:id", h.GetEquipment)
		api.PUT("/equipment/:id", rateLimiter, h.UpdateEquipment)
		api.DELETE("/equipment/:id", rateLimiter, h.DeleteEquipment)

		api.GET("/inspections", h.ListInspections)
		api.POST("/inspections/reception", rateLimiter, h.CreateReception)
		api.GET("/inspections/:id", h.GetInspection)
		api.DELETE("/inspections/:id", rateLimiter, h.DeleteInspection)
		api.POST("/inspections/:id/delivery", rateLimiter, h.CreateDelivery)
		api.GET("/inspections/:id/delivery", h.GetLinkedDelivery)
		api.POST("/inspections/:id/close", rateLimiter, h.CloseInspection)
		api.GET("/inspections/:id/completion", h.GetCompletion)
		api.GET("/inspections/:id/incomplete", h.GetIncomplete)
		api.GET("/inspections/:id/carry-forward", h.GetCarryForward)
		api.GET("/inspections/:id/answers", h.GetAnswers)
		api.PUT("/inspections/:id/answers/:question_id", h.SaveAnswer)
		api.POST("/inspections/:id/intents/:question_id", h.RecordIntent)
		api.GET("/inspections/:id/report", h.GetReport)

		api.GET("/answers/history", h.GetAnswerHistory)
		api.PUT("/answers/:id/remediation", h.UpdateRemediation)
		api.POST("/answers/:id/ensure-negative", h.EnsureNegative)
		api.POST("/answers/:id/photos", rateLimiter, h.UploadPhoto)
		api.GET("/answers/:id/photos", h.ListPhotos)
		api.DELETE("/photos/:id", h.DeletePhoto)

		api.GET("/subscriptions", rateLimiter, h.GetSubscription)
		api.PUT("/subscriptions", rateLimiter, h.PutSubscription)
		api.DELETE("/subscriptions", rateLimiter, h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

		api.GET("/ws/inspections", h.WatchInspections)
		api.GET("/ws/inspections/:id/answers", h.WatchAnswers)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AddExposeHeaders("Content-Disposition", "X-Cache")
	return c
}
