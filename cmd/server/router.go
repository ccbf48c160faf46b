package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Skufu/symptomcheck/internal/classifier"
	"github.com/Skufu/symptomcheck/internal/history"
	"github.com/Skufu/symptomcheck/internal/logging"
	"github.com/Skufu/symptomcheck/internal/metrics"
)

// PredictionLog is the optional prediction history backend.
type PredictionLog interface {
	Record(ctx context.Context, symptoms []string, disease string, confidence float64, generation string) (string, error)
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Ping(ctx context.Context) error
}

type routerOptions struct {
	StaticRoot       string
	RetrainPerMinute int
}

type api struct {
	pipeline *classifier.Pipeline
	history  PredictionLog
}

func setupRouter(pipeline *classifier.Pipeline, predictions PredictionLog, opts routerOptions) *gin.Engine {
	a := &api{pipeline: pipeline, history: predictions}

	router := gin.New()
	router.Use(
		requestLogger(),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	if opts.StaticRoot != "" {
		router.Static("/static", opts.StaticRoot)
		router.StaticFile("/", filepath.Join(opts.StaticRoot, "index.html"))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", a.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	apiGroup.GET("/health", a.health)
	apiGroup.POST("/predict", a.predict)
	apiGroup.POST("/predict/match", a.match)
	apiGroup.GET("/symptoms", a.symptoms)
	apiGroup.GET("/diseases", a.diseases)
	apiGroup.GET("/model-info", a.modelInfo)
	apiGroup.GET("/dataset/stats", a.datasetStats)
	apiGroup.GET("/predictions/recent", a.recentPredictions)
	apiGroup.POST("/retrain", rateLimit(opts.RetrainPerMinute), a.retrain)

	return router
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// requestLogger logs each request through zerolog and records it in the API
// metrics, labelled by route template rather than raw path.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(c.Request.Method, route, status, elapsed)

		event := logging.Info()
		if status >= http.StatusInternalServerError {
			event = logging.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// rateLimit allows perMinute requests per minute with a burst of the same
// size. Zero disables the limit.
func rateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many retrain requests, try again later"})
			return
		}
		c.Next()
	}
}
