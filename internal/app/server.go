package app

import (
	"net/http"
	"strconv"
	"time"

	"storyteller/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	sessionHeader   = "X-Session-ID"
	requestIDHeader = "X-Request-ID"
)

func (a *App) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = a.cfg.MaxUploadBytes

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", sessionHeader}

	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(cors.New(corsCfg))
	r.Use(accessLog())
	r.Use(metricsMiddleware())

	r.GET("/healthz", a.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimit(rate.NewLimiter(rate.Limit(a.cfg.RateLimit), a.cfg.RateBurst)))
	{
		api.POST("/sessions", a.handleCreateSession)
		api.GET("/sessions/:id", a.handleGetSession)
		api.DELETE("/sessions/:id", a.handleDeleteSession)
		api.DELETE("/sessions/:id/file", a.handleRemoveFile)
		api.POST("/sessions/:id/extract", a.handleExtract)
		api.GET("/sessions/:id/messages", a.handleMessages)
		api.POST("/sessions/:id/messages", a.handleChat)
		api.POST("/sessions/:id/story", a.handleStory)

		api.POST("/chat/upload", a.handleUpload)
		api.POST("/chat/generate-story", a.handleGenerateStory)
	}

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client":     c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("HTTP request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("HTTP request")
		default:
			entry.Debug("HTTP request")
		}
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// шаблон маршрута, чтобы id сессий не раздували кардинальность
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
