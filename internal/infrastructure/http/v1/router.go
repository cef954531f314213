package v1

import (
	"strconv"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1/handler"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/metrics"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-ID"

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("milmap-tiles"))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)
	v1.GET("/tiles", handler.Tiles)
	v1.GET("/tiles/coordinates", handler.TileCoordinates)
	v1.GET("/zoom", handler.Zoom)
	v1.GET("/elevation", handler.Elevation)
	v1.GET("/elevation/grid", handler.ElevationGrid)
	v1.POST("/overpass", handler.Overpass)

	v1.GET("/cache/stats", handler.CacheStats)
	v1.POST("/cache/cleanup", handler.CacheCleanup)
	v1.DELETE("/cache", handler.CacheClear)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		rl := l.With("request_id", requestID)
		c.Set(telemetry.RequestIDKey, requestID)
		c.Set("logger", rl)
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), rl))

		if c.Request.URL.Path == "/api/v1/healthz" {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		latency := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()

		rl.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
