package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/vibeup/docs"
	"github.com/d60-Lab/vibeup/internal/api/handler"
	"github.com/d60-Lab/vibeup/internal/api/middleware"
)

type RouterOptions struct {
	ServiceName string
	JWTSecret   []byte
	JWTIssuer   string
	Limiter     *middleware.Limiter
	Swagger     bool
}

// NewRouter 组装中间件与路由
func NewRouter(h *handler.Handler, health *handler.HealthHandler, opts RouterOptions) *gin.Engine {
	handler.RegisterValidators()

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		otelgin.Middleware(opts.ServiceName),
		middleware.Logger(),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
	)

	r.GET("/healthz", health.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := middleware.Auth(opts.JWTSecret, opts.JWTIssuer)
	writes := []gin.HandlerFunc{auth}
	if opts.Limiter != nil {
		writes = append(writes, middleware.RateLimit(opts.Limiter))
	}

	v1 := r.Group("/api/v1")
	{
		posts := v1.Group("/posts")
		posts.GET("", h.ListPosts)
		posts.GET("/:id", h.GetPost)
		posts.GET("/:id/reactions", h.PostReactions)
		posts.POST("", append(writes, h.CreatePost)...)
		posts.POST("/:id/reactions", append(writes, h.ReactToPost)...)

		tracks := v1.Group("/tracks")
		tracks.GET("", h.ListTracks)
		tracks.GET("/:id", h.GetTrack)
		tracks.GET("/:id/reactions", h.TrackReactions)
		tracks.POST("", append(writes, h.CreateTrack)...)
		tracks.POST("/:id/reactions", append(writes, h.ReactToTrack)...)
	}
	return r
}
