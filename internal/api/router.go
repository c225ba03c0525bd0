package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/app"
	iauth "github.com/campfirehq/campfire/internal/auth"
	"github.com/campfirehq/campfire/internal/handlers"
	"github.com/campfirehq/campfire/internal/middleware"
	"github.com/campfirehq/campfire/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
// A nil rateStore falls back to a process-local limiter.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	auditService, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	userService, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	communityService, err := services.NewCommunityService(db, auditService)
	if err != nil {
		return nil, err
	}
	inviteService, err := services.NewInviteService(db, communityService, auditService)
	if err != nil {
		return nil, err
	}
	categoryService, err := services.NewCategoryService(db, auditService)
	if err != nil {
		return nil, err
	}
	channelService, err := services.NewChannelService(db, communityService, auditService)
	if err != nil {
		return nil, err
	}
	postService, err := services.NewPostService(db, communityService)
	if err != nil {
		return nil, err
	}
	voteService, err := services.NewVoteService(db)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window))
	}

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(userService, jwt)
	userHandler := handlers.NewUserHandler(userService)
	communityHandler := handlers.NewCommunityHandler(communityService)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	channelHandler := handlers.NewChannelHandler(channelService)
	postHandler := handlers.NewPostHandler(postService, voteService)

	requireAuth := middleware.Auth(jwt)
	optionalAuth := middleware.OptionalAuth(jwt)
	requireOperator := middleware.RequireOperator(cfg.Auth.Operators)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", requireAuth, authHandler.Me)
	}

	// Users
	users := r.Group("/api/users")
	{
		users.PATCH("/me", requireAuth, userHandler.UpdateProfile)
		users.GET("/:id", userHandler.Get)
	}

	// Communities and membership
	communities := r.Group("/api/communities")
	{
		communities.GET("", optionalAuth, communityHandler.List)
		communities.POST("", requireAuth, communityHandler.Create)
		communities.GET("/:id", optionalAuth, communityHandler.Get)
		communities.PATCH("/:id", requireAuth, communityHandler.Update)
		communities.DELETE("/:id", requireAuth, communityHandler.Delete)
		communities.POST("/:id/join", requireAuth, communityHandler.Join)
		communities.POST("/:id/leave", requireAuth, communityHandler.Leave)
		communities.GET("/:id/members", optionalAuth, communityHandler.Members)

		communities.POST("/:id/invites", requireAuth, inviteHandler.Generate)
		communities.GET("/:id/invites", requireAuth, inviteHandler.List)

		communities.GET("/:id/channels", requireAuth, channelHandler.List)
		communities.POST("/:id/channels", requireAuth, channelHandler.Create)
		communities.PATCH("/:id/channels/:channel", requireAuth, channelHandler.Update)
		communities.DELETE("/:id/channels/:channel", requireAuth, channelHandler.Delete)
		communities.GET("/:id/channels/:channel/messages", requireAuth, channelHandler.Messages)
		communities.POST("/:id/channels/:channel/messages", requireAuth, channelHandler.PostMessage)

		communities.GET("/:id/posts", optionalAuth, postHandler.ListByCommunity)
		communities.POST("/:id/posts", requireAuth, postHandler.Create)
	}

	// Invite redemption
	invites := r.Group("/api/invites")
	{
		invites.POST("/redeem", requireAuth, inviteHandler.Redeem)
		invites.POST("/:code/deactivate", requireAuth, inviteHandler.Deactivate)
	}

	// Categories
	categories := r.Group("/api/categories")
	{
		categories.GET("", categoryHandler.List)
		categories.POST("", requireAuth, categoryHandler.Create)
		categories.POST("/recalculate", requireAuth, requireOperator, categoryHandler.Recalculate)
		categories.DELETE("/:id", requireAuth, categoryHandler.Delete)
	}

	// Posts
	posts := r.Group("/api/posts")
	{
		posts.GET("/:id", optionalAuth, postHandler.Get)
		posts.PATCH("/:id", requireAuth, postHandler.Update)
		posts.DELETE("/:id", requireAuth, postHandler.Delete)
		posts.POST("/:id/upvote", requireAuth, postHandler.ToggleUpvote)
	}

	return r, nil
}
