package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/config"
	"github.com/nasda-team/nasda/controllers"
	"github.com/nasda-team/nasda/middleware"
	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

// SetupRouter wires routes, middlewares, services and controllers.
// mailer delivers verification and recovery mail; storage holds uploaded images.
func SetupRouter(db *gorm.DB, mailer services.Mailer, storage *services.LocalImageStorage) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log and panic recovery go to the gin log file, or the app logger without one
	gl := utils.NewRollingFileLogger(cfg.GinPath, cfg)
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Static(storage.URLPrefix(), storage.Dir())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	codes := utils.NewCodeStore(utils.GetRedis(), "")
	userService := services.NewUserService(db, utils.NewBcryptHasher(bcrypt.DefaultCost), mailer, codes,
		time.Duration(cfg.VerificationCodeTTLMinutes)*time.Minute)
	postService := services.NewPostService(db, storage)
	imageService := services.NewPostImageService(db, storage)
	commentService := services.NewCommentService(db)
	categoryService := services.NewCategoryService(db)

	authController := controllers.NewAuthController(userService, postService, codes)
	postController := controllers.NewPostController(postService, imageService, commentService, categoryService,
		int64(cfg.UploadMaxSizeMB)<<20)
	commentController := controllers.NewCommentController(commentService)
	configController := controllers.NewConfigController(categoryService)
	statsController := controllers.NewStatsController(db)

	api := r.Group("/api/v1")
	api.Use(middleware.OptionalAuth())

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/send-email-code", authController.SendEmailCode)
	authGroup.POST("/verify-email-code", authController.VerifyEmailCode)
	authGroup.POST("/find-id", authController.FindID)
	authGroup.POST("/reset-password", authController.ResetPassword)
	authGroup.GET("/check", authController.CheckDuplicate)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)
	authGroup.POST("/password/check", middleware.AuthRequired(), authController.CheckPassword)
	authGroup.PUT("/password", middleware.AuthRequired(), authController.ChangePassword)
	authGroup.DELETE("/account", middleware.AuthRequired(), authController.DeleteAccount)

	// Public board endpoints; identity, when present, only drives ownership flags
	api.GET("/categories", configController.ListCategories)
	api.GET("/config/limits", configController.GetLimits)
	api.GET("/stats", statsController.GetStats)
	api.GET("/posts", postController.Home)
	api.GET("/posts/feed", postController.Feed)
	api.GET("/posts/search", postController.Search)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/posts/:id/stats", statsController.GetPostStats)
	api.GET("/posts/:id/comments", commentController.List)
	api.GET("/posts/:id/comments/:commentId/page", commentController.Locate)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:id", postController.UpdatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/comments", commentController.Create)
	protected.PUT("/comments/:commentId", commentController.Edit)
	protected.DELETE("/comments/:commentId", commentController.Delete)
	protected.GET("/users/me/posts", postController.ListMyPosts)
	protected.GET("/users/me/comments", commentController.ListMine)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	})

	return r
}
