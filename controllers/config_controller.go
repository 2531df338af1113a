package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/nasda-team/nasda/config"
	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

// ConfigController serves board configuration the client needs to render forms.
type ConfigController struct {
	categories *services.CategoryService
}

func NewConfigController(categories *services.CategoryService) *ConfigController {
	return &ConfigController{categories: categories}
}

// ListCategories returns the seeded categories in id order.
func (c *ConfigController) ListCategories(ctx *gin.Context) {
	list, err := c.categories.List()
	if err != nil {
		respondServiceError(ctx, err, 50060, "failed to list categories")
		return
	}
	utils.Success(ctx, gin.H{"items": list, "all": services.AllCategories})
}

// GetLimits returns input limits shared with the client.
func (c *ConfigController) GetLimits(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title_max_length":       services.MaxTitleLength,
		"description_max_length": services.MaxDescriptionLength,
		"comment_max_length":     services.MaxCommentLength,
		"upload_max_size_mb":     cfg.UploadMaxSizeMB,
		"home_feed_limit":        services.HomeFeedLimit,
		"code_ttl_minutes":       cfg.VerificationCodeTTLMinutes,
	})
}
