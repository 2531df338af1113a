package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/utils"
)

// StatsController provides board statistics such as member and post counts.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics for the board.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount int64
	var postCount int64
	var commentCount int64
	var viewCount int64

	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}
	if err := s.db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}
	if err := s.db.Model(&models.Post{}).Select("COALESCE(SUM(view_count),0)").Scan(&viewCount).Error; err != nil {
		viewCount = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":    userCount,
		"post_count":    postCount,
		"comment_count": commentCount,
		"view_count":    viewCount,
	})
}

// GetPostStats returns views, comment and image counts for a given post id.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	var post models.Post
	if err := s.db.Select("id", "view_count").First(&post, postID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "post not found")
		return
	}

	var commentsCount int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&commentsCount).Error; err != nil {
		commentsCount = 0
	}
	var imagesCount int64
	if err := s.db.Model(&models.PostImage{}).Where("post_id = ?", postID).Count(&imagesCount).Error; err != nil {
		imagesCount = 0
	}

	utils.Success(ctx, gin.H{
		"views":          post.ViewCount,
		"comments_count": commentsCount,
		"images_count":   imagesCount,
	})
}
