package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

const (
	feedCacheTTL           = 2 * time.Minute
	defaultCommentPageSize = 5
)

// PostController manages posts and their images.
type PostController struct {
	posts          *services.PostService
	images         *services.PostImageService
	comments       *services.CommentService
	categories     *services.CategoryService
	maxUploadBytes int64
}

// NewPostController creates a new PostController instance.
func NewPostController(posts *services.PostService, images *services.PostImageService, comments *services.CommentService,
	categories *services.CategoryService, maxUploadBytes int64) *PostController {
	return &PostController{
		posts:          posts,
		images:         images,
		comments:       comments,
		categories:     categories,
		maxUploadBytes: maxUploadBytes,
	}
}

// Home returns the newest posts as feed tiles.
func (p *PostController) Home(ctx *gin.Context) {
	cacheKey := utils.HomeFeedCachePrefix + "home"
	var cached []services.HomePost
	if utils.CacheGetJSON(cacheKey, &cached) {
		utils.Success(ctx, gin.H{"items": cached})
		return
	}

	items, err := p.posts.HomePosts()
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to list posts")
		return
	}
	utils.CacheSetJSON(cacheKey, items, feedCacheTTL)
	utils.Success(ctx, gin.H{"items": items})
}

// Feed pages the feed tiles of one category, or of all categories.
func (p *PostController) Feed(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("size"), defaultPageSize)
	category := strings.TrimSpace(ctx.Query("category"))

	cacheKey := fmt.Sprintf("%scat=%s:page=%d:size=%d", utils.HomeFeedCachePrefix, category, page, pageSize)
	var cached services.HomePostPage
	if utils.CacheGetJSON(cacheKey, &cached) {
		utils.Success(ctx, cached)
		return
	}

	result, err := p.posts.HomePostsByCategory(category, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50022, "failed to list posts")
		return
	}
	utils.CacheSetJSON(cacheKey, result, feedCacheTTL)
	utils.Success(ctx, result)
}

// Search matches the keyword against one field: title, author, category or description.
func (p *PostController) Search(ctx *gin.Context) {
	items, err := p.posts.Search(ctx.Query("keyword"), ctx.Query("type"))
	if err != nil {
		respondServiceError(ctx, err, 50023, "failed to search posts")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// GetPost returns the post detail with one page of its comments.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	userID, _ := getUserID(ctx)

	view, err := p.posts.View(postID, userID)
	if err != nil {
		respondServiceError(ctx, err, 50024, "failed to get post")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("size"), defaultCommentPageSize)
	comments, err := p.comments.Page(postID, page, pageSize, userID)
	if err != nil {
		respondServiceError(ctx, err, 50024, "failed to get post")
		return
	}
	utils.Success(ctx, gin.H{"post": view, "comments": comments})
}

type postForm struct {
	Title       string `form:"title" binding:"required"`
	Category    string `form:"category" binding:"required"`
	Description string `form:"description"`
}

// CreatePost stores a post with its images. The post is removed again when the
// images cannot be stored.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req postForm
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	uploads, err := readImageUploads(ctx, "images", p.maxUploadBytes)
	if err != nil {
		respondUploadError(ctx, err)
		return
	}
	category, err := p.categories.FindByName(req.Category)
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to create post")
		return
	}

	userID, _ := getUserID(ctx)
	post, err := p.posts.Create(userID, category.ID, req.Title, req.Description)
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to create post")
		return
	}
	if err := p.images.AddImages(post.ID, uploads); err != nil {
		if delErr := p.posts.Delete(post.ID, userID); delErr != nil {
			utils.Logger.Warn("failed to roll back post after image error",
				zap.Uint("post_id", post.ID), zap.Error(delErr))
		}
		respondServiceError(ctx, err, 50025, "failed to store images")
		return
	}

	utils.Created(ctx, gin.H{"id": post.ID})
}

// UpdatePost edits the caller's post. New images replace all existing ones;
// without new images the old ones are kept.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	var req postForm
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	uploads, err := readImageUploads(ctx, "newImages", p.maxUploadBytes)
	if err != nil {
		respondUploadError(ctx, err)
		return
	}
	category, err := p.categories.FindByName(req.Category)
	if err != nil {
		respondServiceError(ctx, err, 50026, "failed to update post")
		return
	}

	userID, _ := getUserID(ctx)
	post, err := p.posts.Update(postID, userID, category.ID, req.Title, req.Description)
	if err != nil {
		respondServiceError(ctx, err, 50026, "failed to update post")
		return
	}
	if err := p.images.ReplaceImages(post.ID, uploads); err != nil {
		respondServiceError(ctx, err, 50025, "failed to store images")
		return
	}
	utils.Success(ctx, gin.H{"id": post.ID})
}

// DeletePost removes the caller's post together with its comments and images.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	userID, _ := getUserID(ctx)
	if err := p.posts.Delete(postID, userID); err != nil {
		respondServiceError(ctx, err, 50027, "failed to delete post")
		return
	}
	utils.Success(ctx, gin.H{"message": "deleted"})
}

// ListMyPosts pages the caller's posts.
func (p *PostController) ListMyPosts(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	page, _ := parsePagination(ctx.Query("page"), "", services.UserPostsPageSize)
	result, err := p.posts.ListByUserPage(userID, page)
	if err != nil {
		respondServiceError(ctx, err, 50028, "failed to list posts")
		return
	}
	utils.Success(ctx, result)
}
