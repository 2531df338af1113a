package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

// CommentController serves comment endpoints.
type CommentController struct {
	comments *services.CommentService
}

func NewCommentController(comments *services.CommentService) *CommentController {
	return &CommentController{comments: comments}
}

type commentRequest struct {
	Content string `json:"content"`
}

// List pages the comments of a post, newest first.
func (c *CommentController) List(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("size"), defaultCommentPageSize)
	userID, _ := getUserID(ctx)
	result, err := c.comments.Page(postID, page, pageSize, userID)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to list comments")
		return
	}
	utils.Success(ctx, result)
}

// Create adds a comment and reports the page that shows it.
func (c *CommentController) Create(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	var req commentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	commentID, err := c.comments.Create(postID, userID, req.Content)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to create comment")
		return
	}
	_, pageSize := parsePagination("", ctx.Query("size"), defaultCommentPageSize)
	page, err := c.comments.PageNumberOf(postID, commentID, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to create comment")
		return
	}
	utils.Created(ctx, gin.H{"id": commentID, "post_id": postID, "page": page})
}

// Edit replaces the content of the caller's comment.
func (c *CommentController) Edit(ctx *gin.Context) {
	commentID, ok := parseIDParam(ctx, "commentId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid comment id")
		return
	}
	var req commentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid request payload")
		return
	}
	userID, _ := getUserID(ctx)
	postID, err := c.comments.Edit(commentID, userID, req.Content)
	if err != nil {
		respondServiceError(ctx, err, 50032, "failed to edit comment")
		return
	}
	utils.Success(ctx, gin.H{"id": commentID, "post_id": postID})
}

// Delete removes the caller's comment.
func (c *CommentController) Delete(ctx *gin.Context) {
	commentID, ok := parseIDParam(ctx, "commentId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid comment id")
		return
	}
	userID, _ := getUserID(ctx)
	postID, err := c.comments.Delete(commentID, userID)
	if err != nil {
		respondServiceError(ctx, err, 50033, "failed to delete comment")
		return
	}
	utils.Success(ctx, gin.H{"id": commentID, "post_id": postID})
}

// Locate returns the zero-based page holding a comment.
func (c *CommentController) Locate(ctx *gin.Context) {
	postID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid post id")
		return
	}
	commentID, ok := parseIDParam(ctx, "commentId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid comment id")
		return
	}
	_, pageSize := parsePagination("", ctx.Query("size"), defaultCommentPageSize)
	page, err := c.comments.PageNumberOf(postID, commentID, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50034, "failed to locate comment")
		return
	}
	utils.Success(ctx, gin.H{"page": page, "size": pageSize})
}

// ListMine pages the caller's own comments across all posts.
func (c *CommentController) ListMine(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("size"), defaultPageSize)
	userID, _ := getUserID(ctx)
	result, err := c.comments.ListByUser(userID, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50035, "failed to list comments")
		return
	}
	utils.Success(ctx, result)
}
