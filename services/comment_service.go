package services

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
)

// MaxCommentLength is the maximum comment length in characters, after trimming.
const MaxCommentLength = 500

// CommentService wraps comment related database operations.
type CommentService struct {
	db *gorm.DB
}

// NewCommentService creates a CommentService instance.
func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{db: db}
}

// CommentItem is a comment prepared for display to a particular viewer.
type CommentItem struct {
	ID        uint         `json:"id"`
	PostID    uint         `json:"post_id"`
	AuthorID  models.Owner `json:"author_id"`
	Nickname  string       `json:"nickname"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	CanEdit   bool         `json:"can_edit"`
}

// CommentPage is one newest-first page of comments. Page is zero-based.
type CommentPage struct {
	Items    []CommentItem `json:"items"`
	Page     int           `json:"page"`
	Size     int           `json:"size"`
	Total    int64         `json:"total"`
	LastPage int           `json:"last_page"`
}

func normalizeComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrCommentEmpty
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", ErrCommentTooLong
	}
	return content, nil
}

// Create adds a comment by userID to postID and returns the new comment id.
func (s *CommentService) Create(postID, userID uint, content string) (uint, error) {
	var count int64
	if err := s.db.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrPostNotFound
	}
	// a token can outlive its account
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrUserNotFound
	}
	content, err := normalizeComment(content)
	if err != nil {
		return 0, err
	}
	comment := models.Comment{
		PostID:  postID,
		UserID:  models.Owned(userID),
		Content: content,
	}
	if err := s.db.Create(&comment).Error; err != nil {
		return 0, err
	}
	return comment.ID, nil
}

func (s *CommentService) loadOwned(commentID, userID uint) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	if !comment.UserID.OwnedBy(userID) {
		return nil, ErrNotCommentOwner
	}
	return &comment, nil
}

// Edit replaces the content of the caller's own comment and returns its post id.
func (s *CommentService) Edit(commentID, userID uint, content string) (uint, error) {
	comment, err := s.loadOwned(commentID, userID)
	if err != nil {
		return 0, err
	}
	content, err = normalizeComment(content)
	if err != nil {
		return 0, err
	}
	err = s.db.Model(comment).Updates(map[string]interface{}{
		"content":    content,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		return 0, err
	}
	return comment.PostID, nil
}

// Delete removes the caller's own comment and returns its post id.
func (s *CommentService) Delete(commentID, userID uint) (uint, error) {
	comment, err := s.loadOwned(commentID, userID)
	if err != nil {
		return 0, err
	}
	if err := s.db.Delete(&models.Comment{}, comment.ID).Error; err != nil {
		return 0, err
	}
	return comment.PostID, nil
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

// Page returns comments of postID newest first. page is clamped to >= 0 and size to >= 1.
func (s *CommentService) Page(postID uint, page, size int, currentUserID uint) (*CommentPage, error) {
	page, size = clampPage(page, size)
	query := s.db.Model(&models.Comment{}).Where("post_id = ?", postID)
	return s.page(query, page, size, currentUserID)
}

// ListByUser returns the comments written by userID, newest first.
func (s *CommentService) ListByUser(userID uint, page, size int) (*CommentPage, error) {
	page, size = clampPage(page, size)
	query := s.db.Model(&models.Comment{}).Where("user_id = ?", userID)
	return s.page(query, page, size, userID)
}

func (s *CommentService) page(query *gorm.DB, page, size int, currentUserID uint) (*CommentPage, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var comments []models.Comment
	if err := newestFirst(query.Session(&gorm.Session{})).Offset(page * size).Limit(size).Find(&comments).Error; err != nil {
		return nil, err
	}

	owners := make([]models.Owner, len(comments))
	for i, c := range comments {
		owners[i] = c.UserID
	}
	names, err := authorNicknames(s.db, owners)
	if err != nil {
		return nil, err
	}

	items := make([]CommentItem, len(comments))
	for i, c := range comments {
		items[i] = CommentItem{
			ID:        c.ID,
			PostID:    c.PostID,
			AuthorID:  c.UserID,
			Nickname:  nicknameOf(names, c.UserID),
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			CanEdit:   c.UserID.OwnedBy(currentUserID),
		}
	}
	return &CommentPage{
		Items:    items,
		Page:     page,
		Size:     size,
		Total:    total,
		LastPage: lastPageIndex(total, size),
	}, nil
}

// PageNumberOf returns the zero-based page that holds commentID when the post's
// comments are paged newest first with pageSize. An unknown comment yields page 0.
func (s *CommentService) PageNumberOf(postID, commentID uint, pageSize int) (int, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	var ids []uint
	err := newestFirst(s.db.Model(&models.Comment{}).Where("post_id = ?", postID)).Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if id == commentID {
			return i / pageSize, nil
		}
	}
	return 0, nil
}

// LastPageIndex returns the index of the last comment page of postID.
func (s *CommentService) LastPageIndex(postID uint, size int) (int, error) {
	var total int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		return 0, err
	}
	return lastPageIndex(total, size), nil
}

// CountByPost returns the number of comments on postID.
func (s *CommentService) CountByPost(postID uint) (int64, error) {
	var total int64
	err := s.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&total).Error
	return total, err
}
