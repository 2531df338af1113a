package services

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/utils"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	// HomeFeedLimit is the number of posts on the home feed.
	HomeFeedLimit = 30
	// UserPostsPageSize is the fixed page size of a member's own post list.
	UserPostsPageSize = 10
)

// PostService wraps post related database operations.
type PostService struct {
	db      *gorm.DB
	storage ImageStorage
}

// NewPostService creates a PostService; storage is used to remove image files of deleted posts.
func NewPostService(db *gorm.DB, storage ImageStorage) *PostService {
	return &PostService{db: db, storage: storage}
}

// HomePost is a feed tile: the post and the URL of its first image, if any.
type HomePost struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// HomePostPage is one newest-first page of feed tiles.
type HomePostPage struct {
	Items    []HomePost `json:"items"`
	Page     int        `json:"page"`
	Size     int        `json:"size"`
	Total    int64      `json:"total"`
	LastPage int        `json:"last_page"`
}

// PostListItem is a post row for member pages.
type PostListItem struct {
	ID        uint         `json:"id"`
	Title     string       `json:"title"`
	Category  string       `json:"category"`
	AuthorID  models.Owner `json:"author_id"`
	Nickname  string       `json:"nickname"`
	ViewCount int          `json:"view_count"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PostListPage is one page of PostListItem.
type PostListPage struct {
	Items    []PostListItem `json:"items"`
	Page     int            `json:"page"`
	Size     int            `json:"size"`
	Total    int64          `json:"total"`
	LastPage int            `json:"last_page"`
}

// PostView is the detail page of a post for a particular viewer.
type PostView struct {
	ID              uint         `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	DescriptionHTML string       `json:"description_html"`
	CategoryID      uint         `json:"category_id"`
	Category        string       `json:"category"`
	AuthorID        models.Owner `json:"author_id"`
	Nickname        string       `json:"nickname"`
	ViewCount       int          `json:"view_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Images          []ImageItem  `json:"images"`
	IsOwner         bool         `json:"is_owner"`
}

func validatePost(title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", ErrDescriptionTooLong
	}
	return title, nil
}

func postsNewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("posts.created_at DESC").Order("posts.id DESC")
}

func (s *PostService) exists(model interface{}, id uint) (bool, error) {
	var count int64
	err := s.db.Model(model).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Get loads a post with its category.
func (s *PostService) Get(postID uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.Preload("Category").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// Create stores a new post authored by userID.
func (s *PostService) Create(userID, categoryID uint, title, description string) (*models.Post, error) {
	ok, err := s.exists(&models.User{}, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	ok, err = s.exists(&models.Category{}, categoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCategoryNotFound
	}
	title, err = validatePost(title, description)
	if err != nil {
		return nil, err
	}

	post := models.Post{
		UserID:      models.Owned(userID),
		CategoryID:  categoryID,
		Title:       title,
		Description: description,
	}
	if err := s.db.Omit("Category", "Images").Create(&post).Error; err != nil {
		return nil, err
	}
	invalidateFeeds()
	return &post, nil
}

// Update changes category, title and description of the caller's own post.
func (s *PostService) Update(postID, userID, categoryID uint, title, description string) (*models.Post, error) {
	post, err := s.Get(postID)
	if err != nil {
		return nil, err
	}
	if !post.UserID.OwnedBy(userID) {
		return nil, ErrNotPostOwner
	}
	ok, err := s.exists(&models.Category{}, categoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCategoryNotFound
	}
	title, err = validatePost(title, description)
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]interface{}{
		"category_id": categoryID,
		"title":       title,
		"description": description,
		"updated_at":  time.Now(),
	}).Error
	if err != nil {
		return nil, err
	}
	invalidateFeeds()
	return s.Get(post.ID)
}

// Delete removes the caller's own post. Rows go in a fixed order inside one
// transaction: images, comments, then the post. Image files are removed after
// commit; failures there are logged and never returned.
func (s *PostService) Delete(postID, userID uint) error {
	post, err := s.Get(postID)
	if err != nil {
		return err
	}
	if !post.UserID.OwnedBy(userID) {
		return ErrNotPostOwner
	}

	var urls []string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PostImage{}).Where("post_id = ?", post.ID).Pluck("image_url", &urls).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, post.ID).Error
	})
	if err != nil {
		return err
	}

	if s.storage != nil {
		logCleanupFailures("post delete", RemoveStoredImages(s.storage, urls))
	}
	invalidateFeeds()
	return nil
}

// HomePosts returns the newest HomeFeedLimit posts.
func (s *PostService) HomePosts() ([]HomePost, error) {
	var posts []models.Post
	if err := postsNewestFirst(s.db).Limit(HomeFeedLimit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return s.toHomePosts(posts)
}

// HomePostsByCategory pages the feed filtered by category name. A blank name,
// "전체" or "all" disables the filter.
func (s *PostService) HomePostsByCategory(category string, page, size int) (*HomePostPage, error) {
	page, size = clampPage(page, size)
	query := s.db.Model(&models.Post{})
	if !isAllCategories(category) {
		query = query.Joins("JOIN categories ON categories.id = posts.category_id").
			Where("categories.name = ?", strings.TrimSpace(category))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var posts []models.Post
	err := postsNewestFirst(query.Session(&gorm.Session{})).Select("posts.*").
		Offset(page * size).Limit(size).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	items, err := s.toHomePosts(posts)
	if err != nil {
		return nil, err
	}
	return &HomePostPage{
		Items:    items,
		Page:     page,
		Size:     size,
		Total:    total,
		LastPage: lastPageIndex(total, size),
	}, nil
}

func (s *PostService) toHomePosts(posts []models.Post) ([]HomePost, error) {
	items := make([]HomePost, len(posts))
	if len(posts) == 0 {
		return items, nil
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	var images []models.PostImage
	err := s.db.Where("post_id IN ?", ids).Order("sort_order ASC").Order("id ASC").Find(&images).Error
	if err != nil {
		return nil, err
	}
	first := make(map[uint]string, len(posts))
	for _, img := range images {
		if _, ok := first[img.PostID]; !ok {
			first[img.PostID] = img.ImageURL
		}
	}
	for i, p := range posts {
		items[i] = HomePost{ID: p.ID, Title: p.Title, CreatedAt: p.CreatedAt}
		if url, ok := first[p.ID]; ok {
			u := url
			items[i].ImageURL = &u
		}
	}
	return items, nil
}

// escapeLike escapes LIKE wildcards using '!' as the escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// Search matches keyword case-insensitively against one field: "title",
// "author" (nickname), "category", or the description by default. A blank
// keyword matches nothing. Results are feed tiles like the home feed.
func (s *PostService) Search(keyword, field string) ([]HomePost, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []HomePost{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"

	query := s.db.Model(&models.Post{}).Select("posts.*")
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "title":
		query = query.Where("LOWER(posts.title) LIKE ? ESCAPE '!'", pattern)
	case "author", "nickname":
		query = query.Joins("JOIN users ON users.id = posts.user_id").
			Where("LOWER(users.nickname) LIKE ? ESCAPE '!'", pattern)
	case "category":
		query = query.Joins("JOIN categories ON categories.id = posts.category_id").
			Where("LOWER(categories.name) LIKE ? ESCAPE '!'", pattern)
	default:
		query = query.Where("LOWER(posts.description) LIKE ? ESCAPE '!'", pattern)
	}

	var posts []models.Post
	if err := postsNewestFirst(query).Find(&posts).Error; err != nil {
		return nil, err
	}
	return s.toHomePosts(posts)
}

func (s *PostService) toListItems(posts []models.Post) ([]PostListItem, error) {
	owners := make([]models.Owner, len(posts))
	for i, p := range posts {
		owners[i] = p.UserID
	}
	names, err := authorNicknames(s.db, owners)
	if err != nil {
		return nil, err
	}
	items := make([]PostListItem, len(posts))
	for i, p := range posts {
		items[i] = PostListItem{
			ID:        p.ID,
			Title:     p.Title,
			Category:  p.Category.Name,
			AuthorID:  p.UserID,
			Nickname:  nicknameOf(names, p.UserID),
			ViewCount: p.ViewCount,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
	}
	return items, nil
}

// ListByUser returns every post of userID, newest first.
func (s *PostService) ListByUser(userID uint) ([]PostListItem, error) {
	var posts []models.Post
	err := postsNewestFirst(s.db.Where("user_id = ?", userID)).Preload("Category").Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return s.toListItems(posts)
}

// ListByUserPage pages the posts of userID with UserPostsPageSize.
func (s *PostService) ListByUserPage(userID uint, page int) (*PostListPage, error) {
	page, size := clampPage(page, UserPostsPageSize)
	total, err := s.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	var posts []models.Post
	err = postsNewestFirst(s.db.Where("user_id = ?", userID)).Preload("Category").
		Offset(page * size).Limit(size).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	items, err := s.toListItems(posts)
	if err != nil {
		return nil, err
	}
	return &PostListPage{
		Items:    items,
		Page:     page,
		Size:     size,
		Total:    total,
		LastPage: lastPageIndex(total, size),
	}, nil
}

// CountByUser returns how many posts userID has written.
func (s *PostService) CountByUser(userID uint) (int64, error) {
	var total int64
	err := s.db.Model(&models.Post{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// RecentByUser returns up to limit newest posts of userID.
func (s *PostService) RecentByUser(userID uint, limit int) ([]PostListItem, error) {
	if limit < 1 {
		limit = 1
	}
	var posts []models.Post
	err := postsNewestFirst(s.db.Where("user_id = ?", userID)).Preload("Category").Limit(limit).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return s.toListItems(posts)
}

// View loads the detail page of a post and counts the view.
func (s *PostService) View(postID, currentUserID uint) (*PostView, error) {
	post, err := s.Get(postID)
	if err != nil {
		return nil, err
	}
	err = s.db.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		return nil, err
	}
	post.ViewCount++

	images, err := imageItems(s.db, post.ID)
	if err != nil {
		return nil, err
	}
	names, err := authorNicknames(s.db, []models.Owner{post.UserID})
	if err != nil {
		return nil, err
	}
	return &PostView{
		ID:              post.ID,
		Title:           post.Title,
		Description:     post.Description,
		DescriptionHTML: utils.RenderMarkdown(post.Description),
		CategoryID:      post.CategoryID,
		Category:        post.Category.Name,
		AuthorID:        post.UserID,
		Nickname:        nicknameOf(names, post.UserID),
		ViewCount:       post.ViewCount,
		CreatedAt:       post.CreatedAt,
		UpdatedAt:       post.UpdatedAt,
		Images:          images,
		IsOwner:         post.UserID.OwnedBy(currentUserID),
	}, nil
}
