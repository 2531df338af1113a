package services

import (
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
)

// ImageItem is one image of a post in display order.
type ImageItem struct {
	ID        uint   `json:"id"`
	URL       string `json:"url"`
	SortOrder int    `json:"sort_order"`
}

// PostImageService manages the ordered image set of posts.
type PostImageService struct {
	db      *gorm.DB
	storage ImageStorage
}

func NewPostImageService(db *gorm.DB, storage ImageStorage) *PostImageService {
	return &PostImageService{db: db, storage: storage}
}

// storeBatch writes every non-empty upload and builds its row. Empty entries
// take no order slot. On failure the files already written are removed.
func (s *PostImageService) storeBatch(postID uint, files []*ImageUpload) ([]models.PostImage, []string, error) {
	var (
		rows []models.PostImage
		urls []string
	)
	for _, f := range files {
		if f.IsEmpty() {
			continue
		}
		url, err := s.storage.Store(f)
		if err != nil {
			logCleanupFailures("image batch rollback", RemoveStoredImages(s.storage, urls))
			return nil, nil, err
		}
		urls = append(urls, url)
		rows = append(rows, models.PostImage{
			PostID:           postID,
			ImageURL:         url,
			SortOrder:        len(rows),
			IsRepresentative: len(rows) == 0,
		})
	}
	return rows, urls, nil
}

// AddImages stores files and attaches them to postID in upload order. A nil or
// empty list is a no-op. Cached feeds are dropped once the rows are committed.
func (s *PostImageService) AddImages(postID uint, files []*ImageUpload) error {
	if !hasUpload(files) {
		return nil
	}
	rows, urls, err := s.storeBatch(postID, files)
	if err != nil {
		return err
	}
	if err := s.db.Create(&rows).Error; err != nil {
		logCleanupFailures("image insert rollback", RemoveStoredImages(s.storage, urls))
		return err
	}
	invalidateFeeds()
	return nil
}

// ReplaceImages swaps the whole image set of postID for files. Nothing happens
// unless at least one file is non-empty. Old rows are replaced in one
// transaction; old files are removed afterwards, best-effort.
func (s *PostImageService) ReplaceImages(postID uint, files []*ImageUpload) error {
	if !hasUpload(files) {
		return nil
	}
	oldURLs, err := s.ImageURLs(postID)
	if err != nil {
		return err
	}
	rows, newURLs, err := s.storeBatch(postID, files)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostImage{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		logCleanupFailures("image replace rollback", RemoveStoredImages(s.storage, newURLs))
		return err
	}

	invalidateFeeds()
	logCleanupFailures("image replace", RemoveStoredImages(s.storage, oldURLs))
	return nil
}

// ImageURLs returns the image URLs of postID in display order.
func (s *PostImageService) ImageURLs(postID uint) ([]string, error) {
	var urls []string
	err := s.db.Model(&models.PostImage{}).Where("post_id = ?", postID).
		Order("sort_order ASC").Order("id ASC").Pluck("image_url", &urls).Error
	return urls, err
}

// ImageItems returns the images of postID in display order.
func (s *PostImageService) ImageItems(postID uint) ([]ImageItem, error) {
	return imageItems(s.db, postID)
}

func imageItems(db *gorm.DB, postID uint) ([]ImageItem, error) {
	var images []models.PostImage
	err := db.Where("post_id = ?", postID).Order("sort_order ASC").Order("id ASC").Find(&images).Error
	if err != nil {
		return nil, err
	}
	items := make([]ImageItem, len(images))
	for i, img := range images {
		items[i] = ImageItem{ID: img.ID, URL: img.ImageURL, SortOrder: img.SortOrder}
	}
	return items, nil
}
