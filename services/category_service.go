package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
)

// AllCategories is the pseudo category meaning "no filter".
const AllCategories = "전체"

// CategoryService reads the seeded category table.
type CategoryService struct {
	db *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

// List returns categories in seed order.
func (s *CategoryService) List() ([]models.Category, error) {
	var categories []models.Category
	err := s.db.Order("id ASC").Find(&categories).Error
	return categories, err
}

// FindByName resolves a category name; unknown names are an invalid argument.
func (s *CategoryService) FindByName(name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnknownCategory
	}
	var category models.Category
	if err := s.db.Where("name = ?", name).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCategory
		}
		return nil, err
	}
	return &category, nil
}

// isAllCategories reports whether name selects the unfiltered feed.
func isAllCategories(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || name == AllCategories || strings.EqualFold(name, "all")
}
