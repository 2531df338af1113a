package models

import "time"

// Post is a board entry. UserID becomes Orphaned when the author is deleted.
type Post struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      Owner       `gorm:"index" json:"user_id"`
	CategoryID  uint        `gorm:"index;not null" json:"category_id"`
	Category    Category    `json:"category"`
	Title       string      `gorm:"size:200;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	ViewCount   int         `gorm:"not null;default:0" json:"view_count"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Images      []PostImage `gorm:"foreignKey:PostID" json:"images,omitempty"`
}

// PostImage is one stored image of a post, ordered by SortOrder.
type PostImage struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	PostID           uint   `gorm:"index;not null" json:"post_id"`
	ImageURL         string `gorm:"size:512;not null" json:"image_url"`
	SortOrder        int    `gorm:"not null;default:0" json:"sort_order"`
	IsRepresentative bool   `gorm:"not null;default:false" json:"is_representative"`
}

// Category is seeded reference data; posts reference exactly one.
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;not null;uniqueIndex" json:"name"`
}
