package models

import "time"

// Comment represents a reply to a post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	UserID    Owner     `gorm:"index" json:"user_id"`
	Content   string    `gorm:"size:500;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All returns every model for migration, in dependency order.
func All() []interface{} {
	return []interface{}{&User{}, &Category{}, &Post{}, &PostImage{}, &Comment{}}
}
