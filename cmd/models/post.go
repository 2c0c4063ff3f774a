package models

import "gorm.io/gorm"

type Post struct {
	gorm.Model
	Title    string `gorm:"column:title;size:255;not null" json:"title"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`
	Image    string `gorm:"column:image;size:500" json:"image,omitempty"`
	AuthorID uint   `gorm:"column:author_id;not null" json:"author_id"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	// One comment whose parent is this post. Reads go through the post
	// repository, which always resolves it together with Author.
	RootComment *Comment `gorm:"foreignKey:ParentID" json:"root_comment,omitempty"`
}

type Comment struct {
	gorm.Model
	ParentID uint   `gorm:"column:parent_id;not null" json:"parent_id"`
	AuthorID uint   `gorm:"column:author_id;not null" json:"author_id"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}
