package models

import "gorm.io/gorm"

// Chat is owned by the user who created it. Only the author may delete it.
type Chat struct {
	gorm.Model
	AuthorID     uint   `gorm:"column:author_id;not null" json:"author_id"`
	Author       *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Participants []User `gorm:"many2many:chat_participants" json:"participants,omitempty"`
}

func (Chat) TableName() string {
	return "chats"
}
