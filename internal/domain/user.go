package domain

import "time"

// User is a chat identity that receives reminders.
type User struct {
	ID        int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ChatID    string    `json:"chat_id" gorm:"size:64;uniqueIndex;not null"`
	FirstName string    `json:"first_name" gorm:"size:200"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (User) TableName() string {
	return "users"
}
