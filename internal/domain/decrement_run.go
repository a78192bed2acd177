package domain

import "time"

// DecrementRun records that the daily stock decrement ran for a calendar day.
type DecrementRun struct {
	ID      int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	Day     string    `json:"day" gorm:"size:10;uniqueIndex;not null"` // YYYY-MM-DD
	Updated int       `json:"updated" gorm:"not null"`                 // Medicines changed by the run
	RanAt   time.Time `json:"ran_at" gorm:"not null"`
}

// TableName Specify table name
func (DecrementRun) TableName() string {
	return "decrement_runs"
}
