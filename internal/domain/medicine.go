package domain

import "time"

// Medicine is a tracked medicine with its consumption rate and current stock.
type Medicine struct {
	ID               int64     `json:"id,string" gorm:"primaryKey;autoIncrement"`
	Name             string    `json:"name" gorm:"size:200;uniqueIndex;not null"`
	AltName          *string   `json:"alt_name" gorm:"size:200"`        // Optional alternate (e.g. latin) name
	DailyDose        float64   `json:"daily_dose" gorm:"not null"`      // Units consumed per day
	CurrentStock     int       `json:"current_stock" gorm:"not null;default:0"`
	NotifyBeforeDays int       `json:"notify_before_days" gorm:"not null"` // Custom stock reminder threshold
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Medicine) TableName() string {
	return "medicines"
}

// DisplayName returns "Name (AltName)", or just the name.
func (m Medicine) DisplayName() string {
	if m.AltName != nil && *m.AltName != "" {
		return m.Name + " (" + *m.AltName + ")"
	}
	return m.Name
}
