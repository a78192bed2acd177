package domain

import "time"

// Prescription holds the expiry date of the prescription for one medicine.
type Prescription struct {
	ID         int64     `json:"id,string" gorm:"primaryKey;autoIncrement"`
	MedicineID int64     `json:"medicine_id,string" gorm:"uniqueIndex;not null"`
	ExpiryDate string    `json:"expiry_date" gorm:"size:10;not null"` // YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Prescription) TableName() string {
	return "prescriptions"
}
