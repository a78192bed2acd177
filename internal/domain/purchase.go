package domain

import "time"

// Purchase is an immutable stock adjustment record. Positive quantities are
// restocks, negative ones are corrections.
type Purchase struct {
	ID          int64     `json:"id,string" csv:"id" gorm:"primaryKey;autoIncrement:false"`
	MedicineID  int64     `json:"medicine_id,string" csv:"medicine_id" gorm:"index;not null"`
	Quantity    int       `json:"quantity" csv:"quantity" gorm:"not null"`
	PurchasedAt time.Time `json:"purchased_at" csv:"purchased_at" gorm:"index;not null"`
}

// TableName Specify table name
func (Purchase) TableName() string {
	return "purchases"
}
