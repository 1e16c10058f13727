package models

import "time"

// DocumentSequence is the per prefix and month counter behind document numbers.
type DocumentSequence struct {
	Prefix     string    `gorm:"column:prefix;type:varchar(8);primaryKey"`
	Period     string    `gorm:"column:period;type:varchar(6);primaryKey"`
	LastNumber int64     `gorm:"column:last_number;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }
