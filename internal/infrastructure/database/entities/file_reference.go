package entities

import "time"

type FileReference struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	UserID    string    `gorm:"type:varchar(255);not null;index"`
	Bucket    string    `gorm:"type:varchar(255);not null"`
	ObjectKey string    `gorm:"type:text;not null"`
	Filename  string    `gorm:"type:varchar(512)"`
	Mime      string    `gorm:"type:varchar(255)"`
	SizeBytes int64     `gorm:"not null;default:0"`
	Status    string    `gorm:"type:varchar(16);not null;index:idx_file_references_status_created,priority:1"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_file_references_status_created,priority:2"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (FileReference) TableName() string {
	return "file_references"
}
