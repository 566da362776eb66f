package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is a whole JSON document stored under a key. Every save rewrites the body.
type Document struct {
	Key       string         `gorm:"primaryKey;column:doc_key"`
	Body      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}
