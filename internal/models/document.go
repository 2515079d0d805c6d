package models

import "time"

// Размеры окна документа по умолчанию
const (
	DefaultDocumentWidth  = 600
	DefaultDocumentHeight = 400
)

// DocumentPosition - позиция окна документа на экране.
type DocumentPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document - HTML-документ, созданный инструментом create_file.
type Document struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Filename  string           `json:"filename" db:"filename"`
	Title     string           `json:"title" db:"title"`
	Content   string           `json:"content" db:"content"`
	Width     int              `json:"width" db:"width"`
	Height    int              `json:"height" db:"height"`
	Position  DocumentPosition `json:"position" db:"position"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}
