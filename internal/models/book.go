package models

import "strings"

// Book represents a book in the catalog
type Book struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	PublishDate Date   `json:"publishDate"`
	ReadAlready bool   `json:"readAlready"`
}

// Clone returns an independent copy of the book.
// All fields are values, so a plain copy is enough.
func (b Book) Clone() Book {
	return b
}

// InvalidFields returns the names of required fields that are blank,
// plus publishDate when its year is outside MinYear..MaxYear.
func (b Book) InvalidFields() []string {
	var missing []string
	if strings.TrimSpace(b.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(b.Author) == "" {
		missing = append(missing, "author")
	}
	if !b.PublishDate.Valid() {
		missing = append(missing, "publishDate")
	}
	return missing
}
