package memory

import (
	"time"

	"bookcatalog/internal/models"
)

// SeedData returns example books to pre-populate the store
func SeedData() []models.Book {
	return []models.Book{
		{
			Title:       "The Go Programming Language",
			Author:      "Alan A. A. Donovan",
			PublishDate: models.NewDate(2015, time.October, 26),
			ReadAlready: true,
		},
		{
			Title:       "The Left Hand of Darkness",
			Author:      "Ursula K. Le Guin",
			PublishDate: models.NewDate(1969, time.March, 1),
		},
		{
			Title:       "Concurrency in Go",
			Author:      "Katherine Cox-Buday",
			PublishDate: models.NewDate(2017, time.August, 10),
		},
	}
}
