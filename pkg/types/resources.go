// Package types holds the payload types shared by the fetch layer, the cache
// families and the invalidation pipeline.
package types

import "time"

const (
	// DefaultPage is the page used when the server omits pagination.
	DefaultPage = 1
	// DefaultLimit is the page size used when the server omits pagination.
	DefaultLimit = 20
)

// Pagination is the page window reported by paginated endpoints.
// Invariant: Total >= 0.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages,omitempty"`
	HasNext     bool `json:"hasNext,omitempty"`
	HasPrevious bool `json:"hasPrevious,omitempty"`
}

// DefaultPagination returns the window substituted when a response carries no
// pagination block: page 1, limit 20, total 0.
func DefaultPagination() Pagination {
	return Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

// Page is one fetched window of a paginated feed. It is the payload the arts
// and updates caches store per partition.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Artwork is a single entry of the arts feed.
type Artwork struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Blog is a single entry of the updates feed.
type Blog struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}

// Receipt is a donation receipt issued for a given year.
type Receipt struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Description string    `json:"description,omitempty"`
	IssuedAt    time.Time `json:"issuedAt,omitempty"`
	Year        int       `json:"year,omitempty"`
}

// ReceiptsPage is the payload the receipts cache stores per year.
type ReceiptsPage struct {
	Receipts []Receipt `json:"receipts"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
