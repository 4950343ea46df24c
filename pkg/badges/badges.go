// Package badges holds the pure selectors derived from a member's badge list.
// None of them fetch or cache; they are recomputed from their input on demand.
package badges

import (
	"slices"
	"time"
)

// Category tags a badge.
type Category string

const (
	CategoryGrowth    Category = "growth"
	CategoryCommunity Category = "community"
	CategoryArt       Category = "art"
	CategoryImpact    Category = "impact"
)

// Badge is an award shown on a member's profile.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Category    Category  `json:"category"`
	Viewed      bool      `json:"viewed"`
	AwardedAt   time.Time `json:"awardedAt"`
}

// Unviewed returns the badges the member has not opened yet.
func Unviewed(badges []Badge) []Badge {
	return filter(badges, func(b Badge) bool { return !b.Viewed })
}

// ByCategory returns the badges tagged with category.
func ByCategory(badges []Badge, category Category) []Badge {
	return filter(badges, func(b Badge) bool { return b.Category == category })
}

// Growth returns the growth badges.
func Growth(badges []Badge) []Badge { return ByCategory(badges, CategoryGrowth) }

// Community returns the community badges.
func Community(badges []Badge) []Badge { return ByCategory(badges, CategoryCommunity) }

// Art returns the art badges.
func Art(badges []Badge) []Badge { return ByCategory(badges, CategoryArt) }

// Impact returns the impact badges.
func Impact(badges []Badge) []Badge { return ByCategory(badges, CategoryImpact) }

// Latest returns the most recently awarded badge. Ties keep input order.
func Latest(badges []Badge) (Badge, bool) {
	if len(badges) == 0 {
		return Badge{}, false
	}
	sorted := slices.Clone(badges)
	slices.SortStableFunc(sorted, func(a, b Badge) int {
		return b.AwardedAt.Compare(a.AwardedAt)
	})
	return sorted[0], true
}

// LatestIn returns the most recently awarded badge of category.
func LatestIn(badges []Badge, category Category) (Badge, bool) {
	return Latest(ByCategory(badges, category))
}

func filter(badges []Badge, keep func(Badge) bool) []Badge {
	out := make([]Badge, 0, len(badges))
	for _, b := range badges {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}
