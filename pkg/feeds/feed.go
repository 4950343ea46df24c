// Package feeds instantiates the generic cache coordinator for the client's
// three resource families: the arts feed, the updates (blog) feed and receipts
// partitioned by year. Each family owns its merge rules; the coordinator owns
// freshness, fetching and state transitions.
package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-clientcache/pkg/api"
	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

// FeedWindow is the freshness window of the arts and updates feeds.
const FeedWindow = 10 * time.Minute

// FeedKey partitions a feed cache. Feeds cache their current page window as a
// whole, so CurrentWindow is the only key in use.
type FeedKey string

// CurrentWindow is the singleton partition of a feed.
const CurrentWindow FeedKey = "current"

// FeedRequest selects a page of a feed.
type FeedRequest struct {
	Page  int
	Limit int
}

// FeedState is the user-visible state of a feed.
type FeedState[T any] struct {
	Items      []T              `json:"items"`
	Pagination types.Pagination `json:"pagination"`
	HasMore    bool             `json:"hasMore"`
}

// PageFetcher fetches one page of a feed.
type PageFetcher[T any] func(ctx context.Context, page, limit int) (types.Page[T], error)

// Feed is a page-windowed resource family backed by a coordinator.
type Feed[T any] struct {
	coordinator *cache.Coordinator[FeedKey, FeedRequest, types.Page[T], FeedState[T]]
	limit       int
}

func newFeed[T any](
	name string,
	fetch PageFetcher[T],
	store cache.Store[FeedKey, types.Page[T]],
	clock cache.Clock,
	logger zerolog.Logger,
	opts ...cache.CoordinatorOption,
) (*Feed[T], error) {
	if fetch == nil {
		return nil, fmt.Errorf("%s: fetcher cannot be nil", name)
	}
	if store == nil {
		store = cache.NewInMemoryStore[FeedKey, types.Page[T]]()
	}
	if clock != nil {
		opts = append([]cache.CoordinatorOption{cache.WithClock(clock)}, opts...)
	}

	rules := cache.Rules[FeedKey, FeedRequest, types.Page[T], FeedState[T]]{
		Window:         FeedWindow,
		Key:            func(FeedRequest) FeedKey { return CurrentWindow },
		Empty:          emptyFeedState[T],
		Hit:            applyPage[T],
		Fetched:        applyPage[T],
		Message:        api.Message,
		FailureMessage: "Failed to fetch " + name,
		Clone:          cloneFeedState[T],
	}
	executor := func(ctx context.Context, req FeedRequest) (types.Page[T], error) {
		return fetch(ctx, req.Page, req.Limit)
	}

	coordinator, err := cache.NewCoordinator(name, store, executor, rules, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s coordinator: %w", name, err)
	}
	return &Feed[T]{coordinator: coordinator, limit: types.DefaultLimit}, nil
}

// Name returns the family name.
func (f *Feed[T]) Name() string {
	return f.coordinator.Name()
}

// Load requests a page. Pages below 1 are treated as the first page.
// The response replaces the displayed items; pages are not accumulated.
func (f *Feed[T]) Load(ctx context.Context, page int, force bool) cache.Outcome {
	if page < 1 {
		page = types.DefaultPage
	}
	return f.coordinator.Load(ctx, FeedRequest{Page: page, Limit: f.limit}, force)
}

// LoadNext fetches the page after the current one. It reports false and does
// nothing when the feed has no more pages. The feed caches a single window,
// so the next page is always fetched.
func (f *Feed[T]) LoadNext(ctx context.Context) (cache.Outcome, bool) {
	view := f.coordinator.Snapshot()
	if !view.State.HasMore {
		return cache.OutcomeHit, false
	}
	return f.Load(ctx, view.State.Pagination.Page+1, true), true
}

// Clear empties the view and the cache.
func (f *Feed[T]) Clear(ctx context.Context) error {
	return f.coordinator.Clear(ctx)
}

// SetItems replaces the displayed items without fetching.
func (f *Feed[T]) SetItems(items []T) {
	f.coordinator.Update(func(s *FeedState[T]) {
		s.Items = append([]T{}, items...)
	})
}

// View returns a copy of the current view.
func (f *Feed[T]) View() cache.View[FeedState[T]] {
	return f.coordinator.Snapshot()
}

// HasMore reports whether pages exist after p.Page.
func HasMore(p types.Pagination) bool {
	if p.Limit <= 0 {
		return false
	}
	totalPages := (p.Total + p.Limit - 1) / p.Limit
	return p.Page < totalPages
}

func emptyFeedState[T any]() FeedState[T] {
	return FeedState[T]{Items: []T{}, Pagination: types.DefaultPagination()}
}

func applyPage[T any](s *FeedState[T], _ FeedRequest, page types.Page[T]) {
	s.Items = append([]T{}, page.Items...)
	s.Pagination = normalizePagination(page.Pagination)
	s.HasMore = HasMore(s.Pagination)
}

func cloneFeedState[T any](s FeedState[T]) FeedState[T] {
	s.Items = append([]T{}, s.Items...)
	return s
}

func normalizePagination(p types.Pagination) types.Pagination {
	if p.Page < 1 {
		p.Page = types.DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = types.DefaultLimit
	}
	if p.Total < 0 {
		p.Total = 0
	}
	return p
}
