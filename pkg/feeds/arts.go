package feeds

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

// Arts is the artworks feed.
type Arts = Feed[types.Artwork]

// Updates is the blog feed.
type Updates = Feed[types.Blog]

// ArtsSource fetches pages of artworks. Satisfied by *api.Client.
type ArtsSource interface {
	Artworks(ctx context.Context, page, limit int) (types.Page[types.Artwork], error)
}

// UpdatesSource fetches the blog feed. Satisfied by *api.Client.
type UpdatesSource interface {
	Blogs(ctx context.Context) (types.Page[types.Blog], error)
}

// NewArts creates the arts family. A nil store selects an in-memory store and
// a nil clock the wall clock.
func NewArts(
	source ArtsSource,
	store cache.Store[FeedKey, types.Page[types.Artwork]],
	clock cache.Clock,
	logger zerolog.Logger,
	opts ...cache.CoordinatorOption,
) (*Arts, error) {
	if source == nil {
		return nil, errors.New("arts source cannot be nil")
	}
	return newFeed[types.Artwork]("arts", source.Artworks, store, clock, logger, opts...)
}

// NewUpdates creates the updates family. The blog endpoint is not paged, so
// the requested page only affects what is reported back by the server.
func NewUpdates(
	source UpdatesSource,
	store cache.Store[FeedKey, types.Page[types.Blog]],
	clock cache.Clock,
	logger zerolog.Logger,
	opts ...cache.CoordinatorOption,
) (*Updates, error) {
	if source == nil {
		return nil, errors.New("updates source cannot be nil")
	}
	fetch := func(ctx context.Context, _, _ int) (types.Page[types.Blog], error) {
		return source.Blogs(ctx)
	}
	return newFeed[types.Blog]("updates", fetch, store, clock, logger, opts...)
}
