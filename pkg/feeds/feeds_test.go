package feeds_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-clientcache/pkg/api"
	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/feeds"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockSource is a hand-written test double for all three sources.
type mockSource struct {
	mu            sync.Mutex
	artworkCalls  []int
	blogCalls     int
	receiptCalls  []int
	total         int
	err           error
	receiptsByYrs map[int][]types.Receipt
}

func (m *mockSource) Artworks(_ context.Context, page, limit int) (types.Page[types.Artwork], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artworkCalls = append(m.artworkCalls, page)
	if m.err != nil {
		return types.Page[types.Artwork]{}, m.err
	}
	return types.Page[types.Artwork]{
		Items:      []types.Artwork{{ID: fmt.Sprintf("art-%d", page)}},
		Pagination: types.Pagination{Page: page, Limit: limit, Total: m.total},
	}, nil
}

func (m *mockSource) Blogs(_ context.Context) (types.Page[types.Blog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blogCalls++
	if m.err != nil {
		return types.Page[types.Blog]{}, m.err
	}
	return types.Page[types.Blog]{Items: []types.Blog{{ID: "b1"}}}, nil
}

func (m *mockSource) Receipts(_ context.Context, year int) (types.ReceiptsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptCalls = append(m.receiptCalls, year)
	if m.err != nil {
		return types.ReceiptsPage{}, m.err
	}
	receipts := m.receiptsByYrs[year]
	return types.ReceiptsPage{Receipts: receipts, Total: len(receipts), Limit: 50}, nil
}

func (m *mockSource) artworkCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artworkCalls)
}

func (m *mockSource) receiptCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receiptCalls)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.July, 14, 8, 0, 0, 0, time.UTC)}
}

func TestArts_CacheWindow(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		age       time.Duration
		wantCalls int
		want      cache.Outcome
	}{
		{name: "9 minutes old is a hit", age: 9 * time.Minute, wantCalls: 1, want: cache.OutcomeHit},
		{name: "11 minutes old is a miss", age: 11 * time.Minute, wantCalls: 2, want: cache.OutcomeFetched},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			source := &mockSource{total: 45}
			clock := newClock()
			arts, err := feeds.NewArts(source, nil, clock, zerolog.Nop())
			require.NoError(t, err)

			require.Equal(t, cache.OutcomeFetched, arts.Load(ctx, 1, false))
			clock.Advance(tc.age)

			assert.Equal(t, tc.want, arts.Load(ctx, 1, false))
			assert.Equal(t, tc.wantCalls, source.artworkCallCount())
		})
	}
}

func TestArts_ReplaceOnFetch(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{total: 45}
	arts, err := feeds.NewArts(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	arts.Load(ctx, 1, true)
	arts.Load(ctx, 2, true)

	view := arts.View()
	require.Len(t, view.State.Items, 1)
	assert.Equal(t, "art-2", view.State.Items[0].ID, "page 2 replaces page 1")
	assert.Equal(t, 2, view.State.Pagination.Page)
}

func TestArts_HasMoreAfterFetch(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		total int
		page  int
		want  bool
	}{
		{total: 45, page: 1, want: true},
		{total: 45, page: 2, want: true},
		{total: 45, page: 3, want: false},
		{total: 40, page: 2, want: false},
		{total: 0, page: 1, want: false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("total %d page %d", tc.total, tc.page), func(t *testing.T) {
			source := &mockSource{total: tc.total}
			arts, err := feeds.NewArts(source, nil, newClock(), zerolog.Nop())
			require.NoError(t, err)

			arts.Load(ctx, tc.page, true)

			state := arts.View().State
			assert.Equal(t, tc.want, state.HasMore)
			assert.Equal(t, feeds.HasMore(state.Pagination), state.HasMore)
		})
	}
}

func TestArts_LoadNext(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{total: 30}
	arts, err := feeds.NewArts(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)
	arts.Load(ctx, 1, false)

	outcome, ok := arts.LoadNext(ctx)
	require.True(t, ok)
	assert.Equal(t, cache.OutcomeFetched, outcome)
	assert.Equal(t, 2, arts.View().State.Pagination.Page)

	_, ok = arts.LoadNext(ctx)
	assert.False(t, ok, "page 2 of 2 is the last")
	assert.Equal(t, 2, source.artworkCallCount())
}

func TestArts_FailureKeepsItems(t *testing.T) {
	ctx := context.Background()

	t.Run("Server message is surfaced", func(t *testing.T) {
		source := &mockSource{err: &api.Error{Kind: api.KindServer, Message: "Session expired"}}
		arts, err := feeds.NewArts(source, nil, newClock(), zerolog.Nop())
		require.NoError(t, err)
		arts.SetItems([]types.Artwork{{ID: "a"}, {ID: "b"}, {ID: "c"}})

		assert.Equal(t, cache.OutcomeRejected, arts.Load(ctx, 1, true))

		view := arts.View()
		assert.Len(t, view.State.Items, 3)
		assert.Equal(t, "Session expired", view.Error)
	})

	t.Run("Missing message falls back to the family default", func(t *testing.T) {
		source := &mockSource{err: &api.Error{Kind: api.KindServer}}
		arts, err := feeds.NewArts(source, nil, newClock(), zerolog.Nop())
		require.NoError(t, err)

		arts.Load(ctx, 1, true)

		assert.Equal(t, "Failed to fetch arts", arts.View().Error)
	})
}

func TestUpdates_LoadAndClear(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{}
	updates, err := feeds.NewUpdates(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	updates.Load(ctx, 1, false)
	updates.Load(ctx, 1, false)
	assert.Equal(t, 1, source.blogCalls)

	view := updates.View()
	require.Len(t, view.State.Items, 1)
	assert.Equal(t, types.DefaultPagination(), view.State.Pagination, "missing pagination is defaulted")

	require.NoError(t, updates.Clear(ctx))
	assert.Empty(t, updates.View().State.Items)

	updates.Load(ctx, 1, false)
	assert.Equal(t, 2, source.blogCalls)
}

func TestReceipts_YearSwitchScenario(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{receiptsByYrs: map[int][]types.Receipt{
		2025: {{ID: "r1", Year: 2025}},
		2024: {{ID: "r0", Year: 2024}},
	}}
	clock := newClock()
	receipts, err := feeds.NewReceipts(source, nil, clock, zerolog.Nop())
	require.NoError(t, err)

	// Empty cache: fetches and fills the year window.
	require.Equal(t, cache.OutcomeFetched, receipts.Load(ctx, 2025, false))
	state := receipts.View().State
	assert.Equal(t, []int{2025, 2026, 2027, 2028, 2029, 2030}, state.Years)
	assert.Equal(t, 2025, state.SelectedYear)
	assert.Equal(t, 1, source.receiptCallCount())

	// Within 30 minutes: a hit.
	clock.Advance(29 * time.Minute)
	assert.Equal(t, cache.OutcomeHit, receipts.Load(ctx, 2025, false))
	assert.Equal(t, 1, source.receiptCallCount())

	// Forced: always fetches.
	assert.Equal(t, cache.OutcomeFetched, receipts.Load(ctx, 2025, true))
	assert.Equal(t, 2, source.receiptCallCount())
}

func TestReceipts_YearsArePartitioned(t *testing.T) {
	ctx := context.Background()
	source := &mockSource{receiptsByYrs: map[int][]types.Receipt{
		2025: {{ID: "r1"}},
		2024: {{ID: "r0"}, {ID: "r00"}},
	}}
	receipts, err := feeds.NewReceipts(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	receipts.Load(ctx, 2025, false)
	receipts.Load(ctx, 2024, false)
	require.Equal(t, 2, source.receiptCallCount())
	years := receipts.View().State.Years

	// Switching back to 2025 is a hit that still updates the selection.
	assert.Equal(t, cache.OutcomeHit, receipts.Load(ctx, 2025, false))
	state := receipts.View().State
	assert.Equal(t, 2025, state.SelectedYear)
	assert.Equal(t, "r1", state.Items[0].ID)
	assert.Equal(t, years, state.Years, "the year window is computed once")
}

func TestReceipts_DefaultYear(t *testing.T) {
	source := &mockSource{}
	receipts, err := feeds.NewReceipts(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	receipts.Load(context.Background(), 0, false)

	assert.Equal(t, []int{2025}, source.receiptCalls)
}

func TestReceipts_TransferSuppression(t *testing.T) {
	receipts, err := feeds.NewReceipts(&mockSource{}, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	t.Run("Same id twice", func(t *testing.T) {
		first := receipts.StartTransfer("R1")
		second := receipts.StartTransfer("R1")
		assert.Equal(t, []bool{true, false}, []bool{first, second})
		receipts.EndTransfer()
	})

	t.Run("Different ids", func(t *testing.T) {
		first := receipts.StartTransfer("R1")
		second := receipts.StartTransfer("R2")
		assert.Equal(t, []bool{true, true}, []bool{first, second})
		assert.Equal(t, "R2", receipts.View().State.DownloadingID)
		receipts.EndTransfer()
	})

	t.Run("EndTransfer always resets", func(t *testing.T) {
		receipts.EndTransfer()
		assert.Empty(t, receipts.View().State.DownloadingID)
		assert.True(t, receipts.StartTransfer("R1"))
		receipts.EndTransfer()
	})
}

func TestReceipts_Setters(t *testing.T) {
	receipts, err := feeds.NewReceipts(&mockSource{}, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	receipts.SetItems([]types.Receipt{{ID: "x"}})
	receipts.SetSelectedYear(2027)
	receipts.SetDownloadingID("x")

	state := receipts.View().State
	assert.Equal(t, []types.Receipt{{ID: "x"}}, state.Items)
	assert.Equal(t, 2027, state.SelectedYear)
	assert.Equal(t, "x", state.DownloadingID)
}

func TestReceipts_CanceledLoadIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &mockSource{err: fmt.Errorf("%w: %w", api.ErrCanceled, context.Canceled)}
	receipts, err := feeds.NewReceipts(source, nil, newClock(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, cache.OutcomeCanceled, receipts.Load(ctx, 2025, false))
	assert.Empty(t, receipts.View().Error)
}

func TestHasMore(t *testing.T) {
	assert.True(t, feeds.HasMore(types.Pagination{Page: 1, Limit: 20, Total: 21}))
	assert.False(t, feeds.HasMore(types.Pagination{Page: 1, Limit: 20, Total: 20}))
	assert.False(t, feeds.HasMore(types.Pagination{Page: 1, Limit: 0, Total: 100}))
}

func TestNewFamilies_RequireSource(t *testing.T) {
	_, err := feeds.NewArts(nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = feeds.NewUpdates(nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = feeds.NewReceipts(nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
