package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-clientcache/pkg/api"
	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

const (
	// ReceiptsWindow is the freshness window of each receipts year.
	ReceiptsWindow = 30 * time.Minute
	// YearsShown is the number of selectable years, starting at the current one.
	YearsShown = 6
)

// ReceiptsRequest selects a receipts year.
type ReceiptsRequest struct {
	Year int
}

// ReceiptsState is the user-visible state of the receipts family.
// DownloadingID is empty when no transfer is active.
type ReceiptsState struct {
	Items         []types.Receipt `json:"items"`
	Total         int             `json:"total"`
	Years         []int           `json:"years"`
	SelectedYear  int             `json:"selectedYear,omitempty"`
	DownloadingID string          `json:"downloadingId,omitempty"`
}

// ReceiptsSource fetches the receipts of a year. Satisfied by *api.Client.
type ReceiptsSource interface {
	Receipts(ctx context.Context, year int) (types.ReceiptsPage, error)
}

// Receipts is the year-partitioned receipts family. It also tracks which
// receipt, if any, is being downloaded.
type Receipts struct {
	coordinator *cache.Coordinator[int, ReceiptsRequest, types.ReceiptsPage, ReceiptsState]
	clock       cache.Clock
}

// NewReceipts creates the receipts family. A nil store selects an in-memory
// store and a nil clock the wall clock.
func NewReceipts(
	source ReceiptsSource,
	store cache.Store[int, types.ReceiptsPage],
	clock cache.Clock,
	logger zerolog.Logger,
	opts ...cache.CoordinatorOption,
) (*Receipts, error) {
	if source == nil {
		return nil, errors.New("receipts source cannot be nil")
	}
	if store == nil {
		store = cache.NewInMemoryStore[int, types.ReceiptsPage]()
	}
	if clock == nil {
		clock = cache.SystemClock{}
	}
	r := &Receipts{clock: clock}

	rules := cache.Rules[int, ReceiptsRequest, types.ReceiptsPage, ReceiptsState]{
		Window:         ReceiptsWindow,
		Key:            func(req ReceiptsRequest) int { return req.Year },
		Empty:          emptyReceiptsState,
		Hit:            r.apply,
		Fetched:        r.apply,
		Message:        api.Message,
		FailureMessage: "Failed to fetch receipts",
		Clone:          cloneReceiptsState,
	}
	executor := func(ctx context.Context, req ReceiptsRequest) (types.ReceiptsPage, error) {
		return source.Receipts(ctx, req.Year)
	}

	opts = append([]cache.CoordinatorOption{cache.WithClock(clock)}, opts...)
	coordinator, err := cache.NewCoordinator("receipts", store, executor, rules, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipts coordinator: %w", err)
	}
	r.coordinator = coordinator
	return r, nil
}

// Name returns the family name.
func (r *Receipts) Name() string {
	return r.coordinator.Name()
}

// Load requests the receipts of year. Year 0 selects the current year.
func (r *Receipts) Load(ctx context.Context, year int, force bool) cache.Outcome {
	if year == 0 {
		year = r.clock.Now().Year()
	}
	return r.coordinator.Load(ctx, ReceiptsRequest{Year: year}, force)
}

// Clear empties the view and every cached year.
func (r *Receipts) Clear(ctx context.Context) error {
	return r.coordinator.Clear(ctx)
}

// View returns a copy of the current view.
func (r *Receipts) View() cache.View[ReceiptsState] {
	return r.coordinator.Snapshot()
}

// SetItems replaces the displayed receipts without fetching.
func (r *Receipts) SetItems(items []types.Receipt) {
	r.coordinator.Update(func(s *ReceiptsState) {
		s.Items = append([]types.Receipt{}, items...)
	})
}

// SetSelectedYear changes the selected year without fetching.
func (r *Receipts) SetSelectedYear(year int) {
	r.coordinator.Update(func(s *ReceiptsState) {
		s.SelectedYear = year
	})
}

// SetDownloadingID overwrites the transfer marker. Prefer StartTransfer.
func (r *Receipts) SetDownloadingID(id string) {
	r.coordinator.Update(func(s *ReceiptsState) {
		s.DownloadingID = id
	})
}

// StartTransfer marks id as downloading. It returns false, changing nothing,
// when id is already the active transfer. Transfers of different ids are not
// serialized: a new id replaces the marker.
func (r *Receipts) StartTransfer(id string) bool {
	granted := false
	r.coordinator.Update(func(s *ReceiptsState) {
		if s.DownloadingID == id {
			return
		}
		s.DownloadingID = id
		granted = true
	})
	return granted
}

// EndTransfer clears the transfer marker.
func (r *Receipts) EndTransfer() {
	r.SetDownloadingID("")
}

func (r *Receipts) apply(s *ReceiptsState, req ReceiptsRequest, page types.ReceiptsPage) {
	s.Items = append([]types.Receipt{}, page.Receipts...)
	s.Total = page.Total
	s.SelectedYear = req.Year
	if len(s.Years) == 0 {
		s.Years = yearsFrom(r.clock.Now().Year())
	}
}

func yearsFrom(first int) []int {
	years := make([]int, YearsShown)
	for i := range years {
		years[i] = first + i
	}
	return years
}

func emptyReceiptsState() ReceiptsState {
	return ReceiptsState{Items: []types.Receipt{}}
}

func cloneReceiptsState(s ReceiptsState) ReceiptsState {
	s.Items = append([]types.Receipt{}, s.Items...)
	s.Years = append([]int(nil), s.Years...)
	return s
}
