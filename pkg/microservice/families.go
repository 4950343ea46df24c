package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/transfer"
)

// Family is a resource family whose view has state S.
type Family[S any] interface {
	Name() string
	Load(ctx context.Context, partition int, force bool) cache.Outcome
	Clear(ctx context.Context) error
	View() cache.View[S]
}

// Endpoint is a type-erased Family for routing.
type Endpoint struct {
	Name     string
	Snapshot func() any
	Load     func(ctx context.Context, partition int, force bool) cache.Outcome
	Clear    func(ctx context.Context) error
}

// NewEndpoint erases the state type of a family.
func NewEndpoint[S any](f Family[S]) Endpoint {
	return Endpoint{
		Name:     f.Name(),
		Snapshot: func() any { return f.View() },
		Load:     f.Load,
		Clear:    f.Clear,
	}
}

// Downloader materializes a receipt. Satisfied by *transfer.Downloader.
type Downloader interface {
	Download(ctx context.Context, receiptID string) (string, error)
}

// CacheServer serves the cache families over HTTP.
type CacheServer struct {
	*BaseServer
	endpoints  map[string]Endpoint
	downloader Downloader
	logger     zerolog.Logger
}

// NewCacheServer registers the family routes on a new BaseServer. downloader
// may be nil, in which case the download route is not registered.
func NewCacheServer(logger zerolog.Logger, httpPort string, downloader Downloader, endpoints ...Endpoint) *CacheServer {
	s := &CacheServer{
		BaseServer: NewBaseServer(logger, httpPort),
		endpoints:  make(map[string]Endpoint, len(endpoints)),
		downloader: downloader,
		logger:     logger.With().Str("component", "CacheServer").Logger(),
	}
	for _, e := range endpoints {
		s.endpoints[e.Name] = e
	}

	s.mux.HandleFunc("GET /v1/{family}", s.handleSnapshot)
	s.mux.HandleFunc("POST /v1/{family}/load", s.handleLoad)
	s.mux.HandleFunc("POST /v1/{family}/clear", s.handleClear)
	if downloader != nil {
		s.mux.HandleFunc("POST /v1/receipts/{id}/download", s.handleDownload)
	}
	return s
}

type loadResponse struct {
	Outcome string `json:"outcome"`
	View    any    `json:"view"`
}

type downloadResponse struct {
	Location string `json:"location"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *CacheServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, e.Snapshot())
}

// handleLoad accepts the partition as "page" or "year" and "force=true".
func (s *CacheServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	e, ok := s.endpoint(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	partition := 0
	for _, name := range []string{"page", "year"} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
			return
		}
		partition = n
		break
	}
	force, _ := strconv.ParseBool(q.Get("force"))

	outcome := e.Load(r.Context(), partition, force)
	s.writeJSON(w, http.StatusOK, loadResponse{Outcome: outcome.String(), View: e.Snapshot()})
}

func (s *CacheServer) handleClear(w http.ResponseWriter, r *http.Request) {
	e, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	if err := e.Clear(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("family", e.Name).Msg("Clear failed.")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CacheServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	location, err := s.downloader.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, transfer.ErrInProgress) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, downloadResponse{Location: location})
}

func (s *CacheServer) endpoint(w http.ResponseWriter, r *http.Request) (Endpoint, bool) {
	e, ok := s.endpoints[r.PathValue("family")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown family"})
	}
	return e, ok
}

func (s *CacheServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response.")
	}
}
