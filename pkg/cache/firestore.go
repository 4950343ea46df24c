package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreEntry is the document shape of an Entry.
type firestoreEntry[P any] struct {
	Payload   P         `firestore:"payload"`
	FetchedAt time.Time `firestore:"fetched_at"`
}

// FirestoreStore is a Store that keeps one document per partition key in a
// Firestore collection. Suited to low volume deployments that want entries to
// survive a restart; use RedisStore for anything busier.
type FirestoreStore[K comparable, P any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new FirestoreStore. The client's lifecycle is
// managed by the caller.
func NewFirestoreStore[K comparable, P any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore[K, P], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore[K, P]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Str("collection", cfg.CollectionName).Logger(),
	}, nil
}

// Get reads the document for key. A missing document is not an error.
func (s *FirestoreStore[K, P]) Get(ctx context.Context, key K) (*Entry[P], error) {
	stringKey := fmt.Sprintf("%v", key)
	docSnap, err := s.client.Collection(s.collectionName).Doc(stringKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var doc firestoreEntry[P]
	if err := docSnap.DataTo(&doc); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to map Firestore document data.")
		return nil, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}
	return &Entry[P]{Payload: doc.Payload, FetchedAt: doc.FetchedAt}, nil
}

// Put overwrites the document for key.
func (s *FirestoreStore[K, P]) Put(ctx context.Context, key K, payload P, now time.Time) error {
	stringKey := fmt.Sprintf("%v", key)
	_, err := s.client.Collection(s.collectionName).Doc(stringKey).Set(ctx, firestoreEntry[P]{Payload: payload, FetchedAt: now})
	if err != nil {
		return fmt.Errorf("firestore set for %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Stored entry in Firestore.")
	return nil
}

// Clear deletes every document in the collection.
func (s *FirestoreStore[K, P]) Clear(ctx context.Context) error {
	iter := s.client.Collection(s.collectionName).DocumentRefs(ctx)
	deleted := 0
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore list for %s: %w", s.collectionName, err)
		}
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete for %s: %w", ref.ID, err)
		}
		deleted++
	}
	s.logger.Debug().Int("documents", deleted).Msg("Cleared Firestore partitions.")
	return nil
}
