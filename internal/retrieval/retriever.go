package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benvon/mentra/internal/localstore"
)

const (
	// DefaultLimit is the number of memories returned when the caller passes 0.
	DefaultLimit = 5
	// DefaultThreshold is the minimum similarity the companion asks for.
	DefaultThreshold = 0.7
)

// Source is the subset of the local store the retriever reads.
type Source interface {
	EachEmbedding(ctx context.Context, fn func(localstore.Embedding) error) error
	GetReflection(ctx context.Context, id int64) (localstore.Reflection, error)
	ClosestReflection(ctx context.Context, domain string, ts time.Time) (localstore.Reflection, error)
}

var _ Source = (*localstore.Store)(nil)

// Match is a stored embedding close to the query, with the reflection that
// produced it. Reflection is nil when the originating record no longer exists.
type Match struct {
	EmbeddingID int64
	Domain      string
	Timestamp   time.Time
	Similarity  float64
	Reflection  *localstore.Reflection
}

// Retriever performs a linear similarity scan over the local store.
type Retriever struct {
	source Source
}

// NewRetriever creates a Retriever reading from source.
func NewRetriever(source Source) *Retriever {
	return &Retriever{source: source}
}

type candidate struct {
	id           int64
	reflectionID *int64
	domain       string
	ts           time.Time
	score        float64
}

// FindSimilar returns up to limit embeddings whose cosine similarity to query
// is at least threshold, most similar first. Equal scores keep id order.
// limit <= 0 selects DefaultLimit. threshold is used as given, so 0 or a
// negative value keeps orthogonal and opposed vectors too.
func (r *Retriever) FindSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(query) == 0 {
		return nil, nil
	}

	// Scan first, join after: the store cannot serve a lookup while the
	// embedding cursor is open.
	var candidates []candidate
	err := r.source.EachEmbedding(ctx, func(e localstore.Embedding) error {
		score := CosineSimilarity(query, e.Vector)
		if score < threshold {
			return nil
		}
		candidates = append(candidates, candidate{
			id:           e.ID,
			reflectionID: e.ReflectionID,
			domain:       e.Domain,
			ts:           e.Timestamp,
			score:        score,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning embeddings: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		reflection, err := r.join(ctx, c)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			EmbeddingID: c.id,
			Domain:      c.domain,
			Timestamp:   c.ts,
			Similarity:  c.score,
			Reflection:  reflection,
		})
	}
	return matches, nil
}

// join resolves the reflection behind an embedding: by its reflection id when
// recorded, otherwise the reflection in the same domain closest in time.
func (r *Retriever) join(ctx context.Context, c candidate) (*localstore.Reflection, error) {
	var (
		reflection localstore.Reflection
		err        error
	)
	if c.reflectionID != nil {
		reflection, err = r.source.GetReflection(ctx, *c.reflectionID)
	} else {
		reflection, err = r.source.ClosestReflection(ctx, c.domain, c.ts)
	}
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("joining embedding %d: %w", c.id, err)
	}
	return &reflection, nil
}
