// Package federation fans a single semantic query out across collections
// and merges the per-collection rankings into one globally ranked list.
package federation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"docqa/internal/embeddings"
	apperrors "docqa/internal/errors"
	"docqa/internal/models"
	"docqa/internal/ownership"
	"docqa/internal/storage"
)

// Scope selects the candidate collections of a search. An empty owner means
// public mode: every collection is eligible and the ownership filter is
// skipped entirely.
type Scope struct {
	Owner string
}

// Public reports whether the scope is unrestricted.
func (s Scope) Public() bool { return s.Owner == "" }

// Public returns the unrestricted scope.
func Public() Scope { return Scope{} }

// Options tunes the engine. Scoped searches use a larger per-collection
// top-k than public ones, which span more collections and must bound total
// work. CollectionTimeout bounds each branch so one unresponsive collection
// cannot stall the join barrier.
type Options struct {
	ScopedTopK        int
	PublicTopK        int
	CollectionTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.ScopedTopK <= 0 {
		o.ScopedTopK = 5
	}
	if o.PublicTopK <= 0 {
		o.PublicTopK = 3
	}
	if o.CollectionTimeout <= 0 {
		o.CollectionTimeout = 10 * time.Second
	}
}

// Engine is the federated query engine.
type Engine struct {
	store    storage.Store
	embedder embeddings.Provider
	filter   *ownership.Filter
	opts     Options
	logger   *zap.Logger
}

// NewEngine creates a federated query engine.
func NewEngine(store storage.Store, embedder embeddings.Provider, filter *ownership.Filter, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Engine{
		store:    store,
		embedder: embedder,
		filter:   filter,
		opts:     opts,
		logger:   logger,
	}
}

// candidate is one collection to query, with its metadata in scoped mode.
type candidate struct {
	name string
	meta map[string]any
}

// Search queries every candidate collection concurrently and returns the
// merged ranking, best (lowest distance) first, truncated to limit.
//
// Each branch is independently fault-tolerant: a failing collection logs a
// warning and contributes nothing. The join waits for every branch to
// settle, and the merge order depends only on distances and candidate
// order, never on branch completion order. An unreachable store, by
// contrast, fails the whole search: no partial result is meaningful then.
func (e *Engine) Search(ctx context.Context, query string, scope Scope, limit int) ([]models.QueryMatch, error) {
	if limit <= 0 {
		return []models.QueryMatch{}, nil
	}

	names, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.Unavailable("collection store", err)
	}

	candidates, topK, err := e.resolveCandidates(ctx, names, scope)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.QueryMatch{}, nil
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.Unavailable("embedding provider", err)
	}

	branches := make([][]models.QueryMatch, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			branches[i] = e.queryCollection(ctx, c, queryVec, topK)
		}(i, c)
	}
	wg.Wait()

	var merged []models.QueryMatch
	for _, branch := range branches {
		merged = append(merged, branch...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	if merged == nil {
		merged = []models.QueryMatch{}
	}
	return merged, nil
}

// resolveCandidates picks the collections to query and the per-collection
// top-k for the scope.
func (e *Engine) resolveCandidates(ctx context.Context, names []string, scope Scope) ([]candidate, int, error) {
	if scope.Public() {
		candidates := make([]candidate, len(names))
		for i, name := range names {
			candidates[i] = candidate{name: name}
		}
		return candidates, e.opts.PublicTopK, nil
	}

	infos, err := e.filter.FilterByOwner(ctx, names, scope.Owner)
	if err != nil {
		return nil, 0, err
	}
	candidates := make([]candidate, len(infos))
	for i, info := range infos {
		candidates[i] = candidate{name: info.Name, meta: info.Metadata.ToMap()}
	}
	return candidates, e.opts.ScopedTopK, nil
}

// queryCollection runs one branch of the fan-out. Failures, including an
// exceeded per-collection timeout, are absorbed here.
func (e *Engine) queryCollection(ctx context.Context, c candidate, queryVec []float32, topK int) []models.QueryMatch {
	branchCtx, cancel := context.WithTimeout(ctx, e.opts.CollectionTimeout)
	defer cancel()

	matches, err := e.store.Query(branchCtx, c.name, queryVec, topK)
	if err != nil {
		e.logger.Warn("collection query failed",
			zap.String("collection", c.name),
			zap.Error(err),
		)
		return nil
	}

	out := make([]models.QueryMatch, len(matches))
	for i, m := range matches {
		out[i] = models.QueryMatch{
			Text:               m.Text,
			Collection:         c.name,
			Distance:           m.Distance,
			Metadata:           m.Metadata,
			CollectionMetadata: c.meta,
		}
	}
	return out
}
