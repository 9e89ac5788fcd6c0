// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/agenthub-foundation/agenthub/lib/bm25"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Field repetition weights. When building the composite document for
// a package, each field's tokens are repeated this many times. This
// gives name tokens 3x the influence of keywords without needing
// per-field BM25, which adds implementation weight for marginal
// benefit on corpora this small.
const (
	weightName        = 3
	weightDescription = 2
	weightKeyword     = 2
)

// Result is a single search hit: the matched package and its BM25
// relevance score.
type Result struct {
	Package *registry.Package
	Score   float64
}

// Config configures an Index.
type Config struct {
	// Store is the metadata store the index is rebuilt from.
	Store metastore.Store

	// Logger receives rebuild diagnostics. Defaults to a discard
	// logger when nil.
	Logger *slog.Logger
}

// Index is a BM25 search index over the package catalog. A fresh
// Index is stale: the first Search rebuilds it from the store.
// Safe for concurrent use.
type Index struct {
	store  metastore.Store
	logger *slog.Logger

	mu       sync.RWMutex
	stale    bool
	index    *bm25.Index
	packages map[string]*registry.Package
}

// NewIndex creates a search index backed by the given store. The
// index starts stale and populates on first use.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("search: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Index{
		store:  cfg.Store,
		logger: logger,
		stale:  true,
	}, nil
}

// Invalidate marks the current snapshot stale. The next Search
// rebuilds before scoring. Never blocks.
func (s *Index) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Rebuild replaces the snapshot with the current catalog contents.
func (s *Index) Rebuild(ctx context.Context) error {
	catalog, err := s.store.ListPackages(ctx, nil, 0)
	if err != nil {
		return fmt.Errorf("list packages for index: %w", err)
	}

	documents := make([]bm25.Document, len(catalog))
	packages := make(map[string]*registry.Package, len(catalog))
	for i, pkg := range catalog {
		documents[i] = packageDocument(pkg)
		packages[pkg.Name] = pkg
	}

	index := bm25.New(documents)

	s.mu.Lock()
	s.index = index
	s.packages = packages
	s.stale = false
	s.mu.Unlock()

	s.logger.Debug("search index rebuilt", "packages", len(catalog))
	return nil
}

// Search returns up to limit packages ranked by relevance to the
// query, optionally restricted to one package type. A limit of 0
// means no limit. Returns an empty slice when the query produces no
// tokens or matches nothing.
func (s *Index) Search(ctx context.Context, query string, filter *registry.PackageType, limit int) ([]Result, error) {
	s.mu.RLock()
	needsRebuild := s.stale
	s.mu.RUnlock()
	if needsRebuild {
		if err := s.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	index := s.index
	packages := s.packages
	s.mu.RUnlock()

	// Score without a limit: the type filter runs after scoring, so
	// truncating first could drop matching packages.
	hits := index.Search(query, 0)

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		pkg, ok := packages[hit.Name]
		if !ok {
			continue
		}
		if filter != nil && pkg.Type != *filter {
			continue
		}
		results = append(results, Result{Package: pkg, Score: hit.Score})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// Suggest returns package names completing the given prefix. Direct
// name matches come first, then packages with a matching keyword,
// each group alphabetical. A limit of 0 means no limit; an empty
// prefix matches nothing.
func (s *Index) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}

	s.mu.RLock()
	needsRebuild := s.stale
	s.mu.RUnlock()
	if needsRebuild {
		if err := s.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	packages := s.packages
	s.mu.RUnlock()

	var byName, byKeyword []string
	for name, pkg := range packages {
		if strings.HasPrefix(name, prefix) {
			byName = append(byName, name)
			continue
		}
		for _, keyword := range pkg.Keywords {
			if strings.HasPrefix(strings.ToLower(keyword), prefix) {
				byKeyword = append(byKeyword, name)
				break
			}
		}
	}
	sort.Strings(byName)
	sort.Strings(byKeyword)

	names := append(byName, byKeyword...)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// packageDocument maps catalog metadata onto weighted BM25 fields.
func packageDocument(pkg *registry.Package) bm25.Document {
	fields := make([]bm25.Field, 0, 2+len(pkg.Keywords))
	fields = append(fields,
		bm25.Field{Text: pkg.Name, Weight: weightName},
		bm25.Field{Text: pkg.Description, Weight: weightDescription},
	)
	for _, keyword := range pkg.Keywords {
		fields = append(fields, bm25.Field{Text: keyword, Weight: weightKeyword})
	}
	return bm25.Document{Name: pkg.Name, Fields: fields}
}
