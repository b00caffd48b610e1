// Package search selects between the repository's search paths. The
// selector exists so the HTTP layer dispatches on the requested mode and
// technique without knowing the repository's method set, and so the
// planned AI mode has a seam to land in.
package search

import (
	"context"

	"github.com/vantagesearch/vantage/internal/apperr"
	"github.com/vantagesearch/vantage/internal/metrics"
	"github.com/vantagesearch/vantage/internal/types"
)

// Recognized modes.
const (
	ModeStandard = "standard"
	ModeAI       = "ai"
)

// Recognized techniques.
const (
	TechniqueNative    = "native"
	TechniqueOptimized = "optimized"
)

// Searcher executes one search query.
type Searcher func(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)

// Repository is the slice of the storage contract the selector
// dispatches to.
type Repository interface {
	SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)
	SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)
}

// Selector resolves (mode, technique) pairs to a concrete search path.
type Selector struct {
	repo Repository
}

// NewSelector builds a Selector over repo.
func NewSelector(repo Repository) *Selector {
	return &Selector{repo: repo}
}

// Select returns the Searcher for the given mode and technique. Empty
// strings take the defaults (standard, native). The ai mode is reserved
// for the natural-language translator and fails as not implemented;
// anything unrecognized fails as a validation error.
func (s *Selector) Select(mode, technique string) (Searcher, error) {
	if mode == "" {
		mode = ModeStandard
	}
	if technique == "" {
		technique = TechniqueNative
	}

	switch mode {
	case ModeAI:
		return nil, apperr.NotImplemented("AI search is not implemented yet")
	case ModeStandard:
	default:
		return nil, apperr.Validation("unknown search mode: %q", mode)
	}

	switch technique {
	case TechniqueNative:
		return s.counted(TechniqueNative, s.repo.SearchNative), nil
	case TechniqueOptimized:
		return s.counted(TechniqueOptimized, s.repo.SearchOptimized), nil
	default:
		return nil, apperr.Validation("unknown search technique: %q", technique)
	}
}

// counted wraps a path with its per-technique query counter.
func (s *Selector) counted(technique string, fn Searcher) Searcher {
	return func(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
		metrics.SearchQueriesTotal.WithLabelValues(technique).Inc()
		return fn(ctx, q)
	}
}
