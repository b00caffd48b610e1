// Package vantage exposes the minimal programmatic surface of the ABR
// ingest and search service.
//
// Most integrations should use the HTTP API served by `vantage serve`.
// This package exports only the domain types and the storage contract,
// for Go programs that embed the repository layer directly.
package vantage

import (
	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// Core domain types.
type (
	Business      = types.Business
	BusinessName  = types.BusinessName
	SearchQuery   = types.SearchQuery
	SearchFilters = types.SearchFilters
	SearchResult  = types.SearchResult
)

// Repository is the persistence contract implemented by the postgres
// store.
type Repository = storage.Repository

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = storage.ErrNotFound
