// Package types defines the core data structures for the vantage business
// register: businesses keyed by ABN, their secondary names, and the
// filter/result shapes shared by the repository and the HTTP layer.
package types

import "time"

// Business is one Australian Business Register entity, keyed by ABN.
// Pointer fields map to nullable columns.
type Business struct {
	ID                int64      `json:"id"`
	ABN               string     `json:"abn"`
	ABNStatus         string     `json:"abnStatus"`
	ABNStatusFromDate *time.Time `json:"abnStatusFromDate,omitempty"`
	EntityTypeCode    string     `json:"entityTypeCode"`
	EntityTypeText    *string    `json:"entityTypeText,omitempty"`
	EntityName        string     `json:"entityName"`
	GivenName         *string    `json:"givenName,omitempty"`
	FamilyName        *string    `json:"familyName,omitempty"`
	State             *string    `json:"state,omitempty"`
	Postcode          *string    `json:"postcode,omitempty"`
	GSTStatus         *string    `json:"gstStatus,omitempty"`
	GSTFromDate       *time.Time `json:"gstFromDate,omitempty"`
	ACN               *string    `json:"acn,omitempty"`
	RecordLastUpdated *time.Time `json:"recordLastUpdated,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`

	// Names are the secondary names attached to this business (business,
	// trading, other and DGR fund names). Populated on single-business
	// lookups only; search results leave it nil.
	Names []BusinessName `json:"businessNames,omitempty"`
}

// BusinessName is a secondary name attached to a business.
type BusinessName struct {
	ID         int64  `json:"id"`
	BusinessID int64  `json:"businessId"`
	NameType   string `json:"nameType"`
	NameText   string `json:"nameText"`
}

// Name type codes carried through from the register extract.
const (
	NameTypeMain     = "MN"
	NameTypeBusiness = "BN"
	NameTypeTrading  = "TRD"
	NameTypeOther    = "OTN"
	NameTypeDGR      = "DGR"
)

// Entity type code for individuals / sole traders. Individuals are the
// only entity type whose display name is assembled from given/family
// name parts rather than taken verbatim.
const EntityTypeIndividual = "IND"

// SearchFilters narrows a search by exact-match columns. Empty fields
// are ignored.
type SearchFilters struct {
	ABNStatus      string
	EntityTypeCode string
	State          string
	Postcode       string
}

// Empty reports whether no filter field is set.
func (f SearchFilters) Empty() bool {
	return f.ABNStatus == "" && f.EntityTypeCode == "" && f.State == "" && f.Postcode == ""
}

// SearchQuery bundles one search request: an optional name term, exact
// filters, and 1-based paging. Zero values are normalized by the HTTP
// layer before the query reaches the repository.
type SearchQuery struct {
	Term    string
	Filters SearchFilters
	Page    int
	Limit   int
}

// Offset converts the 1-based page to a row offset.
func (q SearchQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// SearchResult is one page of matches plus the capped candidate total.
// Total saturates at the configured candidate cap, so callers must treat
// it as "at least this many" once it reaches the cap.
type SearchResult struct {
	Businesses  []Business `json:"businesses"`
	Total       int        `json:"total"`
	QueryTimeMs int64      `json:"queryTimeMs"`
}

// TotalPages returns the page count implied by the (capped) total.
func (r SearchResult) TotalPages(limit int) int {
	if limit <= 0 {
		return 0
	}
	return (r.Total + limit - 1) / limit
}
