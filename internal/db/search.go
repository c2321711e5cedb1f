package db

import "github.com/kailas-cloud/resdex/internal/domain/query"

// SearchQuery is the input for filtered, sorted, paginated search.
type SearchQuery struct {
	IndexName string
	Filter    query.Group
	// Schema maps every filterable path to its index field type.
	Schema map[string]IndexFieldType
	// Text is a free-text query matched against TEXT fields.
	Text   string
	Sort   []query.Sort
	Offset int
	Limit  int
	// Load lists hash fields returned per row.
	Load []string
}

// FacetQuery counts distinct values of one field over a filtered set.
type FacetQuery struct {
	IndexName string
	Filter    query.Group
	Schema    map[string]IndexFieldType
	Text      string
	Field     string
	Limit     int
}

// FacetBucket is one value with its number of rows.
type FacetBucket struct {
	Value string
	Count int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single row of a search.
type SearchEntry struct {
	Key    string
	Fields map[string]string
}
