package typesense

// Field declares one typed field of a collection schema.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Facet    bool   `json:"facet,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Index    *bool  `json:"index,omitempty"`
	Infix    bool   `json:"infix,omitempty"`
}

// CollectionSchema is the declarative schema sent on collection create.
type CollectionSchema struct {
	Name                string   `json:"name"`
	Fields              []Field  `json:"fields"`
	DefaultSortingField string   `json:"default_sorting_field,omitempty"`
	TokenSeparators     []string `json:"token_separators,omitempty"`
	SymbolsToIndex      []string `json:"symbols_to_index,omitempty"`
	NumDocuments        int64    `json:"num_documents,omitempty"`
}

// ImportResult is one line of the JSONL import response.
type ImportResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Document string `json:"document,omitempty"`
}

// SearchParams maps to the documents/search query string.
type SearchParams struct {
	Q                   string
	QueryBy             string
	FilterBy            string
	SortBy              string
	FacetBy             string
	Page                int
	PerPage             int
	HighlightFullFields string
}

// SearchResult is the subset of the search response the caller consumes.
type SearchResult struct {
	Found   int `json:"found"`
	Page    int `json:"page"`
	Hits    []Hit
	Facets  []FacetCount `json:"facet_counts"`
	RawHits []RawHit     `json:"hits"`
}

type RawHit struct {
	Document  map[string]any `json:"document"`
	TextMatch int64          `json:"text_match"`
}

// Hit is an alias kept for callers that only need the document.
type Hit = RawHit

type FacetCount struct {
	FieldName string `json:"field_name"`
	Counts    []struct {
		Value string `json:"value"`
		Count int    `json:"count"`
	} `json:"counts"`
}
