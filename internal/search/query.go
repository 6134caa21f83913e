package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a work search.
type SearchParams struct {
	Query string

	// Filters. Empty values mean "don't filter".
	Language   string
	Medium     string
	Audience   string
	Fiction    string   // "fiction" or "nonfiction"
	Genres     []string // OR across slugs
	MinQuality float64

	// Pagination
	Limit  int
	Offset int

	// Sorting: "relevance" (default), "title", "quality", "recent".
	SortBy string
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:  20,
		SortBy: "relevance",
	}
}

// SearchResult holds one page of search hits.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is a single matching work.
type SearchHit struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Title    string   `json:"title"`
	Author   string   `json:"author,omitempty"`
	Language string   `json:"language,omitempty"`
	Medium   string   `json:"medium,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Quality  float64  `json:"quality"`
}

// Search executes a work search.
func (s *WorkIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	searchQuery := buildSearchQuery(params)
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)
	addSorting(searchRequest, params.SortBy)
	searchRequest.Fields = []string{
		"id", "title", "author", "language", "medium", "genres", "quality",
	}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}
		if t, ok := hit.Fields["title"].(string); ok {
			searchHit.Title = t
		}
		if a, ok := hit.Fields["author"].(string); ok {
			searchHit.Author = a
		}
		if l, ok := hit.Fields["language"].(string); ok {
			searchHit.Language = l
		}
		if m, ok := hit.Fields["medium"].(string); ok {
			searchHit.Medium = m
		}
		if q, ok := hit.Fields["quality"].(float64); ok {
			searchHit.Quality = q
		}
		switch genres := hit.Fields["genres"].(type) {
		case string:
			searchHit.Genres = []string{genres}
		case []interface{}:
			for _, g := range genres {
				if slug, ok := g.(string); ok {
					searchHit.Genres = append(searchHit.Genres, slug)
				}
			}
		}
		result.Hits = append(result.Hits, searchHit)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params: a boosted
// disjunction over title and author plus fuzzy and prefix variants for typo
// tolerance and autocomplete, conjoined with the exact-match filters.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		textQueries := []query.Query{}

		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("author")
		authorMatch.SetBoost(2.0)
		textQueries = append(textQueries, authorMatch)

		summaryMatch := bleve.NewMatchQuery(params.Query)
		summaryMatch.SetField("summary")
		summaryMatch.SetBoost(0.5)
		textQueries = append(textQueries, summaryMatch)

		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("title")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("title")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	for field, value := range map[string]string{
		"language": params.Language,
		"medium":   params.Medium,
		"audience": params.Audience,
		"fiction":  params.Fiction,
	} {
		if value == "" {
			continue
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		queries = append(queries, tq)
	}

	if len(params.Genres) > 0 {
		genreQueries := make([]query.Query, len(params.Genres))
		for i, slug := range params.Genres {
			gq := bleve.NewTermQuery(slug)
			gq.SetField("genres")
			genreQueries[i] = gq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(genreQueries...))
	}

	if params.MinQuality > 0 {
		minQuality := params.MinQuality
		qq := bleve.NewNumericRangeQuery(&minQuality, nil)
		qq.SetField("quality")
		queries = append(queries, qq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

func addSorting(req *bleve.SearchRequest, sortBy string) {
	switch sortBy {
	case "title":
		req.SortBy([]string{"title", "-_score"})
	case "quality":
		req.SortBy([]string{"-quality", "-_score"})
	case "recent":
		req.SortBy([]string{"-updated_at", "-_score"})
	default:
		req.SortBy([]string{"-_score", "title"})
	}
}
