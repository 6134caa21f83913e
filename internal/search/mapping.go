package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for work documents: English
// stemming on title/author/summary, exact keyword matching on the facetable
// enumerations, numeric range support on quality and ages.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = en.AnalyzerName
	authorFieldMapping.Store = true
	authorFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	// Summary is searchable but not stored; it can be large.
	summaryFieldMapping := bleve.NewTextFieldMapping()
	summaryFieldMapping.Analyzer = en.AnalyzerName
	summaryFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("summary", summaryFieldMapping)

	// Exact-match keyword fields for filtering and faceting.
	for _, field := range []string{"id", "language", "medium", "audience", "fiction", "genres"} {
		fieldMapping := bleve.NewTextFieldMapping()
		fieldMapping.Analyzer = keyword.Name
		fieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, fieldMapping)
	}

	qualityFieldMapping := bleve.NewNumericFieldMapping()
	qualityFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("quality", qualityFieldMapping)

	ageMinFieldMapping := bleve.NewNumericFieldMapping()
	ageMinFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("target_age_min", ageMinFieldMapping)

	ageMaxFieldMapping := bleve.NewNumericFieldMapping()
	ageMaxFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("target_age_max", ageMaxFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
