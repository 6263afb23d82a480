package service

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/telemetry"
)

// SearchMode selects the ranking strategy for a search request.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeHybrid   SearchMode = "hybrid"
)

const (
	// DefaultSearchLimit is the result cap applied when none is requested.
	DefaultSearchLimit = 5
	// DefaultSearchThreshold is the minimum cosine similarity for semantic hits.
	DefaultSearchThreshold float32 = 0.7
	// keywordMatchScore is assigned to every keyword hit. Lexical rank is not
	// normalized to the similarity scale, so keyword results carry a constant.
	keywordMatchScore float32 = 0.8

	snippetMaxChars = 220
)

// SearchInput represents input for a search operation
type SearchInput struct {
	Query       string
	WorkspaceID string
	Limit       int
	Threshold   float32
	Mode        SearchMode
}

// SearchResult represents a single ranked hit. Results are built per query
// and never persisted.
type SearchResult struct {
	ID          string
	Title       string
	Description string
	Content     string
	Type        domain.ItemType
	Metadata    map[string]string
	Score       float32
}

// SearchItemRepository defines the storage operations the search engine needs
type SearchItemRepository interface {
	ListWithEmbeddings(ctx context.Context, workspaceID string) ([]*domain.Item, error)
	SearchKeyword(ctx context.Context, query, workspaceID string, limit int) ([]*domain.Item, error)
}

// SearchService ranks stored items against a free-text query by combining a
// semantic pass (cosine similarity over item embeddings) with a keyword pass
// (full-text search). Sub-pass failures degrade to empty partial results; the
// only hard error a caller sees is an empty query.
type SearchService struct {
	repo      SearchItemRepository
	embedding EmbeddingClient
	logRepo   SearchLogRepository
}

// NewSearchService creates a new SearchService instance
func NewSearchService(repo SearchItemRepository, embedding EmbeddingClient) *SearchService {
	return NewSearchServiceWithLog(repo, embedding, nil)
}

// NewSearchServiceWithLog creates a SearchService that records search logs.
func NewSearchServiceWithLog(repo SearchItemRepository, embedding EmbeddingClient, logRepo SearchLogRepository) *SearchService {
	return &SearchService{
		repo:      repo,
		embedding: embedding,
		logRepo:   logRepo,
	}
}

// Search executes a search in the requested mode and returns ranked results.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		WorkspaceID: input.WorkspaceID,
		Operation:   "search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = DefaultSearchThreshold
	}
	mode := normalizeSearchMode(input.Mode)

	started := time.Now()

	var results []*SearchResult
	switch mode {
	case SearchModeSemantic:
		results = s.semanticPass(ctx, query, input.WorkspaceID, limit, threshold)
	case SearchModeKeyword:
		results = s.keywordPass(ctx, query, input.WorkspaceID, limit)
	default:
		results = s.hybridPass(ctx, query, input.WorkspaceID, limit, threshold)
	}

	s.logSearch(ctx, input.WorkspaceID, query, mode, limit, results, time.Since(started))

	return results, nil
}

// semanticPass embeds the query and scores every stored item embedding by
// cosine similarity. Embedding or storage failures are logged and yield an
// empty result so search degrades instead of erroring.
func (s *SearchService) semanticPass(ctx context.Context, query, workspaceID string, limit int, threshold float32) []*SearchResult {
	if s.embedding == nil {
		return []*SearchResult{}
	}

	queryEmbedding, err := s.embedding.GenerateEmbedding(ctx, query)
	if err != nil {
		log.Printf("search: semantic pass unavailable, embedding failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return []*SearchResult{}
	}

	items, err := s.repo.ListWithEmbeddings(ctx, workspaceID)
	if err != nil {
		log.Printf("search: semantic pass unavailable, listing embeddings failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return []*SearchResult{}
	}

	results := make([]*SearchResult, 0, len(items))
	for _, item := range items {
		score := domain.CosineSimilarity(queryEmbedding, item.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, itemToSearchResult(item, score))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// keywordPass runs a full-text match over title, description, and content.
// Every hit carries the fixed keyword score; provider order is kept.
func (s *SearchService) keywordPass(ctx context.Context, query, workspaceID string, limit int) []*SearchResult {
	items, err := s.repo.SearchKeyword(ctx, query, workspaceID, limit)
	if err != nil {
		log.Printf("search: keyword pass unavailable: %v", err)
		telemetry.CaptureError(ctx, err)
		return []*SearchResult{}
	}

	results := make([]*SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, itemToSearchResult(item, keywordMatchScore))
	}
	return results
}

// hybridPass takes up to ceil(limit/2) hits from each pass, concatenates
// semantic results first, and deduplicates by item ID keeping the first
// occurrence, so a semantic hit wins over its keyword duplicate. Because each
// sub-pass is capped before merging, hybrid mode can return fewer than limit
// results even when more matches exist.
func (s *SearchService) hybridPass(ctx context.Context, query, workspaceID string, limit int, threshold float32) []*SearchResult {
	half := (limit + 1) / 2

	semantic := s.semanticPass(ctx, query, workspaceID, half, threshold)
	keyword := s.keywordPass(ctx, query, workspaceID, half)

	merged := dedupeResults(append(semantic, keyword...))
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func (s *SearchService) logSearch(ctx context.Context, workspaceID, query string, mode SearchMode, limit int, results []*SearchResult, elapsed time.Duration) {
	if s.logRepo == nil {
		return
	}

	entry := SearchLogEntry{
		WorkspaceID: workspaceID,
		Query:       query,
		Mode:        mode,
		Limit:       limit,
		DurationMs:  int(elapsed.Milliseconds()),
		Results:     make([]SearchLogResult, 0, len(results)),
	}
	for _, r := range results {
		entry.Results = append(entry.Results, SearchLogResult{ID: r.ID, Score: r.Score})
	}

	if _, err := s.logRepo.CreateSearchLog(ctx, entry); err != nil {
		log.Printf("search: failed to record search log: %v", err)
	}
}

func normalizeSearchMode(mode SearchMode) SearchMode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(SearchModeSemantic):
		return SearchModeSemantic
	case string(SearchModeKeyword):
		return SearchModeKeyword
	default:
		return SearchModeHybrid
	}
}

func dedupeResults(results []*SearchResult) []*SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if r == nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func itemToSearchResult(item *domain.Item, score float32) *SearchResult {
	return &SearchResult{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Content:     makeSnippet(item.Content),
		Type:        item.Type,
		Metadata:    item.Metadata,
		Score:       score,
	}
}

func makeSnippet(content string) string {
	if content == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(content), " ")
	if len(clean) <= snippetMaxChars {
		return clean
	}
	return clean[:snippetMaxChars-3] + "..."
}
