package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"creditscout/internal/domain"
)

// Service wires chunking, embedding, vector storage and summarization into
// the retrieval workflow shared by the training tool and the pipeline.
type Service struct {
	chunker             domain.Chunker
	embedder            domain.Embedder
	store               domain.VectorStore
	summarizer          domain.Summarizer
	summaryMaxSentences int
	chunks              []domain.Chunk
}

func NewService(chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, summarizer domain.Summarizer, summaryMaxSentences int) *Service {
	return &Service{chunker: chunker, embedder: embedder, store: store, summarizer: summarizer, summaryMaxSentences: summaryMaxSentences}
}

// IndexDocuments chunks, embeds and stores the given documents, replacing
// any previous index contents. It returns a corpus summary.
func (s *Service) IndexDocuments(documents []domain.Document) (string, error) {
	if len(documents) == 0 {
		return "", fmt.Errorf("no documents to index")
	}
	var allChunks []domain.Chunk
	var allTexts []string
	var corpus strings.Builder
	for _, d := range documents {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return "", err
		}
		for _, ch := range chunks {
			allChunks = append(allChunks, ch)
			allTexts = append(allTexts, ch.Text)
		}
		corpus.WriteString("\n")
		corpus.WriteString(d.Content)
	}
	if len(allChunks) == 0 {
		return "", fmt.Errorf("documents produced no chunks")
	}
	// Keep chunks for lexical fallback ranking
	s.chunks = allChunks
	if err := s.embedder.Prepare(allTexts); err != nil {
		return "", err
	}
	if err := s.store.Init(s.embedder.Dimension()); err != nil {
		return "", err
	}
	vectors := make([][]float64, len(allChunks))
	for i := range allChunks {
		vec, err := s.embedder.Embed(allChunks[i].Text)
		if err != nil {
			return "", err
		}
		vectors[i] = vec
	}
	if err := s.store.Clear(); err != nil {
		return "", err
	}
	if err := s.store.Upsert(allChunks, vectors); err != nil {
		return "", err
	}
	if s.summarizer == nil {
		return "", nil
	}
	return s.summarizer.Summarize(corpus.String(), s.summaryMaxSentences)
}

// IndexArticles indexes the successful search results, skipping failures.
func (s *Service) IndexArticles(articles []domain.Article) (string, error) {
	var docs []domain.Document
	for i, a := range articles {
		if !a.Success || strings.TrimSpace(a.Content) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			ID:      fmt.Sprintf("article-%d", i),
			Topic:   a.Topic,
			Content: a.Content,
		})
	}
	return s.IndexDocuments(docs)
}

// Query embeds the query and searches the vector store. When the query
// produces a zero vector, or every match scores zero, it falls back to
// lexical overlap ranking over the indexed chunks.
func (s *Service) Query(query string, topK int) ([]domain.SearchResult, error) {
	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, err
	}
	zero := true
	for _, v := range vec {
		if v != 0 {
			zero = false
			break
		}
	}
	if zero {
		return s.lexicalSearch(query, topK), nil
	}
	res, err := s.store.Search(vec, topK)
	if err != nil {
		return nil, err
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return s.lexicalSearch(query, topK), nil
	}
	return res, nil
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func (s *Service) lexicalSearch(query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(s.chunks))
	for i, ch := range s.chunks {
		scores[i] = pair{i, overlapOchiai(qset, ch.Text)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 {
		topK = 5
	}
	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		p := scores[i]
		out = append(out, domain.SearchResult{Chunk: s.chunks[p.idx], Score: p.score})
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai scores token-set overlap: |A∩B| / sqrt(|A||B|).
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}
