package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"creditscout/internal/domain"
)

// Dotted abbreviations common in financial research text. A fragment ending
// in one of these is not a sentence boundary.
var abbreviations = map[string]struct{}{
	"al.":     {},
	"approx.": {},
	"co.":     {},
	"corp.":   {},
	"dept.":   {},
	"dr.":     {},
	"est.":    {},
	"fig.":    {},
	"gov.":    {},
	"inc.":    {},
	"ltd.":    {},
	"mr.":     {},
	"ms.":     {},
	"no.":     {},
	"st.":     {},
	"vs.":     {},
}

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := c.splitSentences(document.Content)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(document.Content)
		if trimmed == "" {
			return nil, nil
		}
		sentences = []string{trimmed}
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		text := strings.Join(sentences[i:end], " ")
		chunk := domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       text,
			Index:      idx,
		}
		chunks = append(chunks, chunk)
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		if i < 0 {
			i = 0
		}
		idx++
	}
	return chunks, nil
}

// splitSentences splits on terminal punctuation, then re-joins fragments cut
// inside abbreviations ("U.S.", "Moody's Corp.", "et al.") so a chunk
// boundary never lands mid-abbreviation.
func (c *SentenceChunker) splitSentences(content string) []string {
	locs := c.splitter.FindAllStringIndex(content, -1)
	type span struct{ start, end int }
	var spans []span
	for _, loc := range locs {
		if n := len(spans); n > 0 && endsWithAbbreviation(content[spans[n-1].start:spans[n-1].end]) {
			spans[n-1].end = loc[1]
			continue
		}
		spans = append(spans, span{loc[0], loc[1]})
	}
	sentences := make([]string, len(spans))
	for i, s := range spans {
		sentences[i] = strings.TrimSpace(content[s.start:s.end])
	}
	return sentences
}

// acronymPattern matches dotted acronyms and initials: "U.", "U.S.", "e.g.".
var acronymPattern = regexp.MustCompile(`^(\p{L}\.)+$`)

func endsWithAbbreviation(fragment string) bool {
	fields := strings.Fields(fragment)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	last = strings.TrimLeftFunc(last, func(r rune) bool { return !unicode.IsLetter(r) })
	if _, ok := abbreviations[last]; ok {
		return true
	}
	return acronymPattern.MatchString(last)
}
