package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default sizes, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SentenceChunker packs whole sentences into chunks of at most chunkSize runes.
// Consecutive chunks share trailing sentences worth up to overlap runes.
type SentenceChunker struct {
	chunkSize int
	overlap   int
	splitter  *regexp.Regexp
}

func NewSentenceChunker(chunkSize, overlap int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &SentenceChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		splitter:  regexp.MustCompile(`[^.!?]+[.!?]+`),
	}
}

// Split returns the chunks of text in document order. Empty text yields nil.
func (c *SentenceChunker) Split(text string) []string {
	sentences := c.sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i
		size := 0
		for end < len(sentences) {
			n := utf8.RuneCountInString(sentences[end])
			if end > i {
				n++ // joining space
			}
			if end > i && size+n > c.chunkSize {
				break
			}
			size += n
			end++
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		// step back over trailing sentences to build the overlap, always moving forward
		next := end
		carried := 0
		for next-1 > i {
			n := utf8.RuneCountInString(sentences[next-1]) + 1
			if carried+n > c.overlap {
				break
			}
			carried += n
			next--
		}
		i = next
	}
	return chunks
}

// sentences splits text on terminal punctuation, keeps a trailing fragment
// without punctuation, collapses whitespace and breaks up sentences longer
// than the chunk size.
func (c *SentenceChunker) sentences(text string) []string {
	var raw []string
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		raw = append(raw, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		raw = append(raw, text[last:])
	}
	var out []string
	for _, s := range raw {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) > c.chunkSize {
			out = append(out, splitLong(s, c.chunkSize)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

func splitLong(s string, limit int) []string {
	var out []string
	var b strings.Builder
	size := 0
	flush := func() {
		if size > 0 {
			out = append(out, b.String())
			b.Reset()
			size = 0
		}
	}
	for _, w := range strings.Fields(s) {
		for utf8.RuneCountInString(w) > limit {
			flush()
			r := []rune(w)
			out = append(out, string(r[:limit]))
			w = string(r[limit:])
		}
		n := utf8.RuneCountInString(w)
		if size > 0 && size+1+n > limit {
			flush()
		}
		if size > 0 {
			b.WriteByte(' ')
			size++
		}
		b.WriteString(w)
		size += n
	}
	flush()
	return out
}
