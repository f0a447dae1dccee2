package markov

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// Token represents a single tokenized unit of text. It contains the text itself
// and a boolean flag indicating if it marks the end of a chain (e.g., a line).
// An EOC token carries no text.
type Token struct {
	Text string
	EOC  bool
}

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. This allows the feeding logic to be independent of the
// specific tokenization strategy.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string that should be used to join tokens
	// when building a final generated string, using the previous and current
	// tokens.
	Separator(prev, current string) string
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}

// LineTokenizer treats every non-empty line as one sequence and splits it on
// whitespace. Empty lines produce nothing; a line holding only whitespace
// produces an empty sequence.
type LineTokenizer struct{}

// NewLineTokenizer returns the tokenizer used by FeedFile.
func NewLineTokenizer() *LineTokenizer { return &LineTokenizer{} }

// Separator always joins with a single space.
func (LineTokenizer) Separator(_, _ string) string { return " " }

// NewStream returns the stream processor.
func (LineTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &lineStream{reader: bufio.NewReader(r)}
}

type lineStream struct {
	reader  *bufio.Reader
	buffer  []string
	pending bool // an EOC is owed for the line in buffer
	done    bool
}

// Next returns the fields of the current line followed by an EOC token.
func (s *lineStream) Next() (*Token, error) {
	for len(s.buffer) == 0 && !s.pending { // Loop until we have tokens
		if s.done {
			return nil, io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			s.done = true
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		s.buffer = strings.Fields(line)
		s.pending = true
	}

	if len(s.buffer) == 0 {
		s.pending = false
		return &Token{EOC: true}, nil
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:] // Consume the token
	return &Token{Text: word}, nil
}

// JoinTokens builds a display string from tokens using the separators chosen
// by t.
func JoinTokens(t Tokenizer, tokens []string) string {
	var builder strings.Builder
	for i, text := range tokens {
		if i > 0 {
			builder.WriteString(t.Separator(tokens[i-1], text))
		}
		builder.WriteString(text)
	}
	return builder.String()
}

// FeedString splits text on whitespace and feeds the fields as one sequence.
func FeedString(c *Chain[string], text string) {
	c.Feed(strings.Fields(text))
}

// FeedReader feeds every sequence produced by tokenizing r and returns how
// many sequences were fed. Sequences fed before a read error stay in the chain.
func FeedReader(c *Chain[string], r io.Reader, t Tokenizer) (int, error) {
	stream := t.NewStream(r)
	var sentence []string
	var sentenceCount int
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return sentenceCount, err
		}
		if !token.EOC {
			sentence = append(sentence, token.Text)
			continue
		}
		c.Feed(sentence)
		sentenceCount++
		sentence = sentence[:0]
	}
	// A stream that ends without a closing EOC still delivers its last sequence.
	if len(sentence) > 0 {
		c.Feed(sentence)
		sentenceCount++
	}
	return sentenceCount, nil
}

// FeedFile feeds every non-empty line of the file at path as its own
// sequence. Open and read failures are returned as *IOError; lines fed before
// a failure are kept.
func FeedFile(c *Chain[string], path string) (int, error) {
	return feedFile(c, path, NewLineTokenizer())
}

func feedFile(c *Chain[string], path string, t Tokenizer) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, newIOError("open", path, err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	n, err := FeedReader(c, file, t)
	if err != nil {
		return n, newIOError("read", path, err)
	}
	return n, nil
}
