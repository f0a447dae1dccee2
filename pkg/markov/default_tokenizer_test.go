package markov

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func collectTokens(t *testing.T, input string) []Token {
	t.Helper()
	stream := NewLineTokenizer().NewStream(strings.NewReader(input))
	var tokens []Token
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tokens
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		tokens = append(tokens, *tok)
	}
}

func TestLineTokenizer(t *testing.T) {
	eoc := Token{EOC: true}
	testCases := []struct {
		name  string
		input string
		want  []Token
	}{
		{name: "empty input", input: "", want: nil},
		{name: "single line", input: "a b", want: []Token{{Text: "a"}, {Text: "b"}, eoc}},
		{name: "trailing newline", input: "a\n", want: []Token{{Text: "a"}, eoc}},
		{name: "crlf", input: "a b\r\nc\r\n", want: []Token{{Text: "a"}, {Text: "b"}, eoc, {Text: "c"}, eoc}},
		{name: "empty lines skipped", input: "\n\na\n\n", want: []Token{{Text: "a"}, eoc}},
		{name: "whitespace line", input: "  \t \nx", want: []Token{eoc, {Text: "x"}, eoc}},
		{name: "inner whitespace", input: "  a \t b  ", want: []Token{{Text: "a"}, {Text: "b"}, eoc}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := collectTokens(t, tc.input); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("tokens = %+v, want %+v", got, tc.want)
			}
		})
	}
}

type spacelessTokenizer struct{ LineTokenizer }

func (spacelessTokenizer) Separator(_, current string) string {
	if current == "." {
		return ""
	}
	return " "
}

func TestJoinTokens(t *testing.T) {
	if got := JoinTokens(NewLineTokenizer(), []string{"a", "b", "c"}); got != "a b c" {
		t.Errorf("JoinTokens() = %q", got)
	}
	if got := JoinTokens(NewLineTokenizer(), nil); got != "" {
		t.Errorf("JoinTokens(nil) = %q", got)
	}
	if got := JoinTokens(spacelessTokenizer{}, []string{"end", "."}); got != "end." {
		t.Errorf("JoinTokens() with custom separator = %q", got)
	}
}
