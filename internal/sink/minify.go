package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// ErrNotHTML means the body contained no markup to minify.
var ErrNotHTML = errors.New("body contains no html tags")

// preserved elements keep their text byte for byte.
var preserved = map[string]struct{}{
	"pre":      {},
	"textarea": {},
	"script":   {},
	"style":    {},
}

// Minify drops comments and whitespace-only text between tags, and collapses
// whitespace runs in the remaining text. Content of pre, textarea, script and
// style is left untouched. Tokens are re-emitted from their raw bytes so
// entities and attribute quoting survive unchanged.
func Minify(body []byte) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(body))
	var (
		out      bytes.Buffer
		depth    int
		sawMarks bool
	)
	out.Grow(len(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize html: %w", err)
			}
			if !sawMarks {
				return nil, ErrNotHTML
			}
			return out.Bytes(), nil
		case html.CommentToken:
			continue
		case html.TextToken:
			raw := z.Raw()
			if depth > 0 {
				out.Write(raw)
				continue
			}
			collapsed := collapseSpace(raw)
			if len(bytes.TrimSpace(collapsed)) == 0 {
				continue
			}
			out.Write(collapsed)
		case html.StartTagToken:
			sawMarks = true
			// Write Raw before TagName, which lower-cases the buffer in place.
			out.Write(z.Raw())
			name, _ := z.TagName()
			if _, ok := preserved[string(name)]; ok {
				depth++
			}
		case html.EndTagToken:
			sawMarks = true
			out.Write(z.Raw())
			name, _ := z.TagName()
			if _, ok := preserved[string(name)]; ok && depth > 0 {
				depth--
			}
		default:
			sawMarks = true
			out.Write(z.Raw())
		}
	}
}

func collapseSpace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	inSpace := false
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r', '\f':
			if !inSpace {
				out = append(out, ' ')
			}
			inSpace = true
		default:
			out = append(out, c)
			inSpace = false
		}
	}
	return out
}
