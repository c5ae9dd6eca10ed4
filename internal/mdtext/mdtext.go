// Package mdtext extracts the human-visible text of a markdown document.
// The relational engine derives its search column from it and the engines use
// it to compute a document's visible character count.
package mdtext

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// VisibleText parses markdown and returns the text a reader would see:
// markup is dropped, code spans and code blocks are excluded, image alt text
// is kept, and whitespace is collapsed to single spaces.
func VisibleText(source string) string {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindCodeBlock, ast.KindFencedCodeBlock, ast.KindCodeSpan,
			ast.KindHTMLBlock, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		case ast.KindText:
			b.Write(n.(*ast.Text).Segment.Value(src))
			b.WriteByte(' ')
		case ast.KindString:
			b.Write(n.(*ast.String).Value)
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

// CountVisibleChars returns the rune count of the document's visible text.
func CountVisibleChars(source string) int64 {
	return int64(utf8.RuneCountInString(VisibleText(source)))
}

// Normalize builds the search column value for a document: the lower-cased
// visible text of its parts (name, then content) joined by a single space.
func Normalize(parts ...string) string {
	visible := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := VisibleText(p); v != "" {
			visible = append(visible, v)
		}
	}
	return strings.ToLower(strings.Join(visible, " "))
}
