package mdtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"heading and emphasis", "# Title\n\nSome *important* text.", "Title Some important text."},
		{"code span dropped", "use `fmt.Println` here", "use here"},
		{"fenced block dropped", "before\n\n```go\nfunc main() {}\n```\n\nafter", "before after"},
		{"indented block dropped", "para\n\n    indented code\n", "para"},
		{"link text kept", "see [the docs](https://example.com) now", "see the docs now"},
		{"image alt kept", "![diagram of flow](pic.png)", "diagram of flow"},
		{"whitespace collapsed", "a\n\nb\t \tc", "a b c"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, VisibleText(tc.in))
		})
	}
}

func TestCountVisibleChars(t *testing.T) {
	assert.Equal(t, int64(11), CountVisibleChars("hello world"))
	assert.Equal(t, int64(11), CountVisibleChars("# hello\n\n*world*"))
	assert.Equal(t, int64(0), CountVisibleChars("```\nonly code\n```"))
	// runes, not bytes
	assert.Equal(t, int64(2), CountVisibleChars("日本"))
}

func TestNormalize(t *testing.T) {
	got := Normalize("Notes.md", "# Hello\n\nWorld `code`")
	assert.Equal(t, "notes.md hello world", got)

	assert.Equal(t, "title", Normalize("Title", ""))
	assert.Equal(t, "", Normalize("", ""))
}
