package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"escape", `<script>alert("x")</script>`, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;"},
		{"ampersand once", "a &amp; b", "a &amp;amp; b"},
		{"strong", "this is *important*", "this is <strong>important</strong>"},
		{"em", "an _aside_ here", "an <em>aside</em> here"},
		{"link", "see https://example.com/a?b=1&c=2 now",
			`see <a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener">https://example.com/a?b=1&amp;c=2</a> now`},
		{"link keeps underscores", "go to https://x.io/some_path_here",
			`go to <a href="https://x.io/some_path_here" target="_blank" rel="noopener">https://x.io/some_path_here</a>`},
		{"escaped markup inside emphasis", "*<b>*", "<strong>&lt;b&gt;</strong>"},
		{"unbalanced", "2 * 3", "2 * 3"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatMessage(tc.in))
		})
	}
}
