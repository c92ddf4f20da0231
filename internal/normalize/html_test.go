package normalize

import "testing"

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		base   string
		want   string
	}{
		{
			name:   "heading and paragraph",
			markup: `<h1>Title</h1><p>Hello <b>world</b></p>`,
			want:   "TITLE\n\nHello world",
		},
		{
			name:   "scripts and styles dropped",
			markup: `<head><title>x</title><style>p{}</style></head><body><p>a<script>var x</script>b</p></body>`,
			want:   "ab",
		},
		{
			name:   "relative link resolved",
			markup: `<p><a href="/docs">Docs</a></p>`,
			base:   "https://example.com/page",
			want:   "Docs [https://example.com/docs]",
		},
		{
			name:   "link without base",
			markup: `<a href="/docs">Docs</a>`,
			base:   "local",
			want:   "Docs [/docs]",
		},
		{
			name:   "fragment link keeps label only",
			markup: `<a href="#top">Top</a>`,
			want:   "Top",
		},
		{
			name:   "list items",
			markup: `<ul><li>one</li><li>two</li></ul>`,
			want:   "* one\n* two",
		},
		{
			name:   "line breaks",
			markup: `<div>first<br>second</div>`,
			want:   "first\nsecond",
		},
		{
			name:   "preformatted text kept",
			markup: "<pre>a  b\nc</pre>",
			want:   "a  b\nc",
		},
		{
			name:   "image alt text",
			markup: `<p>see <img src="x.png" alt="chart"> here</p>`,
			want:   "see chart here",
		},
		{
			name:   "empty document",
			markup: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToText(tt.markup, tt.base)
			if err != nil {
				t.Fatalf("HTMLToText() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HTMLToText() = %q, want %q", got, tt.want)
			}
		})
	}
}
