package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgnsrekt/speechify/internal/document"
)

// formatHTML converts a page to plain text and prefixes it with a header
// naming the page. Relative links are resolved against the document source
// when it is an absolute URL.
func formatHTML(doc document.Document) (string, error) {
	text, err := HTMLToText(doc.Data, doc.Source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reading website %s. \n%s", doc.Source, text), nil
}

// HTMLToText renders markup as readable plain text. Block elements become
// line breaks, headings are upper-cased and links keep their target in
// brackets.
func HTMLToText(markup, base string) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	w := &textWriter{}
	if u, err := url.Parse(base); err == nil && u.IsAbs() {
		w.base = u
	}
	w.walk(root)
	return w.String(), nil
}

type textWriter struct {
	base  *url.URL
	lines []string
	cur   strings.Builder
	pre   int
}

func (w *textWriter) String() string {
	w.flush()
	lines := w.lines
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// flush moves the pending line, if any, into lines.
func (w *textWriter) flush() {
	if w.cur.Len() == 0 {
		return
	}
	w.lines = append(w.lines, strings.TrimRight(w.cur.String(), " "))
	w.cur.Reset()
}

// lineBreak ends the current line unconditionally.
func (w *textWriter) lineBreak() {
	if w.cur.Len() == 0 {
		w.lines = append(w.lines, "")
		return
	}
	w.flush()
}

// block ends the current line and, for paragraph-like elements, leaves a
// single blank line before whatever follows.
func (w *textWriter) block(blank bool) {
	w.flush()
	if blank && len(w.lines) > 0 && w.lines[len(w.lines)-1] != "" {
		w.lines = append(w.lines, "")
	}
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if w.pre > 0 {
		parts := strings.Split(s, "\n")
		for i, p := range parts {
			if i > 0 {
				w.lineBreak()
			}
			w.cur.WriteString(p)
		}
		return
	}

	words := strings.Join(strings.Fields(s), " ")
	if isSpace(s[0]) || words == "" {
		w.space()
	}
	w.cur.WriteString(words)
	if words != "" && isSpace(s[len(s)-1]) {
		w.space()
	}
}

// space separates words without ever starting a line with a blank.
func (w *textWriter) space() {
	if w.cur.Len() > 0 && !strings.HasSuffix(w.cur.String(), " ") {
		w.cur.WriteByte(' ')
	}
}

// inline renders the children of n on a single line.
func (w *textWriter) inline(n *html.Node) string {
	sub := &textWriter{base: w.base}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sub.walk(c)
	}
	return strings.Join(strings.Fields(sub.String()), " ")
}

func (w *textWriter) resolve(href string) string {
	if w.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return w.base.ResolveReference(ref).String()
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Iframe, atom.Svg:
		return

	case atom.Br:
		w.lineBreak()

	case atom.Hr:
		w.block(true)

	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			w.text(" " + alt + " ")
		}

	case atom.A:
		label := w.inline(n)
		href := strings.TrimSpace(attr(n, "href"))
		switch {
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:"):
			w.text(" " + label + " ")
		case label == "":
			w.text(" [" + w.resolve(href) + "] ")
		default:
			target := w.resolve(href)
			if target == label {
				w.text(" " + label + " ")
			} else {
				w.text(" " + label + " [" + target + "] ")
			}
		}

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.block(true)
		w.cur.WriteString(strings.ToUpper(w.inline(n)))
		w.block(true)

	case atom.P, atom.Ul, atom.Ol, atom.Table, atom.Blockquote:
		w.block(true)
		w.children(n)
		w.block(true)

	case atom.Pre:
		w.block(true)
		w.pre++
		w.children(n)
		w.pre--
		w.block(true)

	case atom.Li:
		w.block(false)
		w.cur.WriteString("* ")
		w.children(n)
		w.block(false)

	case atom.Td, atom.Th:
		w.children(n)
		w.text(" ")

	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav,
		atom.Main, atom.Aside, atom.Tr, atom.Dl, atom.Dt, atom.Dd, atom.Figure, atom.Form, atom.Title:
		w.block(false)
		w.children(n)
		w.block(false)

	default:
		w.children(n)
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f'
}

func (w *textWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
