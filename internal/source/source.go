// Package source turns command line arguments, files, URLs and the
// clipboard into documents ready for ingestion.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/yuin/goldmark"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/normalize"
)

var (
	// ErrEmpty is returned when a source has no content.
	ErrEmpty = errors.New("source is empty")

	// ErrUnsupportedProtocol is returned for URLs that are not http(s).
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

// MaxSize bounds how much is read from any single source.
const MaxSize = 8 << 20

// Options override what Load infers.
type Options struct {
	// Type forces the document type.
	Type document.DataType

	// Source forces the document source.
	Source string

	HTTPClient *http.Client
}

// Load reads arg, which is "-" for stdin, an http(s) URL or a file path,
// and builds a document from it.
func Load(ctx context.Context, arg string, opts Options) (document.Document, error) {
	switch {
	case arg == "-":
		data, err := readAll(os.Stdin)
		if err != nil {
			return document.Document{}, err
		}
		return build(data, "stdin", "", "", opts)

	case strings.Contains(arg, "://"):
		return fetch(ctx, arg, opts)

	default:
		return File(arg, opts)
	}
}

// File builds a document from a file, choosing the type by extension.
func File(name string, opts Options) (document.Document, error) {
	f, err := os.Open(name)
	if err != nil {
		return document.Document{}, fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	data, err := readAll(f)
	if err != nil {
		return document.Document{}, err
	}
	return build(data, filepath.Base(name), filepath.Ext(name), "", opts)
}

// Clipboard builds a document from the system clipboard.
func Clipboard(opts Options) (document.Document, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return document.Document{}, fmt.Errorf("unable to read clipboard: %w", err)
	}
	return build([]byte(text), "clipboard", "", "", opts)
}

func fetch(ctx context.Context, raw string, opts Options) (document.Document, error) {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return document.Document{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return document.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return document.Document{}, fmt.Errorf("unable to build request: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return document.Document{}, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return document.Document{}, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	data, err := readAll(resp.Body)
	if err != nil {
		return document.Document{}, err
	}
	return build(data, u.String(), path.Ext(u.Path), resp.Header.Get("Content-Type"), opts)
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read from reader: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("source larger than %d bytes", MaxSize)
	}
	return data, nil
}

func build(data []byte, src, ext, contentType string, opts Options) (document.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return document.Document{}, ErrEmpty
	}

	doc := document.Document{Source: src, Data: string(data)}
	if isMarkdown(ext, contentType) && opts.Type == "" {
		rendered, err := Markdown(data)
		if err != nil {
			return document.Document{}, err
		}
		doc.Type, doc.Data = document.TypeHTML, rendered
	} else {
		doc.Type = InferType(ext, contentType, data)
	}
	if strings.EqualFold(ext, ".tsv") {
		doc.Source = normalize.SourceStockTicker
	}

	if opts.Type != "" {
		doc.Type = opts.Type
	}
	if opts.Source != "" {
		doc.Source = opts.Source
	}
	return doc, nil
}

// InferType picks a document type from a file extension, then a MIME type,
// then the content itself.
func InferType(ext, contentType string, data []byte) document.DataType {
	switch strings.ToLower(ext) {
	case ".html", ".htm", ".xhtml":
		return document.TypeHTML
	case ".json":
		return document.TypeJSON
	case ".txt", ".tsv", ".text", ".log":
		return document.TypeText
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mt == "text/html" || mt == "application/xhtml+xml":
			return document.TypeHTML
		case mt == "application/json" || strings.HasSuffix(mt, "+json"):
			return document.TypeJSON
		case strings.HasPrefix(mt, "text/"):
			return document.TypeText
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return document.TypeJSON
	}
	if strings.HasPrefix(http.DetectContentType(trimmed), "text/html") {
		return document.TypeHTML
	}
	return document.TypeText
}

func isMarkdown(ext, contentType string) bool {
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return true
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	return mt == "text/markdown"
}

// Markdown renders markdown as HTML so it can be narrated like a web page.
func Markdown(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return buf.String(), nil
}
