// Package normalize turns typed documents into narration text.
//
// Formatting is dispatched through a registry keyed by document type and
// source identifier. Each entry is a pure Strategy; when no entry matches a
// source, the type's fallback strategy is used.
package normalize

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/speechify/internal/document"
)

var (
	// ErrUnsupportedType is returned for documents whose type has no
	// registered fallback strategy.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrMalformedPayload is returned when a payload cannot be parsed
	// according to its type or source rules.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidRule is returned when a configured narration rule cannot be
	// compiled.
	ErrInvalidRule = errors.New("invalid narration rule")
)

// Well-known source identifiers with dedicated formatting.
const (
	SourceStockTicker  = "feeds.stock-ticker"
	SourceSlackWebhook = "https://slack.com/webhooks/chat"
	SourceSlackMessage = "webhooks.slack.messages"
)

// Strategy formats a single document into narration text. Strategies must
// not mutate shared state.
type Strategy func(doc document.Document) (string, error)

type key struct {
	typ    document.DataType
	source string
}

// Normalizer dispatches documents to formatting strategies.
type Normalizer struct {
	mu        sync.RWMutex
	bySource  map[key]Strategy
	fallbacks map[document.DataType]Strategy

	location *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLocation sets the time zone used when rendering timestamps.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// New creates a normalizer with the built-in strategies registered.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		bySource:  make(map[key]Strategy),
		fallbacks: make(map[document.DataType]Strategy),
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(n)
	}

	n.SetFallback(document.TypeText, formatText)
	n.Register(document.TypeText, SourceStockTicker, formatStockTicker)

	n.SetFallback(document.TypeHTML, formatHTML)

	n.SetFallback(document.TypeJSON, formatJSON)
	slack := slackFormatter(n.location)
	n.Register(document.TypeJSON, SourceSlackWebhook, slack)
	n.Register(document.TypeJSON, SourceSlackMessage, slack)

	return n
}

// Register installs a strategy for documents of type t from source,
// replacing any previous entry.
func (n *Normalizer) Register(t document.DataType, source string, s Strategy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bySource[key{typ: t, source: source}] = s
}

// SetFallback installs the strategy used for documents of type t whose
// source has no dedicated entry.
func (n *Normalizer) SetFallback(t document.DataType, s Strategy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fallbacks[t] = s
}

// Normalize formats doc into narration text. An empty result means there is
// nothing to enqueue.
func (n *Normalizer) Normalize(doc document.Document) (string, error) {
	n.mu.RLock()
	s, ok := n.bySource[key{typ: doc.Type, source: doc.Source}]
	if !ok {
		s, ok = n.fallbacks[doc.Type]
	}
	n.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, doc.Type)
	}
	return s(doc)
}
