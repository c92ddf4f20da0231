package queue

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/metrics"
	"github.com/dgnsrekt/speechify/internal/segment"
)

// Normalizer formats a document into narration text.
type Normalizer interface {
	Normalize(doc document.Document) (string, error)
}

// Queue is a FIFO of chunks cut from submitted documents. It is safe for
// concurrent use; the chunks of one document are appended in a single
// critical section and never interleave with another document's.
type Queue struct {
	normalizer Normalizer

	// Configuration
	linesPerChunk int
	newID         func() string
	logger        *log.Logger
	metrics       *metrics.Metrics

	mu     sync.Mutex
	chunks []document.Chunk
	stats  Stats
}

// Stats tracks queue activity.
type Stats struct {
	DocumentsAccepted int64
	DocumentsRejected int64
	ChunksEnqueued    int64
	ChunksDequeued    int64
	CurrentSize       int
	PeakSize          int
	LastEnqueue       time.Time
	LastDequeue       time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used to report rejected documents.
func WithLogger(l *log.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics records queue activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithLinesPerChunk sets how many narration lines go into each chunk.
func WithLinesPerChunk(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.linesPerChunk = n
		}
	}
}

// WithIDFunc overrides how chunk ids are generated.
func WithIDFunc(fn func() string) Option {
	return func(q *Queue) {
		if fn != nil {
			q.newID = fn
		}
	}
}

// New creates an empty queue that formats documents with n.
func New(n Normalizer, opts ...Option) *Queue {
	q := &Queue{
		normalizer:    n,
		linesPerChunk: segment.DefaultLines,
		newID:         uuid.NewString,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddToQueue normalizes and segments doc and appends its chunks. It reports
// whether at least one chunk was appended. Failures are logged and counted
// but never returned; a rejected document leaves the queue untouched.
func (q *Queue) AddToQueue(doc document.Document) bool {
	if doc.Data == "" {
		q.reject(doc, "empty data", nil)
		return false
	}

	text, err := q.normalizer.Normalize(doc)
	if err != nil {
		q.reject(doc, "normalization failed", err)
		return false
	}
	if text == "" {
		q.reject(doc, "nothing to narrate", nil)
		return false
	}

	groups := segment.Lines(text, q.linesPerChunk)
	chunks := make([]document.Chunk, 0, len(groups))
	for _, g := range groups {
		chunks = append(chunks, document.Chunk{
			ID:     q.newID(),
			Source: doc.Source,
			Data:   g,
			Type:   doc.Type,
		})
	}

	q.mu.Lock()
	q.chunks = append(q.chunks, chunks...)
	size := len(q.chunks)
	q.stats.DocumentsAccepted++
	q.stats.ChunksEnqueued += int64(len(chunks))
	q.stats.LastEnqueue = time.Now()
	if size > q.stats.PeakSize {
		q.stats.PeakSize = size
	}
	q.mu.Unlock()

	q.metrics.ObserveDocument(doc.Type.String(), metrics.ResultAccepted)
	q.metrics.ChunksEnqueued(len(chunks), size)
	q.logger.Debug("Document queued",
		"type", doc.Type,
		"source", doc.Source,
		"chunks", len(chunks),
		"queue_size", size)

	return true
}

func (q *Queue) reject(doc document.Document, reason string, err error) {
	q.mu.Lock()
	q.stats.DocumentsRejected++
	q.mu.Unlock()

	q.metrics.ObserveDocument(doc.Type.String(), metrics.ResultRejected)

	kv := []interface{}{"type", doc.Type, "source", doc.Source, "reason", reason}
	if err != nil {
		kv = append(kv, "error", err)
	}
	q.logger.Warn("Document rejected", kv...)
}

// GetNextChunk removes and returns the oldest chunk. The boolean is false
// when the queue is empty.
func (q *Queue) GetNextChunk() (document.Chunk, bool) {
	q.mu.Lock()
	if len(q.chunks) == 0 {
		q.mu.Unlock()
		return document.Chunk{}, false
	}

	chunk := q.chunks[0]
	q.chunks[0] = document.Chunk{}
	q.chunks = q.chunks[1:]
	size := len(q.chunks)
	if size == 0 {
		// Drop the backing array once drained so it does not grow forever.
		q.chunks = nil
	}
	q.stats.ChunksDequeued++
	q.stats.LastDequeue = time.Now()
	q.mu.Unlock()

	q.metrics.ChunkServed(size)
	return chunk, true
}

// Size returns the number of chunks waiting.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.chunks)
}

// Stats returns a snapshot of queue activity.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.chunks)
	return stats
}
