package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgnsrekt/speechify/internal/document"
)

type addResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Pull keys share the idempotency cache with submissions.
const pullKeyPrefix = "pull:"

type nextChunkResponse struct {
	Chunk *document.Chunk `json:"chunk,omitempty"`
}

func (r *Router) handleAddToQueue(w http.ResponseWriter, req *http.Request) {
	key := req.Header.Get(HeaderIdempotencyKey)

	var entry *idempotencyEntry
	for key != "" {
		e, owner := r.keys.begin(key)
		if owner {
			entry = e
			break
		}
		select {
		case <-e.done:
		case <-req.Context().Done():
			return
		}
		if !e.aborted {
			r.metrics.Replayed()
			w.Header().Set(HeaderReplayed, "true")
			writeJSON(w, http.StatusOK, addResponse{Success: e.success})
			return
		}
		// The earlier attempt never reached the queue; try to take over.
	}

	settled := false
	defer func() {
		if !settled {
			r.keys.abort(key, entry)
		}
	}()

	if r.limiter != nil && !r.limiter.Allow() {
		r.metrics.RateLimited()
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, addResponse{Error: "rate limit exceeded"})
		return
	}

	var doc document.Document
	body := http.MaxBytesReader(w, req.Body, r.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, addResponse{Error: "invalid document: " + err.Error()})
		return
	}

	ok := r.queue.AddToQueue(doc)
	r.keys.finish(entry, ok)
	settled = true
	writeJSON(w, http.StatusOK, addResponse{Success: ok})
}

// handleGetNextChunk dequeues one chunk. A request carrying an idempotency
// key already seen gets the chunk dequeued for that key again, so a client
// retrying a timed out pull does not skip ahead.
func (r *Router) handleGetNextChunk(w http.ResponseWriter, req *http.Request) {
	key := req.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		writeJSON(w, http.StatusOK, nextChunkResponse{Chunk: r.dequeue()})
		return
	}
	key = pullKeyPrefix + key

	var entry *idempotencyEntry
	for {
		e, owner := r.keys.begin(key)
		if owner {
			entry = e
			break
		}
		select {
		case <-e.done:
		case <-req.Context().Done():
			return
		}
		if !e.aborted {
			r.metrics.Replayed()
			w.Header().Set(HeaderReplayed, "true")
			writeJSON(w, http.StatusOK, nextChunkResponse{Chunk: e.chunk})
			return
		}
	}

	settled := false
	defer func() {
		if !settled {
			r.keys.abort(key, entry)
		}
	}()

	chunk := r.dequeue()
	r.keys.finishPull(entry, chunk)
	settled = true
	writeJSON(w, http.StatusOK, nextChunkResponse{Chunk: chunk})
}

func (r *Router) dequeue() *document.Chunk {
	chunk, ok := r.queue.GetNextChunk()
	if !ok {
		return nil
	}
	return &chunk
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
