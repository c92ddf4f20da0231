// Package queue holds the server side FIFO of narration chunks.
// Documents are normalized, split into short chunks and appended in order;
// listeners pull chunks one at a time.
package queue
