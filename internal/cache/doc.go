// Package cache stores synthesized narration audio so repeated chunks are not
// synthesized twice. It layers an in-memory LRU (L1) over an optional
// zstd-compressed disk store (L2).
package cache
