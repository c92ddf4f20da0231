// Package audio plays raw 16-bit little-endian PCM through oto/v3. Play
// blocks until the buffer has been heard, which is what lets the speech
// worker report utterance completion.
package audio
