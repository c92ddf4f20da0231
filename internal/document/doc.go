// Package document contains the types shared by the ingestion server and
// the playback client: documents submitted for narration and the chunks
// they are split into.
package document
