package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataType identifies how a document's payload is encoded.
type DataType string

const (
	// TypeText is a plaintext payload.
	TypeText DataType = "TEXT"

	// TypeHTML is an HTML page.
	TypeHTML DataType = "HTML"

	// TypeJSON is a structured JSON payload.
	TypeJSON DataType = "JSON"
)

// Supported reports whether t is one of the payload types the ingestion
// pipeline knows how to narrate.
func (t DataType) Supported() bool {
	switch t {
	case TypeText, TypeHTML, TypeJSON:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the type.
func (t DataType) String() string {
	return string(t)
}

// ParseDataType parses a user supplied type name. Matching is case
// insensitive and "txt" is accepted as an alias of TEXT.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEXT", "TXT":
		return TypeText, nil
	case "HTML", "HTM":
		return TypeHTML, nil
	case "JSON":
		return TypeJSON, nil
	default:
		return "", fmt.Errorf("unsupported document type %q (want text, html or json)", s)
	}
}

// Document is one unit of raw ingested content.
type Document struct {
	Type   DataType `json:"type"`
	Source string   `json:"source"`
	Data   string   `json:"data"`
}

// Chunk is a bounded fragment of a document's narration. Chunks inherit
// the source and type of the document they were cut from.
type Chunk struct {
	ID     string   `json:"id,omitempty"`
	Source string   `json:"source"`
	Data   string   `json:"data"`
	Type   DataType `json:"type"`
}

// Empty reports whether the chunk carries nothing to speak.
func (c Chunk) Empty() bool {
	return c.Data == ""
}

// UnmarshalJSON accepts the legacy "TXT" spelling of TEXT on the wire.
func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("document type must be a string: %w", err)
	}
	if parsed, err := ParseDataType(s); err == nil {
		*t = parsed
		return nil
	}
	// Unknown types decode as-is so ingestion can reject them without
	// failing the whole request.
	*t = DataType(s)
	return nil
}
