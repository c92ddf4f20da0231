package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/speechify/internal/document"
)

// SlackTimeLayout renders message timestamps as month/day/year with a
// twelve hour clock.
const SlackTimeLayout = "1/2/2006, 3:04:05 PM"

// formatJSON is the JSON fallback: the payload is validated and re-indented
// so it reads predictably.
func formatJSON(doc document.Document) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(doc.Data), "", "  "); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return fmt.Sprintf("Reading JSON from %s. \n %s", doc.Source, buf.String()), nil
}

type slackMessage struct {
	From     *string         `json:"from"`
	Channel  *string         `json:"channel"`
	Message  *string         `json:"message"`
	TimeSent json.RawMessage `json:"timeSent"`
}

// slackFormatter reads chat payloads of the form
// {"from":"@user","channel":"#name","message":"...","timeSent":...}.
func slackFormatter(loc *time.Location) Strategy {
	return func(doc document.Document) (string, error) {
		var msg slackMessage
		if err := json.Unmarshal([]byte(doc.Data), &msg); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if msg.From == nil || msg.Channel == nil || msg.Message == nil || len(msg.TimeSent) == 0 {
			return "", fmt.Errorf("%w: chat message requires from, channel, message and timeSent", ErrMalformedPayload)
		}

		sent, err := parseTimestamp(msg.TimeSent)
		if err != nil {
			return "", fmt.Errorf("%w: timeSent: %v", ErrMalformedPayload, err)
		}

		return fmt.Sprintf("Reading slack chat from %s, in %s channel on %s.\n%s",
			dropSigil(*msg.From),
			dropSigil(*msg.Channel),
			sent.In(loc).Format(SlackTimeLayout),
			*msg.Message,
		), nil
	}
}

// dropSigil removes the leading "@" or "#" style marker.
func dropSigil(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[size:]
}

// parseTimestamp accepts epoch milliseconds as a number or numeric string,
// or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return time.Time{}, err
	}

	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, nil
		}
		n = json.Number(s)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp %s", string(raw))
	}

	if ms, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp %s", string(raw))
	}
	return time.UnixMilli(int64(f)), nil
}
