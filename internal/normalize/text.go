package normalize

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/speechify/internal/document"
)

// formatText is the plaintext fallback: a header naming the source followed
// by the payload verbatim.
func formatText(doc document.Document) (string, error) {
	return fmt.Sprintf("Reading Text from %s.\n %s", doc.Source, doc.Data), nil
}

// formatStockTicker reads tab separated "<symbol>\t<price>" lines.
func formatStockTicker(doc document.Document) (string, error) {
	var entries []string
	for i, line := range strings.Split(doc.Data, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		symbol, price, ok := strings.Cut(line, "\t")
		if !ok {
			return "", fmt.Errorf("%w: stock line %d has no price: %q", ErrMalformedPayload, i+1, line)
		}
		dollars, cents, _ := strings.Cut(strings.TrimSpace(price), ".")
		if dollars == "" {
			dollars = "0"
		}
		if cents == "" {
			cents = "0"
		}
		entries = append(entries, fmt.Sprintf("%s, %s dollars and %s cents.", strings.TrimSpace(symbol), dollars, cents))
	}

	if len(entries) == 0 {
		return "", nil
	}
	return "Reading stock prices. \n " + strings.Join(entries, "\n"), nil
}
