package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/dgnsrekt/speechify/internal/document"
)

// Rule maps a JSON source to a jq program that produces its narration.
type Rule struct {
	Type   string `mapstructure:"type" json:"type"`
	Source string `mapstructure:"source" json:"source"`
	JQ     string `mapstructure:"jq" json:"jq"`
}

// AddRules compiles and registers narration rules. Rules without a type
// apply to JSON documents; only JSON rules are accepted.
func (n *Normalizer) AddRules(rules ...Rule) error {
	for i, r := range rules {
		s, t, err := compileRule(r)
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Source, err)
		}
		n.Register(t, r.Source, s)
	}
	return nil
}

func compileRule(r Rule) (Strategy, document.DataType, error) {
	t := document.TypeJSON
	if strings.TrimSpace(r.Type) != "" {
		parsed, err := document.ParseDataType(r.Type)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		t = parsed
	}
	if t != document.TypeJSON {
		return nil, "", fmt.Errorf("%w: jq rules only apply to JSON documents", ErrInvalidRule)
	}
	if r.Source == "" {
		return nil, "", fmt.Errorf("%w: source is required", ErrInvalidRule)
	}

	query, err := gojq.Parse(r.JQ)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	return func(doc document.Document) (string, error) {
		var input any
		if err := json.Unmarshal([]byte(doc.Data), &input); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		var parts []string
		iter := query.Run(input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, ok := v.(error); ok {
				return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("%w: jq produced %T, want a string", ErrMalformedPayload, v)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "\n"), nil
	}, t, nil
}
