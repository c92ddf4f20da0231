package normalize

import (
	"errors"
	"testing"

	"github.com/dgnsrekt/speechify/internal/document"
)

func TestAddRules(t *testing.T) {
	n := New()
	err := n.AddRules(Rule{
		Source: "alerts",
		JQ:     `"Alert from \(.service): \(.summary)"`,
	})
	if err != nil {
		t.Fatalf("AddRules() error: %v", err)
	}

	got, err := n.Normalize(document.Document{
		Type:   document.TypeJSON,
		Source: "alerts",
		Data:   `{"service":"db","summary":"disk full"}`,
	})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if want := "Alert from db: disk full"; got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestAddRulesMultipleOutputs(t *testing.T) {
	n := New()
	if err := n.AddRules(Rule{Type: "json", Source: "list", JQ: `.items[]`}); err != nil {
		t.Fatal(err)
	}

	got, err := n.Normalize(document.Document{Type: document.TypeJSON, Source: "list", Data: `{"items":["a","b"]}`})
	if err != nil {
		t.Fatal(err)
	}
	if want := "a\nb"; got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestAddRulesNonStringResult(t *testing.T) {
	n := New()
	if err := n.AddRules(Rule{Source: "list", JQ: `.items[]`}); err != nil {
		t.Fatal(err)
	}

	for _, data := range []string{`{"items":["a",2]}`, `{"items":[null]}`, `{"items":[{"k":"v"}]}`} {
		t.Run(data, func(t *testing.T) {
			_, err := n.Normalize(document.Document{Type: document.TypeJSON, Source: "list", Data: data})
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Normalize() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestAddRulesInvalid(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"bad program", Rule{Source: "s", JQ: `.[`}},
		{"text type", Rule{Type: "text", Source: "s", JQ: `.`}},
		{"unknown type", Rule{Type: "xml", Source: "s", JQ: `.`}},
		{"missing source", Rule{JQ: `.`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().AddRules(tt.rule); !errors.Is(err, ErrInvalidRule) {
				t.Errorf("AddRules() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestRuleRuntimeError(t *testing.T) {
	n := New()
	if err := n.AddRules(Rule{Source: "s", JQ: `.a + 1`}); err != nil {
		t.Fatal(err)
	}
	_, err := n.Normalize(document.Document{Type: document.TypeJSON, Source: "s", Data: `{"a":"x"}`})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}
