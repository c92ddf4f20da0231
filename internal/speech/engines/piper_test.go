package engines

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPiperEngine(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "test-model.onnx")
	if err := os.WriteFile(model, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		config  PiperConfig
		wantErr bool
	}{
		{"valid config", PiperConfig{Model: model}, false},
		{"missing model path", PiperConfig{}, true},
		{"non-existent model", PiperConfig{Model: "/non/existent/model.onnx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewPiperEngine(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPiperEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if e != nil && e.modelConfig != filepath.Join(dir, "test-model.json") {
				t.Errorf("modelConfig = %q", e.modelConfig)
			}
		})
	}
}

func TestPiperVoice(t *testing.T) {
	e := &PiperEngine{model: "/models/en_US-amy-medium.onnx"}
	if got := e.Voice(); got != "en_US-amy-medium" {
		t.Errorf("Voice() = %q", got)
	}
	e.speaker = "3"
	if got := e.Voice(); got != "en_US-amy-medium#3" {
		t.Errorf("Voice() with speaker = %q", got)
	}
}

func TestLengthScale(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.5, "2.00"},
		{0.9, "1.11"},
		{1.0, "1.00"},
		{1.5, "0.67"},
		{2.0, "0.50"},
		{0, "1.00"},
	}
	for _, tt := range tests {
		if got := lengthScale(tt.rate); got != tt.want {
			t.Errorf("lengthScale(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestPiperSynthesize(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(model, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}
	argsFile := filepath.Join(dir, "args")
	// Echo stdin back as the "PCM" and record the arguments.
	bin := script(t, dir, "piper", `printf '%s\n' "$@" > `+argsFile+"\ncat")

	e, err := NewPiperEngine(PiperConfig{Model: model, Binary: bin, Speaker: "2"})
	if err != nil {
		t.Fatal(err)
	}

	pcm, err := e.Synthesize(context.Background(), "hello there", "en-US", 0.5)
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if string(pcm) != "hello there" {
		t.Errorf("text not passed on stdin, got %q", pcm)
	}

	args := readArgs(t, argsFile)
	want := []string{"--model", model, "--config", filepath.Join(dir, "voice.json"), "--output-raw", "--length-scale", "2.00", "--speaker", "2"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestPiperValidate(t *testing.T) {
	e := &PiperEngine{binary: "definitely-not-piper-binary", model: "x"}
	if err := e.Validate(); err == nil {
		t.Error("expected error for missing binary")
	}
}
