package engines

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Model file path (required)
	Model string `mapstructure:"model"`

	// Config file path (optional, defaults to the model path with .json)
	ModelConfig string `mapstructure:"config"`

	// Speaker id for multi-speaker models (optional)
	Speaker string `mapstructure:"speaker"`

	// Binary defaults to "piper" on PATH.
	Binary string `mapstructure:"binary"`

	SampleRate int           `mapstructure:"sample_rate"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PiperEngine synthesizes speech with a fresh Piper process per call.
type PiperEngine struct {
	binary      string
	model       string
	modelConfig string
	speaker     string
	sampleRate  int
	timeout     time.Duration
}

// NewPiperEngine creates a Piper engine. The model file must exist.
func NewPiperEngine(config PiperConfig) (*PiperEngine, error) {
	if config.Model == "" {
		return nil, errors.New("piper model path is required")
	}

	model, err := homedir.Expand(config.Model)
	if err != nil {
		return nil, fmt.Errorf("expand model path: %w", err)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	e := &PiperEngine{
		binary:      config.Binary,
		model:       model,
		modelConfig: config.ModelConfig,
		speaker:     config.Speaker,
		sampleRate:  config.SampleRate,
		timeout:     config.Timeout,
	}
	if e.binary == "" {
		e.binary = "piper"
	}
	if e.modelConfig == "" {
		e.modelConfig = strings.TrimSuffix(model, filepath.Ext(model)) + ".onnx.json"
		if _, err := os.Stat(e.modelConfig); err != nil {
			e.modelConfig = strings.TrimSuffix(model, filepath.Ext(model)) + ".json"
		}
	}
	if e.sampleRate == 0 {
		e.sampleRate = DefaultSampleRate
	}
	if e.timeout == 0 {
		e.timeout = 10 * time.Second
	}
	return e, nil
}

// Name returns "piper".
func (e *PiperEngine) Name() string { return "piper" }

// Voice identifies the model and speaker.
func (e *PiperEngine) Voice() string {
	voice := strings.TrimSuffix(filepath.Base(e.model), filepath.Ext(e.model))
	if e.speaker != "" {
		voice += "#" + e.speaker
	}
	return voice
}

// SampleRate returns the PCM sample rate of the model output.
func (e *PiperEngine) SampleRate() int { return e.sampleRate }

// MaxTextSize is the largest text accepted by Synthesize.
func (e *PiperEngine) MaxTextSize() int { return maxTextSize }

// Synthesize converts text to raw PCM. lang is ignored; the model decides
// the language.
func (e *PiperEngine) Synthesize(ctx context.Context, text, _ string, rate float64) ([]byte, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	return run(ctx, e.timeout, strings.NewReader(text), e.binary, e.args(rate)...)
}

func (e *PiperEngine) args(rate float64) []string {
	args := []string{
		"--model", e.model,
		"--config", e.modelConfig,
		"--output-raw",
		"--length-scale", lengthScale(rate),
	}
	if e.speaker != "" {
		args = append(args, "--speaker", e.speaker)
	}
	return args
}

// lengthScale converts a speaking rate to Piper's length scale: rate 0.5 is
// scale 2.0, rate 2.0 is scale 0.5.
func lengthScale(rate float64) string {
	if rate <= 0 {
		rate = 1
	}
	return strconv.FormatFloat(1/rate, 'f', 2, 64)
}

// Validate checks that the binary and model are available.
func (e *PiperEngine) Validate() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("piper not found in PATH: %w", err)
	}
	if _, err := os.Stat(e.model); err != nil {
		return fmt.Errorf("model file not accessible: %w", err)
	}
	return nil
}

// Close is a no-op; each synthesis runs its own process.
func (e *PiperEngine) Close() error { return nil }
