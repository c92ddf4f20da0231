package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dgnsrekt/speechify/internal/speech"
)

var (
	// ErrUnknownEngine is returned by New for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown speech engine")

	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")
)

const (
	// DefaultSampleRate is the PCM rate both engines produce.
	DefaultSampleRate = 22050

	maxTextSize = 5000
)

// Config selects and configures an engine.
type Config struct {
	Piper PiperConfig `mapstructure:"piper"`
	GTTS  GTTSConfig  `mapstructure:"gtts"`
}

// Validator is implemented by engines that can check their external
// dependencies before use.
type Validator interface {
	Validate() error
}

// New creates the engine called name.
func New(name string, cfg Config) (speech.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "piper":
		return NewPiperEngine(cfg.Piper)
	case "gtts", "google":
		return NewGTTSEngine(cfg.GTTS)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if len(text) > maxTextSize {
		return fmt.Errorf("text too long: %d characters (max %d)", len(text), maxTextSize)
	}
	return nil
}

// run executes a command with stdin preset, bounded by timeout. On timeout
// the process is interrupted and then killed.
func run(ctx context.Context, timeout time.Duration, stdin io.Reader, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(name, args...)
	// Writing to a StdinPipe races the child's first read; a preset reader
	// does not.
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
		}
	case <-ctx.Done():
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			_ = cmd.Process.Kill()
			<-done
		}
		return nil, fmt.Errorf("%s timed out after %v: %w", name, timeout, ctx.Err())
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no output, stderr: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
