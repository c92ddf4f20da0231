package engines

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Language overrides the utterance language (e.g. "en", "es").
	Language string `mapstructure:"language"`

	// TLD selects the Google host, which changes the accent (e.g. "co.uk").
	TLD string `mapstructure:"tld"`

	// RequestsPerMinute keeps us under Google's throttling (default 50).
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	GTTSBinary   string `mapstructure:"gtts_binary"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary"`
	TempDir      string `mapstructure:"temp_dir"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

// slowRate is the rate at or below which gtts-cli's --slow voice is used
// instead of an ffmpeg tempo filter.
const slowRate = 0.75

// GTTSEngine synthesizes speech with gtts-cli (MP3) and converts it to PCM
// with ffmpeg.
type GTTSEngine struct {
	language   string
	tld        string
	gtts       string
	ffmpeg     string
	tempDir    string
	sampleRate int

	limiter *rate.Limiter
}

// NewGTTSEngine creates a gTTS engine.
func NewGTTSEngine(config GTTSConfig) (*GTTSEngine, error) {
	e := &GTTSEngine{
		language:   config.Language,
		tld:        config.TLD,
		gtts:       config.GTTSBinary,
		ffmpeg:     config.FFmpegBinary,
		tempDir:    config.TempDir,
		sampleRate: config.SampleRate,
	}
	if e.gtts == "" {
		e.gtts = "gtts-cli"
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.tempDir == "" {
		e.tempDir = os.TempDir()
	}
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if e.sampleRate == 0 {
		e.sampleRate = DefaultSampleRate
	}

	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	return e, nil
}

// Name returns "gtts".
func (e *GTTSEngine) Name() string { return "gtts" }

// Voice identifies the accent host.
func (e *GTTSEngine) Voice() string {
	if e.tld == "" {
		return "com"
	}
	return e.tld
}

// SampleRate returns the PCM rate ffmpeg resamples to.
func (e *GTTSEngine) SampleRate() int { return e.sampleRate }

// MaxTextSize is the largest text accepted by Synthesize.
func (e *GTTSEngine) MaxTextSize() int { return maxTextSize }

// Synthesize converts text to PCM: text → gtts-cli → MP3 → ffmpeg → PCM.
func (e *GTTSEngine) Synthesize(ctx context.Context, text, lang string, speed float64) ([]byte, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	mp3, err := run(ctx, 30*time.Second, nil, e.gtts, e.gttsArgs(text, lang, speed)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 generation failed: %w", err)
	}

	// ffmpeg needs a seekable input to probe MP3 reliably.
	f, err := os.CreateTemp(e.tempDir, "speechify-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp MP3 file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(mp3); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write MP3 data: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write MP3 data: %w", err)
	}

	pcm, err := run(ctx, 15*time.Second, nil, e.ffmpeg, e.ffmpegArgs(f.Name(), speed)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 to PCM conversion failed: %w", err)
	}
	return pcm, nil
}

func (e *GTTSEngine) gttsArgs(text, lang string, speed float64) []string {
	args := []string{text, "-l", e.lang(lang)}
	if e.tld != "" {
		args = append(args, "-t", e.tld)
	}
	if speed > 0 && speed <= slowRate {
		args = append(args, "--slow")
	}
	return append(args, "-o", "-")
}

func (e *GTTSEngine) ffmpegArgs(input string, speed float64) []string {
	args := []string{
		"-loglevel", "error",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", "1",
	}
	if tempo := atempo(speed); tempo != "" {
		args = append(args, "-filter:a", "atempo="+tempo)
	}
	return append(args, "-")
}

// lang maps an utterance locale such as en-US to gtts's language code.
func (e *GTTSEngine) lang(locale string) string {
	if e.language != "" {
		return e.language
	}
	lang, _, _ := strings.Cut(locale, "-")
	if lang == "" {
		return "en"
	}
	return strings.ToLower(lang)
}

// atempo returns the ffmpeg tempo for speed, or "" when none applies. Slow
// rates use gtts's slow voice instead; atempo accepts 0.5 to 2.0.
func atempo(speed float64) string {
	if speed <= slowRate || speed == 1 {
		return ""
	}
	if speed > 2 {
		speed = 2
	}
	return strconv.FormatFloat(speed, 'f', 2, 64)
}

// Validate checks that gtts-cli and ffmpeg are installed.
func (e *GTTSEngine) Validate() error {
	if _, err := exec.LookPath(e.gtts); err != nil {
		return fmt.Errorf("gtts-cli not found in PATH: %w\n\nInstall with: pip install gtts", err)
	}
	if _, err := exec.LookPath(e.ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w\n\nInstall ffmpeg for audio conversion", err)
	}
	return nil
}

// Close is a no-op.
func (e *GTTSEngine) Close() error { return nil }
