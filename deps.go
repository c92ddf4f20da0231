package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speechify/internal/cache"
	"github.com/dgnsrekt/speechify/internal/client"
	"github.com/dgnsrekt/speechify/internal/normalize"
	"github.com/dgnsrekt/speechify/internal/resilience"
	"github.com/dgnsrekt/speechify/internal/speech"
	"github.com/dgnsrekt/speechify/internal/speech/engines"
)

func newClient() (*client.Client, error) {
	retry := resilience.DefaultRetryConfig()
	if n := viper.GetInt("client.retry.attempts"); n > 0 {
		retry.MaxAttempts = n
	}
	if d := viper.GetDuration("client.retry.initial_backoff"); d > 0 {
		retry.InitialBackoff = d
	}
	if d := viper.GetDuration("client.retry.max_backoff"); d > 0 {
		retry.MaxBackoff = d
	}

	c, err := client.New(client.Config{
		BaseURL: viper.GetString("client.server"),
		Timeout: viper.GetDuration("client.timeout"),
		Retry:   retry,
		Logger:  log.WithPrefix("client"),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create client: %w", err)
	}
	return c, nil
}

func newNormalizer() (*normalize.Normalizer, error) {
	var opts []normalize.Option
	if tz := viper.GetString("normalize.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid normalize.timezone: %w", err)
		}
		opts = append(opts, normalize.WithLocation(loc))
	}
	n := normalize.New(opts...)

	var rules []normalize.Rule
	if err := viper.UnmarshalKey("normalize.rules", &rules); err != nil {
		return nil, fmt.Errorf("invalid normalize.rules: %w", err)
	}
	if err := n.AddRules(rules...); err != nil {
		return nil, fmt.Errorf("invalid normalize.rules: %w", err)
	}
	if len(rules) > 0 {
		log.Debug("Loaded narration rules", "count", len(rules))
	}
	return n, nil
}

// newEngine creates the configured engine, wrapped with speech.fallback
// when one is set.
func newEngine(name string) (speech.Engine, error) {
	fallback := viper.GetString("speech.fallback")
	if fallback == name {
		fallback = ""
	}

	primary, err := buildEngine(name)
	if err != nil {
		if fallback == "" {
			return nil, err
		}
		log.Warn("Primary engine unavailable, using fallback", "engine", name, "fallback", fallback, "error", err)
		return newEngine(fallback)
	}
	if fallback == "" {
		return validated(primary)
	}

	secondary, err := buildEngine(fallback)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	f, err := engines.NewFallback(primary, secondary, viper.GetInt("speech.fallback_after"), log.WithPrefix("engine"))
	if err != nil {
		_ = primary.Close()
		_ = secondary.Close()
		return nil, fmt.Errorf("unable to use %s as fallback: %w", fallback, err)
	}
	return validated(f)
}

func validated(engine speech.Engine) (speech.Engine, error) {
	if v, ok := engine.(engines.Validator); ok {
		if err := v.Validate(); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("%s engine is not usable: %w", engine.Name(), err)
		}
	}
	return engine, nil
}

func buildEngine(name string) (speech.Engine, error) {
	cfg := engines.Config{
		Piper: engines.PiperConfig{
			Model:   expandPath(viper.GetString("speech.piper.model")),
			Speaker: viper.GetString("speech.piper.speaker"),
			Binary:  viper.GetString("speech.piper.binary"),
			Timeout: viper.GetDuration("speech.piper.timeout"),
		},
		GTTS: engines.GTTSConfig{
			Language:          viper.GetString("speech.gtts.language"),
			TLD:               viper.GetString("speech.gtts.tld"),
			RequestsPerMinute: viper.GetInt("speech.gtts.requests_per_minute"),
			GTTSBinary:        viper.GetString("speech.gtts.gtts_binary"),
			FFmpegBinary:      viper.GetString("speech.gtts.ffmpeg_binary"),
		},
	}
	if p := viper.GetString("speech.piper.config"); p != "" {
		cfg.Piper.ModelConfig = expandPath(p)
	}

	engine, err := engines.New(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s engine: %w", name, err)
	}
	return engine, nil
}

func newCache() (*cache.Manager, error) {
	cfg := cache.DefaultConfig()
	cfg.Logger = log.WithPrefix("cache")

	var err error
	if cfg.MemoryCapacity, err = byteSize("speech.cache.memory_size"); err != nil {
		return nil, err
	}
	if cfg.DiskCapacity, err = byteSize("speech.cache.disk_size"); err != nil {
		return nil, err
	}
	cfg.DiskPath = expandPath(viper.GetString("speech.cache.dir"))
	cfg.TTL = viper.GetDuration("speech.cache.ttl")

	m, err := cache.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create audio cache: %w", err)
	}
	return m, nil
}
