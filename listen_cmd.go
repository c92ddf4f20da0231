package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/speechify/internal/audio"
	"github.com/dgnsrekt/speechify/internal/playback"
	"github.com/dgnsrekt/speechify/internal/speech"
	"github.com/dgnsrekt/speechify/ui"
)

var (
	listenSilent   bool
	listenHeadless bool
	listenPaused   bool

	listenCmd = &cobra.Command{
		Use:     "listen",
		Short:   "Speak queued narration",
		Long:    paragraph(fmt.Sprintf("\n%s chunks from the ingestion server and speak them one at a time. Shows a status display when run in a terminal; press space to pause or resume.", keyword("Pull"))),
		Example: paragraph("speechify listen\nspeechify listen --engine gtts\nspeechify listen --headless > narration.log"),
		Args:    cobra.NoArgs,
		RunE:    runListen,
	}
)

func init() {
	listenCmd.Flags().StringP("engine", "e", "piper", "speech engine: piper or gtts")
	listenCmd.Flags().Float64P("rate", "r", playback.DefaultRate, "speaking rate")
	listenCmd.Flags().String("server", "http://localhost:8080", "ingestion server URL")
	listenCmd.Flags().BoolVar(&listenSilent, "silent", false, "synthesize without playing audio")
	listenCmd.Flags().BoolVar(&listenHeadless, "headless", false, "log events instead of showing the status display")
	listenCmd.Flags().BoolVar(&listenPaused, "paused", false, "start paused")

	_ = viper.BindPFlag("speech.engine", listenCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("speech.rate", listenCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("client.server", listenCmd.Flags().Lookup("server"))
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, err := newClient()
	if err != nil {
		return err
	}

	engine, err := newEngine(viper.GetString("speech.engine"))
	if err != nil {
		return err
	}
	defer engine.Close() //nolint:errcheck

	audioCache, err := newCache()
	if err != nil {
		return err
	}
	defer audioCache.Close() //nolint:errcheck

	sink, err := newSink(engine.SampleRate())
	if err != nil {
		return err
	}
	defer sink.Close() //nolint:errcheck

	speaker := speech.NewEngineSpeaker(engine, sink,
		speech.WithCache(audioCache),
		speech.WithLogger(log.WithPrefix("speech")),
	)
	defer speaker.Close() //nolint:errcheck

	ctrl := playback.New(remote, speaker,
		playback.WithLang(viper.GetString("speech.lang")),
		playback.WithRate(viper.GetFloat64("speech.rate")),
		playback.WithLogger(log.WithPrefix("playback")),
	)
	if err := ctrl.Start(ctx); err != nil {
		return err //nolint:wrapcheck
	}
	defer ctrl.Close() //nolint:errcheck

	go refresh(ctx, ctrl, viper.GetDuration("client.poll_interval"))

	log.Info("Listening",
		"server", viper.GetString("client.server"),
		"engine", engine.Name(),
		"voice", engine.Voice(),
		"rate", viper.GetFloat64("speech.rate"))

	if !listenHeadless && term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return runStatusUI(ctx, ctrl)
	}
	return runHeadless(ctx, ctrl)
}

// newSink opens the audio device, or a silent sink with --silent.
func newSink(sampleRate int) (speech.Sink, error) {
	if listenSilent {
		return audio.NewSilent(sampleRate, 1, 0), nil
	}

	cfg := audio.DefaultPlayerConfig()
	cfg.SampleRate = sampleRate
	p, err := audio.NewPlayer(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open audio device (try --silent): %w", err)
	}
	if v := viper.GetFloat64("speech.volume"); v > 0 {
		if err := p.SetVolume(v); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("invalid speech.volume: %w", err)
		}
	}
	return p, nil
}

// refresh periodically picks up chunks queued while the controller was
// waiting on an empty queue.
func refresh(ctx context.Context, ctrl *playback.Controller, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ctrl.Refresh()
		}
	}
}

func runStatusUI(ctx context.Context, ctrl *playback.Controller) error {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// The status display owns the terminal.
	if viper.GetString("log.file") == "" {
		path, err := defaultLogFile()
		if err != nil {
			discardLog()
		} else if closer, err := logToFile(path); err != nil {
			discardLog()
		} else {
			defer closer() //nolint:errcheck
		}
	}

	p := ui.NewProgram(cfg, ctrl)
	if !listenPaused {
		if err := ctrl.Play(); err != nil {
			return fmt.Errorf("unable to start playback: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func runHeadless(ctx context.Context, ctrl *playback.Controller) error {
	ctrl.Subscribe(logEvent)
	if !listenPaused {
		if err := ctrl.Play(); err != nil {
			return fmt.Errorf("unable to start playback: %w", err)
		}
	}

	<-ctx.Done()
	stats := ctrl.Stats()
	log.Info("Stopped listening", "spoken", stats.ChunksSpoken, "errors", stats.Errors)
	return nil
}

func logEvent(e playback.Event) {
	switch e.Type {
	case playback.EventState:
		log.Info("Playback state", "state", e.State)
	case playback.EventChunk:
		if e.Chunk != nil {
			log.Info("Speaking chunk", "id", e.Chunk.ID, "source", e.Chunk.Source)
		}
	case playback.EventError:
		log.Error("Playback error", "error", e.Err)
	}
}
