package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speechify/internal/metrics"
	"github.com/dgnsrekt/speechify/internal/queue"
	"github.com/dgnsrekt/speechify/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the ingestion server",
	Long:    paragraph(fmt.Sprintf("\n%s documents over HTTP, turn them into narration and queue it for listeners.", keyword("Accept"))),
	Example: paragraph("speechify serve\nspeechify serve --addr :9000"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	serveCmd.Flags().Float64("rate-limit", 20, "accepted submissions per second (0 disables limiting)")
	serveCmd.Flags().Int("burst", 40, "submissions accepted in a burst")
	serveCmd.Flags().Int("lines-per-chunk", 3, "lines of narration per chunk")
	serveCmd.Flags().String("env-file", ".env", "environment file loaded before starting")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.rate_limit", serveCmd.Flags().Lookup("rate-limit"))
	_ = viper.BindPFlag("server.burst", serveCmd.Flags().Lookup("burst"))
	_ = viper.BindPFlag("server.lines_per_chunk", serveCmd.Flags().Lookup("lines-per-chunk"))
	_ = viper.BindPFlag("server.env_file", serveCmd.Flags().Lookup("env-file"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(expandPath(viper.GetString("server.env_file"))); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	norm, err := newNormalizer()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	q := queue.New(norm,
		queue.WithLogger(log.WithPrefix("queue")),
		queue.WithMetrics(m),
		queue.WithLinesPerChunk(viper.GetInt("server.lines_per_chunk")),
	)

	cfg := server.DefaultConfig()
	cfg.RateLimit = viper.GetFloat64("server.rate_limit")
	cfg.Burst = viper.GetInt("server.burst")
	cfg.IdempotencyKeys = viper.GetInt("server.idempotency_keys")

	h := server.New(q, cfg,
		server.WithLogger(log.WithPrefix("http")),
		server.WithMetrics(m, reg),
	)

	addr := viper.GetString("server.addr")
	log.Info("Starting ingestion server", "addr", addr, "rate_limit", cfg.RateLimit, "lines_per_chunk", viper.GetInt("server.lines_per_chunk"))
	return server.Run(ctx, addr, h, log.Default()) //nolint:wrapcheck
}

// loadEnvFile loads path into the environment. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("unable to load %s: %w", path, err)
	}
	log.Debug("Loaded environment file", "path", path)
	return nil
}
