// Package main provides the entry point for the speechify CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "speechify"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Listen to web pages, JSON events and text feeds",
		Long: paragraph(
			fmt.Sprintf("\nStream ingested content to a listener as %s, one small chunk at a time.", keyword("synthesized speech")),
		),
		Example:          paragraph("speechify serve\nspeechify add https://example.com/article.html\nspeechify listen"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return applyLogLevel(viper.GetString("log.level"))
		},
	}
)

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	cobra.OnInitialize(loadExplicitConfig)

	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	setDefaults()

	rootCmd.AddCommand(serveCmd, addCmd, listenCmd, watchCmd, configCmd, manCmd)
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.rate_limit", 20.0)
	viper.SetDefault("server.burst", 40)
	viper.SetDefault("server.lines_per_chunk", 3)
	viper.SetDefault("server.idempotency_keys", 1024)
	viper.SetDefault("server.env_file", ".env")

	viper.SetDefault("client.server", "http://localhost:8080")
	viper.SetDefault("client.timeout", "10s")
	viper.SetDefault("client.poll_interval", "2s")
	viper.SetDefault("client.retry.attempts", 3)
	viper.SetDefault("client.retry.initial_backoff", "100ms")
	viper.SetDefault("client.retry.max_backoff", "2s")

	viper.SetDefault("speech.engine", "piper")
	viper.SetDefault("speech.fallback", "")
	viper.SetDefault("speech.fallback_after", 3)
	viper.SetDefault("speech.lang", "en-US")
	viper.SetDefault("speech.rate", 0.9)
	viper.SetDefault("speech.volume", 1.0)
	viper.SetDefault("speech.cache.dir", "")
	viper.SetDefault("speech.cache.memory_size", "64MB")
	viper.SetDefault("speech.cache.disk_size", "512MB")
	viper.SetDefault("speech.cache.ttl", "168h")
	viper.SetDefault("speech.piper.model", "")
	viper.SetDefault("speech.piper.timeout", "30s")
	viper.SetDefault("speech.gtts.language", "en")
	viper.SetDefault("speech.gtts.requests_per_minute", 50)

	viper.SetDefault("normalize.timezone", "Local")

	viper.SetDefault("watch.debounce", "250ms")
}

// loadExplicitConfig reads the file given with --config, replacing whatever
// was found in the default places.
func loadExplicitConfig() {
	if configFile == "" || configFile == viper.ConfigFileUsed() {
		return
	}
	configFile = expandPath(configFile)
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not read configuration file", "path", configFile, "err", err)
		return
	}
	log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("SPEECHIFY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
}
