package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log level: debug, info, warn or error
log:
  level: "info"
  # file: "~/.cache/speechify/speechify.log"

# ingestion server (speechify serve)
server:
  addr: ":8080"
  # accepted submissions per second, 0 disables limiting
  rate_limit: 20
  burst: 40
  # lines of narration per chunk
  lines_per_chunk: 3
  # loaded before the server starts
  env_file: ".env"

# remote queue used by add, listen and watch
client:
  server: "http://localhost:8080"
  timeout: "10s"
  # how often an idle listener checks for new chunks
  poll_interval: "2s"
  retry:
    attempts: 3
    initial_backoff: "100ms"
    max_backoff: "2s"

# speech synthesis (speechify listen)
speech:
  # piper or gtts
  engine: "piper"
  # engine used once the primary fails fallback_after times in a row
  # fallback: "gtts"
  fallback_after: 3
  lang: "en-US"
  rate: 0.9
  volume: 1.0
  cache:
    # empty keeps synthesized audio in memory only
    dir: "~/.cache/speechify/audio"
    memory_size: "64MB"
    disk_size: "512MB"
    ttl: "168h"
  piper:
    model: "~/.local/share/piper/en_US-lessac-medium.onnx"
    timeout: "30s"
  gtts:
    language: "en"
    # tld: "co.uk"
    requests_per_minute: 50

# how documents become narration (speechify serve)
normalize:
  # time zone for timestamps in JSON events
  timezone: "Local"
  # jq programs narrating JSON documents from a given source
  rules: []
  #  - source: "feeds.weather"
  #    jq: '"It is \(.temperature) degrees in \(.city)."'

# directory feeder (speechify watch)
watch:
  debounce: "250ms"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speechify config file",
	Long:    paragraph(fmt.Sprintf("\n%s the speechify config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("speechify config\nspeechify config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Speechify", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile writes the default config to configFile unless it
// already exists.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no configuration file path")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
