package ui

import "time"

// Config contains TUI-specific configuration, read from the environment.
type Config struct {
	// How often the controller state is reconciled with the speaker.
	ReconcileInterval time.Duration `env:"SPEECHIFY_RECONCILE_INTERVAL" envDefault:"1s"`

	// Maximum width of the chunk preview.
	PreviewWidth int `env:"SPEECHIFY_PREVIEW_WIDTH" envDefault:"72"`

	AltScreen   bool `env:"SPEECHIFY_ALT_SCREEN"`
	EnableMouse bool `env:"SPEECHIFY_MOUSE"`
}
