/*
Package logging configures the process-wide logger. Packages log through
charmbracelet/log directly; this package only sets the shared defaults.
*/
package logging

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Init configures the default logger. An unknown level falls back to info.
func Init(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}

	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           parsed,
	}))
}
